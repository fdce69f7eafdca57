package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/infra/storage"
)

// Faults injects errors into the next calls of the matching operation.
// A nil field means the operation succeeds.
type Faults struct {
	Discover error
	Begin    error
	Save     error
	Commit   error
	Audit    error
}

type customer struct {
	lastActivityDays int
	complaintsCount  int
	createdAt        time.Time
}

type prediction struct {
	probability float64
	predictedAt time.Time
}

// MemoryStorage is an in-process Store and AuditWriter with the same
// discovery and conflict semantics as the PostgreSQL schema.
type MemoryStorage struct {
	customers   map[int64]customer
	feedback    []domain.FeedbackItem
	analyses    map[int64]domain.FeedbackAnalysis
	predictions map[int64]prediction
	actions     map[int64]domain.Action
	audit       []domain.AuditEvent

	faults Faults
	closed bool
	mu     sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		customers:   make(map[int64]customer),
		analyses:    make(map[int64]domain.FeedbackAnalysis),
		predictions: make(map[int64]prediction),
		actions:     make(map[int64]domain.Action),
	}
}

// -----------------------------------------------------------------------------
// Seeding
// -----------------------------------------------------------------------------

func (s *MemoryStorage) AddCustomer(id int64, lastActivityDays, complaints int, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[id] = customer{lastActivityDays: lastActivityDays, complaintsCount: complaints, createdAt: createdAt}
}

func (s *MemoryStorage) AddFeedback(id int64, text string, submittedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, domain.FeedbackItem{CustomerID: id, FeedbackText: text, SubmittedAt: submittedAt})
}

func (s *MemoryStorage) AddAnalysis(a domain.FeedbackAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[a.CustomerID] = a
}

func (s *MemoryStorage) AddPrediction(id int64, probability float64, predictedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions[id] = prediction{probability: probability, predictedAt: predictedAt}
}

func (s *MemoryStorage) SetFaults(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

// -----------------------------------------------------------------------------
// Inspection
// -----------------------------------------------------------------------------

func (s *MemoryStorage) Analyses() map[int64]domain.FeedbackAnalysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]domain.FeedbackAnalysis, len(s.analyses))
	for k, v := range s.analyses {
		out[k] = v
	}
	return out
}

func (s *MemoryStorage) Actions() map[int64]domain.Action {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]domain.Action, len(s.actions))
	for k, v := range s.actions {
		out[k] = v
	}
	return out
}

func (s *MemoryStorage) Predictions() map[int64]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]float64, len(s.predictions))
	for k, v := range s.predictions {
		out[k] = v.probability
	}
	return out
}

func (s *MemoryStorage) AuditEvents() []domain.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditEvent(nil), s.audit...)
}

// -----------------------------------------------------------------------------
// Connection lifecycle
// -----------------------------------------------------------------------------

func (s *MemoryStorage) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStorage) Target() string {
	return "memory"
}

// -----------------------------------------------------------------------------
// Discovery
// -----------------------------------------------------------------------------

func (s *MemoryStorage) FindOpenFeedback(ctx context.Context, limit int) ([]domain.FeedbackItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faults.Discover; err != nil {
		return nil, err
	}

	var items []domain.FeedbackItem
	for _, f := range s.feedback {
		if f.FeedbackText == "" {
			continue
		}
		if _, done := s.analyses[f.CustomerID]; done {
			continue
		}
		items = append(items, f)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].SubmittedAt.Equal(items[j].SubmittedAt) {
			return items[i].SubmittedAt.Before(items[j].SubmittedAt)
		}
		return items[i].CustomerID < items[j].CustomerID
	})
	return truncate(items, limit), nil
}

func (s *MemoryStorage) FindOpenPredictions(ctx context.Context, limit int) ([]domain.PredictionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faults.Discover; err != nil {
		return nil, err
	}

	var items []domain.PredictionItem
	for id, p := range s.predictions {
		if _, done := s.actions[id]; done {
			continue
		}
		item := domain.PredictionItem{CustomerID: id, Probability: p.probability, PredictedAt: p.predictedAt}
		if a, ok := s.analyses[id]; ok {
			item.Summary = a.Summary
			item.Sentiment = a.Sentiment
			item.Topics = a.Topics
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].PredictedAt.Equal(items[j].PredictedAt) {
			return items[i].PredictedAt.Before(items[j].PredictedAt)
		}
		return items[i].CustomerID < items[j].CustomerID
	})
	return truncate(items, limit), nil
}

func (s *MemoryStorage) FindUnscoredCustomers(ctx context.Context, limit int) ([]domain.CustomerItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faults.Discover; err != nil {
		return nil, err
	}

	var items []domain.CustomerItem
	for id, c := range s.customers {
		if _, done := s.predictions[id]; done {
			continue
		}
		items = append(items, domain.CustomerItem{
			CustomerID:       id,
			LastActivityDays: c.lastActivityDays,
			ComplaintsCount:  c.complaintsCount,
			Sentiment:        s.analyses[id].Sentiment,
			CreatedAt:        c.createdAt,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].CustomerID < items[j].CustomerID
	})
	return truncate(items, limit), nil
}

func truncate[T any](items []T, limit int) []T {
	if limit >= 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// -----------------------------------------------------------------------------
// Unit of work
// -----------------------------------------------------------------------------

// UnitOfWork buffers writes and applies them on Commit.
type UnitOfWork struct {
	store       *MemoryStorage
	analyses    []domain.FeedbackAnalysis
	actions     []domain.Action
	predictions []domain.Prediction
	done        bool
}

func (s *MemoryStorage) Begin(ctx context.Context) (storage.UnitOfWork, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faults.Begin; err != nil {
		return nil, err
	}
	return &UnitOfWork{store: s}, nil
}

func (u *UnitOfWork) SaveFeedbackAnalyses(ctx context.Context, rows []domain.FeedbackAnalysis) (int64, error) {
	if err := u.check(); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range rows {
		if u.store.hasAnalysis(r.CustomerID) || containsCustomer(u.analyses, r.CustomerID, func(a domain.FeedbackAnalysis) int64 { return a.CustomerID }) {
			continue
		}
		u.analyses = append(u.analyses, r)
		n++
	}
	return n, nil
}

func (u *UnitOfWork) SaveActions(ctx context.Context, rows []domain.Action) (int64, error) {
	if err := u.check(); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range rows {
		if u.store.hasAction(r.CustomerID) || containsCustomer(u.actions, r.CustomerID, func(a domain.Action) int64 { return a.CustomerID }) {
			continue
		}
		u.actions = append(u.actions, r)
		n++
	}
	return n, nil
}

func (u *UnitOfWork) SavePredictions(ctx context.Context, rows []domain.Prediction) (int64, error) {
	if err := u.check(); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range rows {
		if u.store.hasPrediction(r.CustomerID) || containsCustomer(u.predictions, r.CustomerID, func(p domain.Prediction) int64 { return p.CustomerID }) {
			continue
		}
		u.predictions = append(u.predictions, r)
		n++
	}
	return n, nil
}

func (u *UnitOfWork) Commit() error {
	if u.done {
		return storage.ErrTxDone
	}
	u.done = true

	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faults.Commit; err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, a := range u.analyses {
		if _, ok := s.analyses[a.CustomerID]; !ok {
			s.analyses[a.CustomerID] = a
		}
	}
	for _, a := range u.actions {
		if _, ok := s.actions[a.CustomerID]; !ok {
			s.actions[a.CustomerID] = a
		}
	}
	for _, p := range u.predictions {
		if _, ok := s.predictions[p.CustomerID]; !ok {
			s.predictions[p.CustomerID] = prediction{probability: p.ChurnProbability, predictedAt: now}
		}
	}
	return nil
}

func (u *UnitOfWork) Rollback() error {
	u.done = true
	u.analyses, u.actions, u.predictions = nil, nil, nil
	return nil
}

func (u *UnitOfWork) check() error {
	if u.done {
		return storage.ErrTxDone
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	return u.store.faults.Save
}

func (s *MemoryStorage) hasAnalysis(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.analyses[id]
	return ok
}

func (s *MemoryStorage) hasAction(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.actions[id]
	return ok
}

func (s *MemoryStorage) hasPrediction(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.predictions[id]
	return ok
}

func containsCustomer[T any](rows []T, id int64, key func(T) int64) bool {
	for _, r := range rows {
		if key(r) == id {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Audit
// -----------------------------------------------------------------------------

func (s *MemoryStorage) InsertAuditEvent(ctx context.Context, ev domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faults.Audit; err != nil {
		return err
	}
	s.audit = append(s.audit, ev)
	return nil
}
