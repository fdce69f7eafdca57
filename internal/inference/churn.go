package inference

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/model"
)

var (
	// ErrNoModel means no model was loaded at startup.
	ErrNoModel = errors.New("no churn model loaded")

	// ErrNoProbability means the loaded model can only produce labels.
	ErrNoProbability = errors.New("loaded model does not produce probabilities")
)

// ChurnScorer evaluates the churn model for one customer at a time.
type ChurnScorer struct {
	model model.Model
}

func NewChurnScorer(m model.Model) *ChurnScorer {
	return &ChurnScorer{model: m}
}

// Use replaces the model. It must not race with Score; the runtime calls it
// once, before the first batch.
func (s *ChurnScorer) Use(m model.Model) {
	s.model = m
}

// Ready reports whether the scorer can produce probabilities at all. A
// non-nil error fails a whole batch before any item is scored.
func (s *ChurnScorer) Ready() error {
	if s.model == nil {
		return ErrNoModel
	}
	if _, ok := s.model.(model.ProbabilityModel); !ok {
		return fmt.Errorf("%w (kind %s)", ErrNoProbability, s.model.Kind())
	}
	return CheckFeatures(s.model)
}

// CheckFeatures rejects a model whose columns are not exactly the ones
// ChurnFeatures.Vector produces, in the same order.
func CheckFeatures(m model.Model) error {
	if !slices.Equal(m.Features(), domain.ChurnFeatureNames) {
		return fmt.Errorf("%w: model columns %v, want %v", model.ErrFeatureMismatch, m.Features(), domain.ChurnFeatureNames)
	}
	return nil
}

// Score predicts the churn probability for one customer. Model errors are
// permanent: the same features will fail the same way.
func (s *ChurnScorer) Score(item domain.CustomerItem) domain.Outcome[domain.Prediction] {
	if err := s.Ready(); err != nil {
		return domain.Failed[domain.Prediction](domain.OutcomePermanentFailure, err.Error())
	}

	p, err := s.model.(model.ProbabilityModel).PredictProba(item.Features().Vector())
	if err != nil {
		return domain.Failed[domain.Prediction](domain.OutcomePermanentFailure, err.Error())
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return domain.Failed[domain.Prediction](domain.OutcomePermanentFailure, fmt.Sprintf("probability %v out of range", p))
	}

	return domain.Succeeded(domain.Prediction{CustomerID: item.CustomerID, ChurnProbability: p})
}
