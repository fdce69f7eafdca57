package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/retention/internal/agent"
	"github.com/vietddude/retention/internal/audit"
	"github.com/vietddude/retention/internal/core/config"
	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/inference"
	"github.com/vietddude/retention/internal/infra/storage/memory"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryConnector(store *memory.MemoryStorage) agent.Connector {
	return agent.ConnectorFunc(func(ctx context.Context) (agent.Conn, error) {
		return store, nil
	})
}

func testConfig() *config.AppConfig {
	cfg := config.Default()
	cfg.LLM.APIKey = "test-key"
	cfg.Agents.NLP.Interval = 10 * time.Millisecond
	cfg.Agents.NLP.Backoff = 10 * time.Millisecond
	cfg.Agents.Prediction.Interval = 10 * time.Millisecond
	cfg.Agents.Prediction.Backoff = 10 * time.Millisecond
	return &cfg
}

// runUntil runs app in the background until cond holds or the deadline passes.
func runUntil(t *testing.T, app *App, cond func() bool) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			cancel()
			<-done
			t.Fatal("condition not reached before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after cancel")
		return nil
	}
}

func TestApp_NLPEndToEnd(t *testing.T) {
	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"llama3-8b-8192","choices":[{"message":{"role":"assistant","content":"SUMMARY: Fees too high.\nSENTIMENT: Negative\nTOPICS: fees"}}]}`)
	}))
	defer llmServer.Close()

	store := memory.NewMemoryStorage()
	store.AddFeedback(1, "your fees are outrageous", time.Now().Add(-time.Hour))
	store.AddFeedback(2, "app keeps crashing", time.Now())

	cfg := testConfig()
	cfg.LLM.BaseURL = llmServer.URL

	app, err := NewApp(cfg, domain.AgentNLP, Options{Connector: memoryConnector(store)})
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	err = runUntil(t, app, func() bool { return len(store.Analyses()) == 2 })
	if err != nil {
		t.Fatalf("Run returned %v", err)
	}

	if got := store.Analyses()[1].Sentiment; got != "Negative" {
		t.Errorf("expected Negative sentiment, got %q", got)
	}

	var connected, batches int
	for _, ev := range store.AuditEvents() {
		if ev.AgentName != domain.AgentNLP {
			t.Errorf("unexpected agent name %q", ev.AgentName)
		}
		switch ev.EventType {
		case domain.EventDBConnect:
			connected++
		case domain.EventBatchEnd:
			batches++
		}
	}
	if connected == 0 || batches == 0 {
		t.Errorf("expected connect and batch audit rows, got %d and %d", connected, batches)
	}
}

func TestApp_PredictionLoadsModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "churn_model.json")
	model := `{"features":["last_activity_days","complaints_count","sentiment_numeric"],"coefficients":[0.1,0.5,-1],"intercept":-2}`
	if err := os.WriteFile(path, []byte(model), 0o644); err != nil {
		t.Fatal(err)
	}

	store := memory.NewMemoryStorage()
	store.AddCustomer(7, 30, 2, time.Now())

	cfg := testConfig()
	cfg.LLM.APIKey = ""
	cfg.Agents.Prediction.ModelPath = path

	app, err := NewApp(cfg, domain.AgentPrediction, Options{Connector: memoryConnector(store)})
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	err = runUntil(t, app, func() bool { return len(store.Predictions()) == 1 })
	if err != nil {
		t.Fatalf("Run returned %v", err)
	}

	var loaded bool
	for _, ev := range store.AuditEvents() {
		if ev.EventType == domain.EventModelLoadEnd && ev.Status == domain.StatusSuccess {
			loaded = true
		}
	}
	if !loaded {
		t.Error("expected MODEL_LOAD_END SUCCESS")
	}
}

func TestApp_MissingAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.APIKey = ""

	_, err := NewApp(cfg, domain.AgentAction, Options{Connector: memoryConnector(memory.NewMemoryStorage())})
	if err == nil || !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestApp_ConnectFailureIsFatal(t *testing.T) {
	exhausted := errors.New("exhausted")
	cfg := testConfig()

	app, err := NewApp(cfg, domain.AgentNLP, Options{
		Connector: agent.ConnectorFunc(func(ctx context.Context) (agent.Conn, error) {
			return nil, exhausted
		}),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := app.Run(context.Background()); !errors.Is(err, exhausted) {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestLoadModel_MissingFile(t *testing.T) {
	store := memory.NewMemoryStorage()
	sink := audit.NewSink(domain.AgentPrediction, slogDiscard(), nil)
	sink.Bind(store)

	m := LoadModel(context.Background(), filepath.Join(t.TempDir(), "missing.json"), sink, slogDiscard())
	if m != nil {
		t.Fatal("expected nil model")
	}

	events := store.AuditEvents()
	if len(events) != 2 {
		t.Fatalf("expected start and end events, got %d", len(events))
	}
	if events[0].EventType != domain.EventModelLoadStart || events[1].EventType != domain.EventModelLoadEnd {
		t.Errorf("unexpected events %+v", events)
	}
	if events[1].Status != domain.StatusFailure {
		t.Errorf("expected FAILURE, got %s", events[1].Status)
	}
}

func TestLoadModel_ColumnOrderMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "churn_model.json")
	swapped := `{"features":["complaints_count","last_activity_days","sentiment_numeric"],"coefficients":[0.62,0.041,-0.95],"intercept":-2.3}`
	if err := os.WriteFile(path, []byte(swapped), 0o644); err != nil {
		t.Fatal(err)
	}

	store := memory.NewMemoryStorage()
	store.AddCustomer(4, 90, 3, time.Now())
	sink := audit.NewSink(domain.AgentPrediction, slogDiscard(), nil)
	sink.Bind(store)

	m := LoadModel(context.Background(), path, sink, slogDiscard())
	if m == nil {
		t.Fatal("expected the parsed model to be returned")
	}
	events := store.AuditEvents()
	if last := events[len(events)-1]; last.EventType != domain.EventModelLoadEnd || last.Status != domain.StatusFailure {
		t.Fatalf("expected MODEL_LOAD_END FAILURE, got %+v", last)
	}

	scorer := inference.NewChurnScorer(m)
	batch := agent.NewOrchestrator[domain.CustomerItem, domain.Prediction](
		domain.AgentPrediction, agent.NewPredictionPipeline(scorer, sink), sink, 50, slogDiscard())
	report := batch.RunBatch(context.Background(), store)
	if report.Saved != 0 || report.Failed != 1 {
		t.Errorf("mismatched model must fail the whole batch, got %+v", report)
	}
	if len(store.Predictions()) != 0 {
		t.Errorf("no prediction may be written, got %v", store.Predictions())
	}
}
