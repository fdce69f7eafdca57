package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/retention/internal/agent"
	"github.com/vietddude/retention/internal/core/domain"
)

type stubRunner struct {
	status agent.Status
}

func (s *stubRunner) Status() agent.Status { return s.status }

func running(impaired int) *stubRunner {
	return &stubRunner{status: agent.Status{
		Agent:               domain.AgentNLP,
		Running:             true,
		Connected:           true,
		Cycles:              4,
		LastCycleAt:         time.Now(),
		LastImpaired:        impaired > 0,
		ConsecutiveImpaired: impaired,
	}}
}

func TestMonitor_Healthy(t *testing.T) {
	report := NewMonitor(running(0)).CheckHealth()
	health := report["nlp"]

	if health.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", health.Status)
	}
	if health.LastCycleAt == nil {
		t.Error("expected last cycle time")
	}
}

func TestMonitor_Degraded(t *testing.T) {
	report := NewMonitor(running(1)).CheckHealth()

	if got := report["nlp"].Status; got != StatusDegraded {
		t.Errorf("expected degraded, got %s", got)
	}
}

func TestMonitor_Critical(t *testing.T) {
	report := NewMonitor(running(CriticalAfter)).CheckHealth()
	if got := report["nlp"].Status; got != StatusCritical {
		t.Errorf("expected critical, got %s", got)
	}

	stopped := running(0)
	stopped.status.Connected = false
	report = NewMonitor(stopped).CheckHealth()
	if got := report["nlp"].Status; got != StatusCritical {
		t.Errorf("disconnected runner should be critical, got %s", got)
	}
}

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name     string
		source   *stubRunner
		wantCode int
		want     SystemStatus
	}{
		{"healthy", running(0), http.StatusOK, StatusHealthy},
		{"degraded", running(1), http.StatusOK, StatusDegraded},
		{"critical", running(5), http.StatusServiceUnavailable, StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(NewMonitor(tt.source), 0)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body["status"] != string(tt.want) {
				t.Errorf("expected %s, got %s", tt.want, body["status"])
			}
		})
	}
}

func TestServer_DetailedAndMetrics(t *testing.T) {
	srv := NewServer(NewMonitor(running(0)), 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	if !strings.Contains(rec.Body.String(), `"agent":"nlp"`) {
		t.Errorf("detailed report missing agent: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("metrics endpoint returned %d", rec.Code)
	}
}
