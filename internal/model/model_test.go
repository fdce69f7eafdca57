package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const lrJSON = `{
	"kind": "logistic_regression",
	"version": "2024-05-01",
	"features": ["last_activity_days", "complaints_count", "sentiment_numeric"],
	"coefficients": [0.05, 0.8, -1.2],
	"intercept": -3.0
}`

func TestLoad_LogisticRegression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "churn_model.json")
	if err := os.WriteFile(path, []byte(lrJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	pm, ok := m.(ProbabilityModel)
	if !ok {
		t.Fatal("logistic regression must expose probabilities")
	}
	if m.Version() != "2024-05-01" {
		t.Errorf("unexpected version %q", m.Version())
	}

	// z = -3 + 0.05*20 + 0.8*1 - 1.2*(-1) = 0
	p, err := pm.PredictProba([]float64{20, 1, -1})
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	if math.Abs(p-0.5) > 1e-9 {
		t.Errorf("expected 0.5, got %v", p)
	}
}

func TestPredictProba_FeatureMismatch(t *testing.T) {
	m, err := Parse([]byte(lrJSON))
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.(ProbabilityModel).PredictProba([]float64{1, 2})
	if !errors.Is(err, ErrFeatureMismatch) {
		t.Fatalf("expected ErrFeatureMismatch, got %v", err)
	}
}

func TestParse_ClassifierHasNoProbabilities(t *testing.T) {
	m, err := Parse([]byte(`{"kind": "classifier", "features": ["a"], "coefficients": [1], "intercept": 0}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, ok := m.(ProbabilityModel); ok {
		t.Fatal("classifier must not satisfy ProbabilityModel")
	}
	label, err := m.(*Classifier).Predict([]float64{2})
	if err != nil || label != 1 {
		t.Errorf("expected label 1, got %d (%v)", label, err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":        `{`,
		"no features":     `{"coefficients": []}`,
		"length mismatch": `{"features": ["a", "b"], "coefficients": [1]}`,
		"unknown kind":    `{"kind": "forest", "features": ["a"], "coefficients": [1]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
