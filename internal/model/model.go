// Package model loads the serialized churn model used by the prediction agent.
//
// Training happens elsewhere; this package only reads the exported
// parameters and evaluates them.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

const (
	KindLogisticRegression = "logistic_regression"
	KindClassifier         = "classifier"
)

var (
	// ErrFeatureMismatch is returned when the input vector does not match the
	// feature list the model was trained with.
	ErrFeatureMismatch = errors.New("feature vector does not match model")

	// ErrUnknownKind is returned by Load for an unsupported model kind.
	ErrUnknownKind = errors.New("unknown model kind")
)

// Model is any loaded model.
type Model interface {
	Kind() string
	Version() string
	Features() []string
}

// ProbabilityModel is a model that can produce a class-1 probability.
type ProbabilityModel interface {
	Model
	PredictProba(features []float64) (float64, error)
}

// File is the on-disk JSON layout.
type File struct {
	Kind         string    `json:"kind"`
	Version      string    `json:"version"`
	Features     []string  `json:"features"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Threshold    float64   `json:"threshold,omitempty"`
}

// Load reads and validates a model file.
func Load(path string) (Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a model from its JSON form.
func Parse(raw []byte) (Model, error) {
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	if len(f.Features) == 0 {
		return nil, errors.New("model declares no features")
	}
	if len(f.Coefficients) != len(f.Features) {
		return nil, fmt.Errorf("model has %d coefficients for %d features", len(f.Coefficients), len(f.Features))
	}

	lr := &LogisticRegression{
		version:      f.Version,
		features:     f.Features,
		coefficients: f.Coefficients,
		intercept:    f.Intercept,
	}

	switch f.Kind {
	case "", KindLogisticRegression:
		return lr, nil
	case KindClassifier:
		threshold := f.Threshold
		if threshold == 0 {
			threshold = 0.5
		}
		return &Classifier{lr: lr, threshold: threshold}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, f.Kind)
	}
}

// LogisticRegression is sigmoid(intercept + coefficients·features).
type LogisticRegression struct {
	version      string
	features     []string
	coefficients []float64
	intercept    float64
}

func (m *LogisticRegression) Kind() string       { return KindLogisticRegression }
func (m *LogisticRegression) Version() string    { return m.version }
func (m *LogisticRegression) Features() []string { return m.features }

// PredictProba returns the probability of churn for one feature vector.
func (m *LogisticRegression) PredictProba(features []float64) (float64, error) {
	if len(features) != len(m.coefficients) {
		return 0, fmt.Errorf("%w: got %d values, want %d", ErrFeatureMismatch, len(features), len(m.coefficients))
	}
	z := m.intercept
	for i, x := range features {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("feature %s is not finite", m.features[i])
		}
		z += m.coefficients[i] * x
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// Classifier only exposes a label. It has no probability capability.
type Classifier struct {
	lr        *LogisticRegression
	threshold float64
}

func (c *Classifier) Kind() string       { return KindClassifier }
func (c *Classifier) Version() string    { return c.lr.version }
func (c *Classifier) Features() []string { return c.lr.features }

// Predict returns 1 for churn, 0 otherwise.
func (c *Classifier) Predict(features []float64) (int, error) {
	p, err := c.lr.PredictProba(features)
	if err != nil {
		return 0, err
	}
	if p >= c.threshold {
		return 1, nil
	}
	return 0, nil
}
