package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/inference"
	"github.com/vietddude/retention/internal/infra/llm"
	"github.com/vietddude/retention/internal/infra/storage/postgres"
)

// Default returns the configuration used when nothing is set.
func Default() AppConfig {
	return AppConfig{
		Database: postgres.Config{
			Driver:         postgres.DriverPgx,
			Host:           "db",
			Port:           5432,
			Name:           "pocdb",
			User:           "pocuser",
			SSLMode:        "disable",
			ConnectTimeout: 5 * time.Second,
			MaxAttempts:    5,
			RetryDelay:     10 * time.Second,
		},
		LLM: llm.Config{
			BaseURL: llm.DefaultBaseURL,
			Model:   llm.DefaultModel,
			Timeout: llm.DefaultTimeout,
		},
		Agents: AgentsConfig{
			NLP:        AgentConfig{Interval: 60 * time.Second, Backoff: 60 * time.Second, BatchSize: 10},
			Action:     AgentConfig{Interval: 60 * time.Second, Backoff: 60 * time.Second, BatchSize: 10},
			Prediction: AgentConfig{Interval: 45 * time.Second, BatchSize: 50, ModelPath: "models/churn_model.json"},
		},
		Risk:    inference.DefaultRiskThresholds,
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file layered over the defaults, then
// applies environment overrides. An empty path or a missing file means
// environment only.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			// Expand environment variables in the YAML content
			expandedData := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if cfg.Agents.Prediction.Backoff == 0 {
		cfg.Agents.Prediction.Backoff = 2 * cfg.Database.RetryDelay
	}
	return &cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *AppConfig, lookup lookupFunc) error {
	env := envReader{lookup: lookup}

	env.str("DATABASE_URL", &cfg.Database.URL)
	env.str("DB_DRIVER", &cfg.Database.Driver)
	env.str("DB_HOST", &cfg.Database.Host)
	env.int("DB_PORT", &cfg.Database.Port)
	env.str("POSTGRES_DB", &cfg.Database.Name)
	env.str("POSTGRES_USER", &cfg.Database.User)
	env.str("POSTGRES_PASSWORD", &cfg.Database.Password)
	env.seconds("DB_RETRY_DELAY", &cfg.Database.RetryDelay)

	env.str("GROQ_API_KEY", &cfg.LLM.APIKey)
	env.str("GROQ_MODEL", &cfg.LLM.Model)
	env.str("GROQ_BASE_URL", &cfg.LLM.BaseURL)

	// The nlp agent shares the ACTION_* settings unless NLP_* is set.
	env.seconds("ACTION_INTERVAL", &cfg.Agents.NLP.Interval)
	env.seconds("NLP_INTERVAL", &cfg.Agents.NLP.Interval)
	env.seconds("ACTION_INTERVAL", &cfg.Agents.Action.Interval)
	env.seconds("PREDICTION_INTERVAL", &cfg.Agents.Prediction.Interval)
	env.seconds("API_RETRY_DELAY", &cfg.Agents.NLP.Backoff)
	env.seconds("API_RETRY_DELAY", &cfg.Agents.Action.Backoff)
	env.int("ACTION_BATCH_SIZE", &cfg.Agents.NLP.BatchSize)
	env.int("NLP_BATCH_SIZE", &cfg.Agents.NLP.BatchSize)
	env.int("ACTION_BATCH_SIZE", &cfg.Agents.Action.BatchSize)
	env.int("PREDICTION_BATCH_SIZE", &cfg.Agents.Prediction.BatchSize)
	env.str("MODEL_PATH", &cfg.Agents.Prediction.ModelPath)

	env.float("HIGH_RISK_THRESHOLD", &cfg.Risk.High)
	env.float("MEDIUM_RISK_THRESHOLD", &cfg.Risk.Medium)

	env.str("REDIS_URL", &cfg.Redis.URL)
	env.str("LOG_LEVEL", &cfg.Logging.Level)
	env.int("HEALTH_PORT", &cfg.Server.Port)

	return env.err
}

// envReader keeps the first parse error so callers can chain lookups.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) fail(key, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = f
}

// seconds reads an integer number of seconds.
func (e *envReader) seconds(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = time.Duration(n) * time.Second
}

// Validate checks the settings the named agent needs to start.
func (c *AppConfig) Validate(agent domain.AgentName) error {
	ac, ok := c.Agents.For(agent)
	if !ok {
		return fmt.Errorf("unknown agent %q", agent)
	}
	if agent.UsesLLM() && c.LLM.APIKey == "" {
		return errors.New("GROQ_API_KEY is not set")
	}
	if ac.BatchSize <= 0 {
		return fmt.Errorf("%s batch size must be positive, got %d", agent, ac.BatchSize)
	}
	if ac.Interval <= 0 || ac.Backoff <= 0 {
		return fmt.Errorf("%s interval and backoff must be positive", agent)
	}
	if c.Risk.Medium < 0 || c.Risk.High > 1 || c.Risk.Medium > c.Risk.High {
		return fmt.Errorf("risk thresholds must satisfy 0 <= medium (%v) <= high (%v) <= 1", c.Risk.Medium, c.Risk.High)
	}
	if c.Database.MaxAttempts <= 0 {
		return errors.New("database max_attempts must be positive")
	}
	switch c.Database.Driver {
	case postgres.DriverPgx, postgres.DriverPQ:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}
