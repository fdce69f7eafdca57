package config

import (
	"time"

	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/inference"
	"github.com/vietddude/retention/internal/infra/llm"
	redisclient "github.com/vietddude/retention/internal/infra/redis"
	"github.com/vietddude/retention/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig             `yaml:"server"`
	Database postgres.Config          `yaml:"database"`
	LLM      llm.Config               `yaml:"llm"`
	Agents   AgentsConfig             `yaml:"agents"`
	Risk     inference.RiskThresholds `yaml:"risk"`
	Redis    redisclient.Config       `yaml:"redis"`
	Logging  LoggingConfig            `yaml:"logging"`
}

// ServerConfig holds HTTP server settings. Port 0 disables the server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// AgentsConfig holds per-agent scheduling.
type AgentsConfig struct {
	NLP        AgentConfig `yaml:"nlp"`
	Action     AgentConfig `yaml:"action"`
	Prediction AgentConfig `yaml:"prediction"`
}

// AgentConfig holds settings for one agent.
type AgentConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Backoff   time.Duration `yaml:"backoff"` // wait after an impaired cycle
	BatchSize int           `yaml:"batch_size"`
	ModelPath string        `yaml:"model_path"` // prediction only
}

// For returns the settings of the named agent.
func (a AgentsConfig) For(name domain.AgentName) (AgentConfig, bool) {
	switch name {
	case domain.AgentNLP:
		return a.NLP, true
	case domain.AgentAction:
		return a.Action, true
	case domain.AgentPrediction:
		return a.Prediction, true
	}
	return AgentConfig{}, false
}
