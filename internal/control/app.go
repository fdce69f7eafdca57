package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/retention/internal/agent"
	"github.com/vietddude/retention/internal/audit"
	"github.com/vietddude/retention/internal/core/config"
	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/health"
	"github.com/vietddude/retention/internal/inference"
	"github.com/vietddude/retention/internal/infra/llm"
	redisclient "github.com/vietddude/retention/internal/infra/redis"
	"github.com/vietddude/retention/internal/infra/storage/postgres"
	"github.com/vietddude/retention/internal/model"
)

// Options overrides parts of the wiring.
type Options struct {
	// Migrate applies the embedded migrations after the first connect.
	Migrate bool

	// Connector replaces the PostgreSQL connector.
	Connector agent.Connector
}

// App runs a single agent with its audit trail, health server and optional
// Redis mirror.
type App struct {
	cfg    *config.AppConfig
	agent  domain.AgentName
	log    *slog.Logger
	runner *agent.Runner
	sink   *audit.Sink
	scorer *inference.ChurnScorer

	redisClient  *redisclient.Client
	healthServer *health.Server
}

// NewApp wires the named agent.
func NewApp(cfg *config.AppConfig, name domain.AgentName, opts Options) (*App, error) {
	if err := cfg.Validate(name); err != nil {
		return nil, err
	}
	agentCfg, _ := cfg.Agents.For(name)
	log := slog.Default().With("agent", string(name))

	a := &App{cfg: cfg, agent: name, log: log}

	var mirror audit.Mirror
	if cfg.Redis.Enabled() {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, audit mirror disabled", "error", err)
		} else {
			a.redisClient = client
			mirror = client
		}
	}
	a.sink = audit.NewSink(name, log, mirror)

	batch, err := a.buildBatch(agentCfg)
	if err != nil {
		return nil, err
	}

	connector := opts.Connector
	if connector == nil {
		connector = a.postgresConnector(opts.Migrate)
	}

	rc := agent.RunnerConfig{
		Agent:     name,
		Connector: connector,
		Batch:     batch,
		Audit:     a.sink,
		Interval:  agentCfg.Interval,
		Backoff:   agentCfg.Backoff,
		Log:       log,
	}
	if a.scorer != nil {
		modelPath := agentCfg.ModelPath
		rc.Started = func(ctx context.Context) {
			a.scorer.Use(LoadModel(ctx, modelPath, a.sink, a.log))
		}
	}
	a.runner = agent.NewRunner(rc)

	if cfg.Server.Port > 0 {
		a.healthServer = health.NewServer(health.NewMonitor(a.runner), cfg.Server.Port)
	}
	return a, nil
}

func (a *App) buildBatch(agentCfg config.AgentConfig) (agent.Batch, error) {
	switch a.agent {
	case domain.AgentNLP:
		client := llm.NewClient(a.cfg.LLM)
		pipeline := agent.NewNLPPipeline(inference.NewFeedbackAnalyzer(client), a.sink, client.Model())
		return agent.NewOrchestrator[domain.FeedbackItem, domain.FeedbackAnalysis](a.agent, pipeline, a.sink, agentCfg.BatchSize, a.log), nil
	case domain.AgentAction:
		client := llm.NewClient(a.cfg.LLM)
		pipeline := agent.NewActionPipeline(inference.NewActionGenerator(client), a.cfg.Risk, a.sink, client.Model())
		return agent.NewOrchestrator[domain.PredictionItem, domain.Action](a.agent, pipeline, a.sink, agentCfg.BatchSize, a.log), nil
	case domain.AgentPrediction:
		a.scorer = inference.NewChurnScorer(nil)
		pipeline := agent.NewPredictionPipeline(a.scorer, a.sink)
		return agent.NewOrchestrator[domain.CustomerItem, domain.Prediction](a.agent, pipeline, a.sink, agentCfg.BatchSize, a.log), nil
	}
	return nil, fmt.Errorf("unknown agent %q", a.agent)
}

// postgresConnector adapts postgres.Connector to the runner. Migrations run
// once, on the first successful connect.
func (a *App) postgresConnector(migrate bool) agent.Connector {
	pc := postgres.NewConnector(a.cfg.Database)
	var once sync.Once

	return agent.ConnectorFunc(func(ctx context.Context) (agent.Conn, error) {
		db, err := pc.Connect(ctx)
		if err != nil {
			return nil, err
		}

		if migrate {
			var migrateErr error
			once.Do(func() { migrateErr = postgres.Migrate(ctx, db) })
			if migrateErr != nil {
				_ = db.Close()
				return nil, migrateErr
			}
		}

		go db.CollectStats(context.WithoutCancel(ctx), 10*time.Second)
		return db, nil
	})
}

// Run blocks until ctx is cancelled or the database cannot be reached.
func (a *App) Run(ctx context.Context) error {
	if a.healthServer != nil {
		go func() {
			if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("Health server failed", "error", err)
			}
		}()
	}
	defer a.stop()

	a.log.Info("Agent starting", "database", a.cfg.Database.Target())
	err := a.runner.Run(ctx)
	a.log.Info("Agent stopped")
	return err
}

func (a *App) stop() {
	if a.healthServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.healthServer.Stop(shutdownCtx); err != nil {
			a.log.Warn("Failed to stop health server", "error", err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
}

// LoadModel reads the churn model and audits the attempt. It returns nil when
// the file cannot be loaded. A model that loads but cannot score (labels only,
// or columns that differ from the agent input) is audited as a failure and
// returned anyway; the scorer then fails every batch until a restart with a
// usable model.
func LoadModel(ctx context.Context, path string, rec agent.Recorder, log *slog.Logger) model.Model {
	rec.Record(ctx, domain.EventModelLoadStart, domain.StatusInfo, nil, "Loading model from "+path)

	m, err := model.Load(path)
	if err != nil {
		log.Error("Failed to load churn model", "path", path, "error", err)
		rec.Recordf(ctx, domain.EventModelLoadEnd, domain.StatusFailure, nil, "Model load failed: %v", err)
		return nil
	}
	if _, ok := m.(model.ProbabilityModel); !ok {
		log.Error("Churn model cannot produce probabilities", "path", path, "kind", m.Kind())
		rec.Recordf(ctx, domain.EventModelLoadEnd, domain.StatusFailure, nil,
			"Model kind %s has no probability output", m.Kind())
		return m
	}
	if err := inference.CheckFeatures(m); err != nil {
		log.Error("Churn model columns do not match agent input", "path", path, "features", m.Features())
		rec.Recordf(ctx, domain.EventModelLoadEnd, domain.StatusFailure, nil, "Model rejected: %v", err)
		return m
	}

	log.Info("Churn model loaded", "path", path, "version", m.Version(), "features", m.Features())
	rec.Recordf(ctx, domain.EventModelLoadEnd, domain.StatusSuccess, nil,
		"Model loaded (kind %s, version %s)", m.Kind(), m.Version())
	return m
}
