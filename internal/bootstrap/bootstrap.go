// Package bootstrap wires configuration, infrastructure adapters and
// use cases into a runnable application. Both binaries share this
// composition; the api never touches the executor and the worker never
// opens an HTTP listener, but building from one place keeps the wiring
// honest.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/antonkurs/docextract/internal/config"
	"github.com/antonkurs/docextract/internal/core/ports"
	"github.com/antonkurs/docextract/internal/core/usecase"
	natsqueue "github.com/antonkurs/docextract/internal/infrastructure/queue/nats"
	"github.com/antonkurs/docextract/internal/infrastructure/repository/postgres"
	"github.com/antonkurs/docextract/internal/infrastructure/resilience"
	"github.com/antonkurs/docextract/internal/infrastructure/rules"
	"github.com/antonkurs/docextract/internal/infrastructure/semantic"
	"github.com/antonkurs/docextract/internal/infrastructure/sink"
	excelsink "github.com/antonkurs/docextract/internal/infrastructure/sink/excel"
	graphsink "github.com/antonkurs/docextract/internal/infrastructure/sink/graph"
	pgsink "github.com/antonkurs/docextract/internal/infrastructure/sink/postgres"
)

type App struct {
	Config config.Config

	Queue   *natsqueue.Queue
	Repo    ports.RunRepository
	StartUC ports.RunStarter
	ExecUC  ports.RunExecutor
	Replay  ports.RunReplayer
	QueryUC ports.RunReader

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewRunRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure run schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSRunSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init run queue: %w", err)
	}

	var extractor ports.SemanticExtractor
	if cfg.SemanticEnabled {
		extractor = semantic.New(cfg.SemanticURL, cfg.SemanticModel,
			semantic.WithRateLimit(cfg.SemanticRatePerSec, cfg.SemanticRateBurst),
			semantic.WithExecutor(executor),
		)
	}

	pipelineCfg, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("load pipeline rules: %w", err)
	}
	if pipelineCfg.ReviewThreshold == 0 {
		pipelineCfg.ReviewThreshold = cfg.ReviewThreshold
	}

	sinks, closeGraph, err := buildSinks(ctx, cfg, db, executor)
	if err != nil {
		return nil, fmt.Errorf("build sinks: %w", err)
	}

	corrections := natsqueue.NewCorrectionPublisher(queue, cfg.NATSCorrectionsTopic)

	execUC := usecase.NewExecuteRunUseCase(repo, extractor, sinks, corrections, pipelineCfg)

	return &App{
		Config:  cfg,
		Queue:   queue,
		Repo:    repo,
		StartUC: usecase.NewStartRunUseCase(repo, queue),
		ExecUC:  execUC,
		Replay:  usecase.NewReplayRunUseCase(execUC),
		QueryUC: usecase.NewRunQueryUseCase(repo),

		closeFn: func() {
			queue.Close()
			if closeGraph != nil {
				closeGraph()
			}
			_ = db.Close()
		},
	}, nil
}

// buildSinks assembles the enabled sinks, each behind the shared retry
// and breaker policy.
func buildSinks(ctx context.Context, cfg config.Config, db *sql.DB, executor *resilience.Executor) ([]ports.Sink, func(), error) {
	var sinks []ports.Sink
	var closeGraph func()

	if cfg.SinkPostgresEnabled {
		relational := pgsink.NewSink(db)
		if err := relational.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure sink schema: %w", err)
		}
		sinks = append(sinks, sink.WithResilience(relational, executor))
	}
	if cfg.SinkExcelEnabled {
		sinks = append(sinks, sink.WithResilience(excelsink.NewSink(cfg.SinkExcelPath), executor))
	}
	if cfg.SinkGraphEnabled {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI,
			neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
		if err != nil {
			return nil, nil, fmt.Errorf("open neo4j: %w", err)
		}
		graph := graphsink.NewSink(driver, cfg.Neo4jDatabase)
		sinks = append(sinks, sink.WithResilience(graph, executor))
		closeGraph = func() {
			_ = graph.Close(context.Background())
		}
	}
	return sinks, closeGraph, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
