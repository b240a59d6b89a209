package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/adjust"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/backtest"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/external/finmind"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/forecast"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/store"
	"github.com/dansontsui/taiwan-stock-system-sub002/pkg/config"
	"github.com/dansontsui/taiwan-stock-system-sub002/pkg/database"
	"github.com/dansontsui/taiwan-stock-system-sub002/pkg/logger"
	"github.com/dansontsui/taiwan-stock-system-sub002/pkg/redis"
)

// deps bundles the wired application components commands run against.
type deps struct {
	cfg   *config.Config
	log   zerolog.Logger
	db    *database.DB
	cache *redis.Client

	repo   contracts.Repository
	pg     *store.PostgresRepository
	model  *adjust.Model
	orch   *forecast.Orchestrator
	engine *backtest.Engine
}

// initDeps wires the full dependency graph. The adjustment model loads
// its latest artifact; a missing artifact leaves forecasts on the
// formula path.
func initDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	cache, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	pg := store.NewPostgresRepository(db.Pool)
	var repo contracts.Repository = pg
	if cache.Enabled() {
		repo = store.NewCachedRepository(pg, redis.NewCache(cache, "predictor"), log)
	}

	model := adjust.NewModel(contracts.DefaultModelConfig(), pg, log)
	if err := model.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("adjustment model unavailable, forecasts fall back to formulas")
	}

	fcfg := contracts.DefaultForecastConfig()
	bcfg := contracts.DefaultBacktestConfig()

	orch, err := forecast.NewOrchestrator(repo, model, fcfg, bcfg, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("forecast configuration: %w", err)
	}
	engine, err := backtest.NewEngine(repo, orch, bcfg, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("backtest configuration: %w", err)
	}

	return &deps{
		cfg:    cfg,
		log:    log,
		db:     db,
		cache:  cache,
		repo:   repo,
		pg:     pg,
		model:  model,
		orch:   orch,
		engine: engine,
	}, nil
}

// close releases database and cache connections.
func (d *deps) close() {
	d.db.Close()
	_ = d.cache.Close()
}

// newCollector builds the FinMind collector against the postgres repository.
func (d *deps) newCollector() *finmind.Collector {
	client := finmind.NewClient(d.cfg.FinMind.Token, d.log).WithBaseURL(d.cfg.FinMind.BaseURL)
	return finmind.NewCollector(client, d.pg, d.log)
}

// newTrainer builds the adjustment model trainer.
func (d *deps) newTrainer() *adjust.Trainer {
	return adjust.NewTrainer(d.repo, d.orch, d.model, contracts.DefaultBacktestConfig(), contracts.DefaultModelConfig(), d.log)
}
