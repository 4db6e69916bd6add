package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"ticketchain/internal/adapters/storage"
	"ticketchain/internal/analysis/llm"
	"ticketchain/internal/analysis/orchestrator"
	"ticketchain/internal/analysis/ports"
	"ticketchain/internal/analysis/service"
	"ticketchain/internal/analysis/store"
	"ticketchain/internal/analysis/store/migrations"
	"ticketchain/internal/chains/prompt"
	"ticketchain/internal/chains/resolver"
	"ticketchain/internal/events"
	"ticketchain/internal/mockchain"
	"ticketchain/internal/notification"
	tickets "ticketchain/internal/tickets/domain"
	"ticketchain/internal/tickets/repository"
	"ticketchain/platform/ai/openai"
	"ticketchain/platform/config"
	"ticketchain/platform/db"
	"ticketchain/platform/logger"
)

// mockPollInterval replaces the live polling cadence for canned runs.
const mockPollInterval = 20 * time.Millisecond

// app holds the collaborators one command invocation opened.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    store.Store
	bus      *events.InMemoryBus
	notifier *notification.Module
	archive  *storage.MinIOService
	closers  []func() error
}

// pipelineOptions select where tickets and model answers come from.
type pipelineOptions struct {
	mock     bool
	fixtures []mockchain.Fixture
}

func loadConfig(cmd *cobra.Command, g *globals) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	return cfg, logger.NewWithWriter(cfg.Env, level, cmd.ErrOrStderr()), nil
}

// loadApp reads the configuration and opens the analysis store.
func loadApp(ctx context.Context, cmd *cobra.Command, g *globals) (*app, error) {
	cfg, log, err := loadConfig(cmd, g)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close waits for pending event handlers and releases everything opened.
func (a *app) Close() {
	if a.bus != nil {
		a.bus.Wait()
	}
	var errs []error
	if a.notifier != nil {
		errs = append(errs, a.notifier.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("shutdown incomplete", "error", err)
	}
}

func (a *app) openStore(ctx context.Context) error {
	var st store.Store
	switch a.cfg.GetStoreDriver() {
	case config.StoreMemory:
		st = store.NewMemory()
	case config.StorePostgres:
		pool, err := connectPostgres(ctx, a.cfg, a.log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		st = store.NewPostgres(pool)
	default:
		s, err := store.OpenSQLite(ctx, a.cfg.GetSQLitePath())
		if err != nil {
			return fmt.Errorf("open analysis store at %s: %w", a.cfg.GetSQLitePath(), err)
		}
		st = s
	}

	if a.cfg.IsCacheEnabled() {
		rdb, err := store.NewRedisClient(a.cfg.GetRedisURL())
		if err != nil {
			_ = st.Close()
			return err
		}
		st = store.NewCached(st, rdb, a.cfg.GetFreshnessWindow(), a.log)
		a.log.Debug("analysis cache enabled")
	}
	a.store = st
	return nil
}

func connectPostgres(ctx context.Context, cfg *config.Config, log *logger.Logger) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		return nil, fmt.Errorf("connect analysis database: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate analysis database: %w", err)
	}
	return pool, nil
}

// buildPipeline wires the full pipeline around the open store.
func (a *app) buildPipeline(ctx context.Context, opts pipelineOptions) (*service.Pipeline, error) {
	repo, err := a.ticketRepository(opts)
	if err != nil {
		return nil, err
	}
	completer, runs, settings, err := a.capabilities(ctx, opts.mock)
	if err != nil {
		return nil, err
	}
	if err := a.openArchive(ctx); err != nil {
		return nil, err
	}
	a.startEvents()

	deps := service.Dependencies{
		Resolver: resolver.New(repo, a.log),
		Composer: prompt.New(prompt.Options{
			MaxChars:  a.cfg.GetPromptMaxChars(),
			NoteChars: a.cfg.GetPromptNoteChars(),
		}),
		Orchestrator: orchestrator.New(completer, runs, ports.SystemClock{}, settings, a.log),
		Store:        a.store,
		Bus:          a.bus,
		Log:          a.log,
	}
	if a.archive != nil {
		deps.Archive = a.archive
	}
	return service.NewPipeline(deps, service.SettingsFromConfig(a.cfg, a.cfg)), nil
}

func (a *app) ticketRepository(opts pipelineOptions) (repository.Repository, error) {
	if opts.mock {
		fixtures := opts.fixtures
		if len(fixtures) == 0 {
			fixtures = []mockchain.Fixture{mockchain.CH77()}
		}
		return mockchain.Merge(fixtures...), nil
	}
	if err := a.cfg.RequireTicketSources(); err != nil {
		return nil, err
	}

	opened := map[string]*gorm.DB{}
	var sources []repository.Source
	for _, src := range []struct {
		category tickets.Category
		dsn      string
	}{
		{tickets.CategoryDispatch, a.cfg.GetDispatchDSN()},
		{tickets.CategoryTurnup, a.cfg.GetTurnupDSN()},
	} {
		if src.dsn == "" {
			a.log.Warn("no ticket source configured; chains will be partial", "category", src.category.String())
			continue
		}
		gdb, ok := opened[src.dsn]
		if !ok {
			var err error
			if gdb, err = repository.OpenMySQL(src.dsn); err != nil {
				return nil, fmt.Errorf("%s tickets: %w", src.category, err)
			}
			opened[src.dsn] = gdb
			a.closers = append(a.closers, closeGorm(gdb))
		}
		sources = append(sources, repository.NewSQLSource(gdb, src.category, a.cfg.GetPostsPerTicket()))
	}
	return repository.NewSources(sources...), nil
}

func closeGorm(gdb *gorm.DB) func() error {
	return func() error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
}

// capabilities returns the Phase 1 completer and Phase 2 runs. Live
// capabilities share one rate limiter.
func (a *app) capabilities(ctx context.Context, mock bool) (ports.TextCompleter, ports.RunCapability, orchestrator.Settings, error) {
	settings := orchestrator.SettingsFromConfig(a.cfg, a.cfg)
	if mock {
		settings.DefaultModel = llm.CannedModelID
		settings.DefaultAssistantID = ""
		settings.PollInterval = mockPollInterval
		settings.MaxPollInterval = mockPollInterval
		settings.Phase1BaseBackoff = mockPollInterval
		settings.Phase1MaxBackoff = mockPollInterval
		return llm.NewCannedCompleter(), llm.NewCannedRuns(), settings, nil
	}

	if err := a.cfg.RequireModel(); err != nil {
		return nil, nil, settings, err
	}
	completer, err := llm.NewCompleter(ctx, a.cfg)
	if err != nil {
		return nil, nil, settings, err
	}
	runs := llm.NewAssistantRuns(openai.NewAssistantsClient(openai.AssistantsConfig{
		APIKey:  a.cfg.GetOpenAIAPIKey(),
		BaseURL: a.cfg.GetOpenAIBaseURL(),
		Timeout: a.cfg.GetModelTimeout(),
	}), a.log)
	if settings.DefaultAssistantID == "" {
		a.log.Warn("ASSISTANT_ID is not set; extraction runs will fail until setup-assistant has been run")
	}

	limiter := llm.NewLimiter(a.cfg.GetModelRequestsPerMinute())
	return llm.LimitCompleter(completer, limiter), llm.LimitRuns(runs, limiter), settings, nil
}

func (a *app) openArchive(ctx context.Context) error {
	if !a.cfg.IsMinIOEnabled() || a.archive != nil {
		return nil
	}
	svc, err := storage.NewMinIOService(a.cfg)
	if err != nil {
		return err
	}
	bucket := a.cfg.GetMinioBucketArtifacts()
	if err := withRetry(ctx, a.log, "ensure artifact bucket", 3, time.Second, func() error {
		return svc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		return fmt.Errorf("artifact bucket %s: %w", bucket, err)
	}
	a.archive = svc
	return nil
}

// startEvents creates the bus and subscribes the notification module,
// forwarding to Kafka when configured.
func (a *app) startEvents() {
	if a.bus != nil {
		return
	}
	a.bus = events.NewInMemoryBus(a.log)
	var publisher notification.Publisher
	if a.cfg.IsKafkaEnabled() {
		publisher = notification.NewKafkaPublisher(a.cfg.GetKafkaBrokers(), a.cfg.GetKafkaTopic())
		a.log.Debug("forwarding events to kafka", "topic", a.cfg.GetKafkaTopic())
	}
	a.notifier = notification.New(a.log, publisher)
	a.notifier.RegisterHandlers(a.bus)
}

// storeHealth reports whether the analysis store answers queries.
type storeHealth struct {
	store store.Store
}

func (h storeHealth) Ping(ctx context.Context) error {
	_, err := h.store.List(ctx, store.ListFilter{Limit: 1})
	return err
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
