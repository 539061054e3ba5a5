// Package app builds the long-lived services of the crawler and runs crawls
// against them. It is shared by the CLI and the status server.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/aggregate"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/classifier"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/clock/system"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/config"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/dates"
	collyfetcher "github.com/JakeFAU/sitemap-coverage-crawler/internal/fetcher/colly"
	idgen "github.com/JakeFAU/sitemap-coverage-crawler/internal/id/uuid"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/metrics"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/profile"
	gcppublisher "github.com/JakeFAU/sitemap-coverage-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/report"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/scheduler"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/sitemap"
	gcsstorage "github.com/JakeFAU/sitemap-coverage-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sitemap-coverage-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/sitemap-coverage-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/sitemap-coverage-crawler/internal/storage/postgres"
)

// Run statuses reported to metrics and Postgres.
const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
	statusCanceled  = "canceled"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *profile.Registry
	fetcher   crawler.Fetcher
	clock     crawler.Clock
	ids       *idgen.Generator
	writers   []*report.Writer
	records   *pgstore.RecordStore
	publisher crawler.Publisher

	gcsClient *storage.Client
	pubsub    *gcppublisher.Publisher
}

// Option customizes Build. Injected services take precedence over the ones
// Build would derive from the config.
type Option func(*App)

// WithRegistry injects the profile registry.
func WithRegistry(registry *profile.Registry) Option {
	return func(a *App) { a.registry = registry }
}

// WithFetcher injects the sitemap fetcher.
func WithFetcher(fetcher crawler.Fetcher) Option {
	return func(a *App) { a.fetcher = fetcher }
}

// WithClock overrides the clock used to stamp run summaries.
func WithClock(clock crawler.Clock) Option {
	return func(a *App) { a.clock = clock }
}

// WithReportStores replaces the configured report destinations.
func WithReportStores(stores ...crawler.BlobStore) Option {
	return func(a *App) {
		a.writers = []*report.Writer{
			report.NewWriter(report.Config{Sort: a.cfg.Report.Sort}, a.logger.Named("report"), stores...),
		}
	}
}

// WithRecordStore injects the Postgres record store.
func WithRecordStore(store *pgstore.RecordStore) Option {
	return func(a *App) { a.records = store }
}

// WithPublisher injects the run-summary publisher. pubsub.topic still has to
// be set for notifications to be sent.
func WithPublisher(publisher crawler.Publisher) Option {
	return func(a *App) { a.publisher = publisher }
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    idgen.New(),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.logger.Info("building application dependencies")
	if a.registry == nil {
		registry, err := profile.Load(cfg.Profiles.File, cfg.Profiles.SharedListsFile)
		if err != nil {
			return nil, fmt.Errorf("load profiles: %w", err)
		}
		a.registry = registry
	}
	if a.fetcher == nil {
		a.fetcher = a.setupFetcher()
	}
	if a.writers == nil {
		if err := a.setupStorage(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	if a.records == nil {
		if err := a.setupDatabase(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	if a.publisher == nil {
		if err := a.setupPublisher(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.logger.Info("application services initialized", zap.Strings("outlets", a.registry.IDs()))
	return a, nil
}

func (a *App) setupFetcher() crawler.Fetcher {
	fetchCfg := collyfetcher.Config{
		UserAgent:    a.cfg.Crawl.UserAgent,
		Timeout:      a.cfg.HTTP.Timeout,
		MaxBodyBytes: a.cfg.HTTP.MaxBodyBytes,
	}
	if a.cfg.Crawl.MaxRPSPerHost > 0 {
		fetchCfg.Limiter = ratelimit.New(ratelimit.Config{DefaultRPS: a.cfg.Crawl.MaxRPSPerHost, DefaultBurst: 1})
		a.logger.Info("per-host rate limit enabled", zap.Float64("rps", a.cfg.Crawl.MaxRPSPerHost))
	}
	a.logger.Info("using colly fetcher",
		zap.String("user_agent", fetchCfg.UserAgent),
		zap.Duration("timeout", fetchCfg.Timeout),
	)
	return collyfetcher.New(fetchCfg)
}

func (a *App) setupStorage(ctx context.Context) error {
	reportCfg := report.Config{Sort: a.cfg.Report.Sort}
	if a.cfg.Report.Dir != "" {
		local, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Report.Dir})
		if err != nil {
			return fmt.Errorf("local report store init failed: %w", err)
		}
		a.writers = append(a.writers, report.NewWriter(reportCfg, a.logger.Named("report"), local))
		a.logger.Debug("local report store", zap.String("dir", a.cfg.Report.Dir))
	}
	if a.cfg.Report.GCSBucket != "" {
		store, client, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: a.cfg.Report.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs report store init failed: %w", err)
		}
		a.gcsClient = client
		gcsCfg := reportCfg
		gcsCfg.Prefix = a.cfg.Report.GCSPrefix
		a.writers = append(a.writers, report.NewWriter(gcsCfg, a.logger.Named("report"), store))
		a.logger.Info("GCS report store", zap.String("bucket", a.cfg.Report.GCSBucket))
	}
	if len(a.writers) == 0 {
		a.logger.Warn("no report destination configured, CSV reports are disabled")
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.Postgres.DSN == "" {
		a.logger.Debug("no DSN specified, skipping Postgres record store")
		return nil
	}
	store, err := pgstore.NewRecordStore(ctx, pgstore.RecordStoreConfig{
		DSN:      a.cfg.Postgres.DSN,
		Table:    a.cfg.Postgres.Table,
		MaxConns: a.cfg.Postgres.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	a.records = store
	if a.cfg.Postgres.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("record store schema: %w", err)
		}
	}
	a.logger.Info("record store initialized", zap.String("table", a.cfg.Postgres.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.Topic == "" {
		a.logger.Debug("no Pub/Sub topic configured, run summaries are not published")
		return nil
	}
	publisher, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pubsub = publisher
	a.publisher = publisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

// Close releases the clients Build opened.
func (a *App) Close() {
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.records != nil {
		a.records.Close()
	}
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// RunOptions selects the outlet and overrides config values for one run.
// Zero values fall back to the config and the outlet profile.
type RunOptions struct {
	RunID           uuid.UUID
	Outlet          string
	Window          dates.Window
	Workers         int
	DefaultCategory string
}

// RunResult is everything a finished run produced.
type RunResult struct {
	Summary crawler.Summary         `json:"summary"`
	Years   []aggregate.YearSummary `json:"years"`
	Reports []string                `json:"reports,omitempty"`
}

// plan is a validated run, ready to execute.
type plan struct {
	runID      uuid.UUID
	profile    profile.Profile
	window     dates.Window
	sched      scheduler.Config
	classifier *classifier.Classifier
	resolver   *dates.Resolver
}

// prepare validates opts against the registry and config without fetching
// anything. Invalid options are reported as *crawler.ConfigError.
func (a *App) prepare(opts RunOptions) (*plan, error) {
	p, err := a.registry.Get(opts.Outlet)
	if err != nil {
		return nil, err
	}

	window := opts.Window
	if window.Start == 0 {
		window.Start = a.cfg.Crawl.StartYear
	}
	if window.End == 0 {
		window.End = a.cfg.Crawl.EndYear
	}
	if err := window.Validate(); err != nil {
		return nil, crawler.NewConfigError("window", err)
	}

	policy, err := p.EffectivePolicy(opts.DefaultCategory, a.cfg.Crawl.DefaultCategory)
	if err != nil {
		return nil, crawler.NewConfigError("default_category", err)
	}

	resolver, err := dates.NewResolver(p.Dates)
	if err != nil {
		return nil, crawler.NewConfigError("dates", err)
	}

	workers := a.cfg.Crawl.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	delay := a.cfg.Crawl.Delay
	if p.Delay > 0 {
		delay = p.Delay
	}
	maxSitemaps := p.MaxSitemaps
	if a.cfg.Crawl.MaxSitemaps > 0 {
		maxSitemaps = a.cfg.Crawl.MaxSitemaps
	}
	schedCfg := scheduler.Config{
		Outlet:           p.ID,
		Window:           window,
		Workers:          workers,
		QueueDepth:       a.cfg.Crawl.QueueDepth,
		Delay:            delay,
		MaxSitemaps:      maxSitemaps,
		ChildMustContain: p.ChildMustContain,
	}
	if err := schedCfg.Validate(); err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == uuid.Nil {
		runID, err = a.ids.NewRunID()
		if err != nil {
			return nil, err
		}
	}

	return &plan{
		runID:      runID,
		profile:    p,
		window:     window,
		sched:      schedCfg,
		classifier: classifier.New(p, classifier.WithDefaultPolicy(policy)),
		resolver:   resolver,
	}, nil
}

// Run crawls one outlet and stores the results in every configured
// destination. Configuration problems and a missing root sitemap are fatal
// before any output is produced.
func (a *App) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	pl, err := a.prepare(opts)
	if err != nil {
		metrics.ObserveRun(opts.Outlet, statusFailed)
		return RunResult{}, err
	}
	return a.execute(ctx, pl)
}

func (a *App) execute(ctx context.Context, pl *plan) (RunResult, error) {
	outlet := pl.profile.ID
	logger := a.logger.With(zap.String("outlet", outlet), zap.String("run_id", pl.runID.String()))

	roots, err := sitemap.NewRootResolver(a.fetcher, logger.Named("root")).Resolve(ctx, pl.profile.Root, pl.window)
	if err != nil {
		logger.Error("root sitemap unavailable", zap.String("root", pl.profile.Root.Describe()), zap.Error(err))
		metrics.ObserveRun(outlet, statusFailed)
		return RunResult{}, err
	}

	agg := aggregate.New()
	collector := memorystorage.NewRecordStore()
	// The database sink goes first so a record it rejects is never counted.
	var sinks []crawler.RecordSink
	if a.records != nil {
		sinks = append(sinks, a.records.Sink(pl.runID, outlet))
	}
	sinks = append(sinks, agg, collector)

	sched, err := scheduler.New(
		pl.sched,
		a.fetcher,
		pl.classifier,
		pl.resolver,
		crawler.MultiSink(sinks...),
		scheduler.WithClock(a.clock),
		scheduler.WithLogger(logger),
	)
	if err != nil {
		metrics.ObserveRun(outlet, statusFailed)
		return RunResult{}, err
	}

	summary, runErr := sched.Run(ctx, roots)
	summary.RunID = pl.runID.String()
	if errors.Is(runErr, crawler.ErrNoRootSitemap) {
		logger.Error("root sitemap unavailable", zap.String("root", pl.profile.Root.Describe()), zap.Error(runErr))
		metrics.ObserveRun(outlet, statusFailed)
		return RunResult{Summary: summary}, runErr
	}
	result := RunResult{Summary: summary, Years: agg.Summaries()}

	// Outputs are written even when ctx was canceled, so a partial run still
	// leaves its reports behind.
	finishCtx := context.WithoutCancel(ctx)
	if runErr == nil {
		result.Reports, runErr = a.writeReports(finishCtx, pl, collector.Records(), result.Years)
	}
	if runErr == nil && a.records != nil {
		if err := a.records.SaveCounts(finishCtx, pl.runID, outlet, result.Years); err != nil {
			runErr = fmt.Errorf("save counts: %w", err)
		}
	}
	if a.records != nil {
		if err := a.records.SaveRun(finishCtx, pl.runID, summary, runErr); err != nil {
			logger.Warn("save run failed", zap.Error(err))
		}
	}
	a.notify(finishCtx, logger, result, runErr)

	status := runStatus(summary, runErr)
	metrics.ObserveRun(outlet, status)
	logger.Info("run finished",
		zap.String("status", status),
		zap.Int("records", summary.Records),
		zap.Int("years", len(result.Years)),
		zap.Strings("reports", result.Reports),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return result, runErr
}

func (a *App) writeReports(
	ctx context.Context,
	pl *plan,
	records []crawler.ClassifiedRecord,
	rows []aggregate.YearSummary,
) ([]string, error) {
	var uris []string
	for _, w := range a.writers {
		written, err := w.Write(ctx, pl.profile.ID, pl.window, records, rows)
		uris = append(uris, written...)
		if err != nil {
			return uris, fmt.Errorf("write reports: %w", err)
		}
	}
	return uris, nil
}

// Notification is the Pub/Sub payload sent after each run.
type Notification struct {
	RunResult
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (a *App) notify(ctx context.Context, logger *zap.Logger, result RunResult, runErr error) {
	if a.publisher == nil || a.cfg.PubSub.Topic == "" {
		return
	}
	msg := Notification{RunResult: result, Status: runStatus(result.Summary, runErr)}
	if runErr != nil {
		msg.Error = runErr.Error()
	}
	id, err := a.publisher.Publish(ctx, a.cfg.PubSub.Topic, msg)
	if err != nil {
		logger.Warn("publish run summary failed", zap.String("topic", a.cfg.PubSub.Topic), zap.Error(err))
		return
	}
	logger.Debug("run summary published", zap.String("topic", a.cfg.PubSub.Topic), zap.String("message_id", id))
}

func runStatus(summary crawler.Summary, runErr error) string {
	switch {
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		return statusFailed
	case summary.Canceled || runErr != nil:
		return statusCanceled
	default:
		return statusSucceeded
	}
}

