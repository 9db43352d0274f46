// Package app assembles the engine from configuration. The worker process
// and the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach-engine/internal/api"
	"outreach-engine/internal/audit"
	"outreach-engine/internal/campaign"
	"outreach-engine/internal/channel"
	"outreach-engine/internal/common/config"
	"outreach-engine/internal/common/database"
	apperrors "outreach-engine/internal/common/errors"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/cooldown"
	"outreach-engine/internal/models"
	"outreach-engine/internal/store"
	"outreach-engine/pkg/registry"
)

type options struct {
	retries      int
	retryDelay   time.Duration
	liveAdapters bool
	migrate      bool
}

type Option func(*options)

// WithConnectRetries sets how hard Build tries each backing service.
func WithConnectRetries(attempts int, initialDelay time.Duration) Option {
	return func(o *options) {
		o.retries = attempts
		o.retryDelay = initialDelay
	}
}

// WithoutLiveAdapters builds only the dry-run runner. No browser, SMTP or
// AWS client is created.
func WithoutLiveAdapters() Option {
	return func(o *options) { o.liveAdapters = false }
}

// WithMigrate creates the schema before anything reads it.
func WithMigrate() Option {
	return func(o *options) { o.migrate = true }
}

type App struct {
	Config     *config.Config
	Logger     logger.Logger
	Store      *store.SQLStore
	Templates  campaign.TemplateSource
	Catalog    *registry.Catalog
	Adapters   *channel.Registry
	Live       *campaign.Runner
	Dry        *campaign.Runner
	Dispatcher *campaign.Dispatcher
	Checks     []api.Check

	closers []func() error
}

// Build connects every configured backend and assembles both runners. On
// error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (_ *App, err error) {
	o := &options{retries: 1, retryDelay: time.Second, liveAdapters: true}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openStore(ctx, o); err != nil {
		return nil, err
	}
	if err := a.loadTemplates(); err != nil {
		return nil, err
	}

	deps := campaign.Dependencies{
		Templates: a.Templates,
		Targets:   a.Store,
		Status:    a.Store,
		Constants: cfg.Campaign.Constants,
		Logger:    log,
	}

	sinks := audit.Multi{audit.NewBestEffort(a.Store, "sql", cfg.Campaign.AuditRetries, config.GetDuration(cfg.Campaign.AuditBackoff), log)}
	if cfg.Database.Elasticsearch.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return nil, err
		}
		a.Checks = append(a.Checks, api.Check{Name: "elasticsearch", Ping: es.Ping})
		sinks = append(sinks, audit.NewBestEffort(
			audit.NewElasticsearchSink(es.Client, cfg.Database.Elasticsearch.AuditIndex),
			"elasticsearch", cfg.Campaign.AuditRetries, config.GetDuration(cfg.Campaign.AuditBackoff), log))
	}
	deps.Audit = sinks

	if cfg.Database.Redis.Enabled {
		if err := a.openRedis(ctx, o, &deps); err != nil {
			return nil, err
		}
	}

	lanes := config.EnabledChannels(cfg)

	if o.liveAdapters {
		factory := &adapterFactory{cfg: cfg, logger: log}
		a.Adapters = channel.NewRegistry()
		for ch, lane := range lanes {
			adapter, err := factory.build(ctx, ch, lane)
			if err == nil {
				err = a.Adapters.Register(ch, adapter)
			}
			if err != nil {
				a.adopt(factory)
				return nil, err
			}
		}
		a.adopt(factory)

		live := make(map[models.Channel]campaign.LaneConfig, len(lanes))
		for _, ch := range a.Adapters.Channels() {
			adapter, _ := a.Adapters.Get(ch)
			live[ch] = campaign.LaneConfig{Adapter: adapter, Scheduler: lanes[ch].SchedulerConfig()}
		}
		if a.Live, err = campaign.NewRunner(deps, live); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeRunner(a.Live))
	}

	dryLanes := make(map[models.Channel]campaign.LaneConfig, len(lanes))
	for ch, lane := range lanes {
		dryLanes[ch] = campaign.LaneConfig{Adapter: channel.NewDryRun(log), Scheduler: lane.SchedulerConfig()}
	}
	dryDeps := campaign.Dependencies{
		Templates: deps.Templates,
		Targets:   deps.Targets,
		Status:    discardStatus{},
		Constants: deps.Constants,
		Logger:    log.WithFields(map[string]interface{}{"dryRun": true}),
	}
	if a.Dry, err = campaign.NewRunner(dryDeps, dryLanes); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeRunner(a.Dry))

	var live campaign.Executor
	if a.Live != nil {
		live = a.Live
	}
	a.Dispatcher = campaign.NewDispatcher(live, a.Dry, cfg.Campaign.DefaultLimit)

	log.Info("engine assembled", map[string]interface{}{
		"driver":       cfg.Database.Driver,
		"lanes":        len(lanes),
		"liveAdapters": o.liveAdapters,
		"redis":        cfg.Database.Redis.Enabled,
		"elastic":      cfg.Database.Elasticsearch.Enabled,
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context, o *options) error {
	var client database.SQLClient
	err := retryWithBackoff(ctx, func() error {
		c, err := database.OpenSQL(a.Config.Database)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx); err != nil {
			c.Close()
			return err
		}
		client = c
		return nil
	}, o.retries, o.retryDelay, a.Logger, "database connection")
	if err != nil {
		return apperrors.NewDatabaseConnectionFailedError(err)
	}
	a.closers = append(a.closers, client.Close)
	a.Checks = append(a.Checks, api.Check{Name: "database", Ping: client.Ping})

	dialect := store.DialectPostgres
	if a.Config.Database.Driver == config.DriverSQLite {
		dialect = store.DialectSQLite
	}
	a.Store = store.NewSQLStore(client.GetDB(), dialect, a.Logger)

	if o.migrate {
		return a.Store.Migrate(ctx)
	}
	return nil
}

func (a *App) loadTemplates() error {
	path := a.Config.Template.CatalogPath
	if path == "" {
		a.Templates = a.Store
		return nil
	}
	cat, err := registry.LoadCatalog(path)
	if err != nil {
		return err
	}
	if err := cat.Validate(); err != nil {
		return fmt.Errorf("catalog %s: %w", path, err)
	}
	a.Catalog = cat
	a.Templates = registry.NewSource(cat)
	return nil
}

func (a *App) openRedis(ctx context.Context, o *options, deps *campaign.Dependencies) error {
	var rc *database.RedisClient
	err := retryWithBackoff(ctx, func() error {
		c, err := database.NewRedis(a.Config.Database.Redis)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx); err != nil {
			c.Close()
			return err
		}
		rc = c
		return nil
	}, o.retries, o.retryDelay, a.Logger, "redis connection")
	if err != nil {
		return err
	}
	a.closers = append(a.closers, rc.Close)
	a.Checks = append(a.Checks, api.Check{Name: "redis", Ping: rc.Ping})

	cooldowns := make(map[models.Channel]time.Duration)
	for ch, lane := range config.EnabledChannels(a.Config) {
		if lane.Cooldown > 0 {
			cooldowns[ch] = config.GetDuration(lane.Cooldown)
		}
	}
	if len(cooldowns) > 0 {
		deps.Cooldown = cooldown.NewPolicy(rc.Client, cooldowns)
	}
	if a.Config.Campaign.LeaseTTL > 0 {
		deps.Lease = cooldown.NewLease(rc.Client, config.GetDuration(a.Config.Campaign.LeaseTTL))
	}
	return nil
}

// Close releases everything in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) adopt(f *adapterFactory) {
	for _, c := range f.closers {
		a.closers = append(a.closers, c.Close)
	}
	f.closers = nil
}

func closeRunner(r *campaign.Runner) func() error {
	return func() error {
		r.Close()
		return nil
	}
}

// discardStatus keeps dry runs from touching target state.
type discardStatus struct{}

func (discardStatus) UpdateTargetStatus(context.Context, string, models.TargetStatus, *time.Time) error {
	return nil
}
