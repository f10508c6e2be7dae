package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/samvad-hq/post-archiver/internal/archiver"
	"github.com/samvad-hq/post-archiver/internal/backfill"
	"github.com/samvad-hq/post-archiver/internal/config"
	"github.com/samvad-hq/post-archiver/internal/domain"
	"github.com/samvad-hq/post-archiver/internal/lock"
	"github.com/samvad-hq/post-archiver/internal/logger"
	"github.com/samvad-hq/post-archiver/internal/storage"
	"github.com/samvad-hq/post-archiver/internal/stream"
	"github.com/samvad-hq/post-archiver/pkg/accounts"
	"github.com/samvad-hq/post-archiver/pkg/archivers"
	"github.com/samvad-hq/post-archiver/pkg/httpclient"
	"github.com/samvad-hq/post-archiver/pkg/publishers"
	"github.com/samvad-hq/post-archiver/pkg/timeline"
)

// LockName names the instance pid file inside the lock directory.
const LockName = "post-archiver"

// Backfiller recovers posts missed while the process was down.
type Backfiller interface {
	Run(ctx context.Context, accounts []domain.Account) error
}

// Runner blocks until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Components is everything the supervisor drives once it holds the instance lock.
type Components struct {
	Backfill   Backfiller
	Subscriber Runner
	// Closers are released in reverse order when the supervisor exits.
	Closers []io.Closer
}

// Close releases every closer, newest first.
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.Closers) - 1; i >= 0; i-- {
		if err := c.Closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ComponentBuilder constructs the runtime components.
type ComponentBuilder func(ctx context.Context, cfg *config.Config, reg *accounts.Registry, log logger.Logger) (*Components, error)

// Supervisor owns the process lifecycle: instance lock, startup backfill, then the
// live subscription until shutdown.
type Supervisor struct {
	cfg      *config.Config
	accounts *accounts.Registry
	build    ComponentBuilder
	log      logger.Logger
}

// NewSupervisor loads the watched accounts and prepares a supervisor. Nothing that
// touches watermark state happens until Run holds the instance lock.
func NewSupervisor(ctx context.Context, cfg *config.Config, log logger.Logger) (*Supervisor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)

	reg, err := accounts.LoadRegistry(cfg.AccountsFile)
	if err != nil {
		return nil, fmt.Errorf("load accounts registry: %w", err)
	}
	log.InfoObj("accounts registry loaded", "accounts_meta", map[string]any{
		"count": reg.Len(),
		"ids":   reg.IDs(),
	})

	return newSupervisor(cfg, reg, BuildComponents, log), nil
}

func newSupervisor(cfg *config.Config, reg *accounts.Registry, build ComponentBuilder, log logger.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, accounts: reg, build: build, log: logger.Ensure(log)}
}

// Run acquires the instance lock, backfills every watched account and then follows
// them live until ctx is cancelled. When another instance holds the lock it returns
// an error wrapping lock.ErrAlreadyRunning without touching any state.
func (s *Supervisor) Run(ctx context.Context) error {
	if s == nil || s.build == nil {
		return fmt.Errorf("supervisor is not initialized")
	}

	lk, err := lock.Acquire(s.cfg.LockDir, LockName)
	if err != nil {
		if errors.Is(err, lock.ErrAlreadyRunning) {
			s.log.WarnObj("already running; quitting", "instance_lock", err.Error())
		}
		return err
	}
	defer func() {
		if err := lk.Release(); err != nil {
			s.log.ErrorObj("release instance lock failed", "error", err.Error())
		}
	}()
	s.log.InfoObj("instance lock acquired", "instance_lock", lk.Path())

	comps, err := s.build(ctx, s.cfg, s.accounts, s.log)
	if err != nil {
		return fmt.Errorf("build components: %w", err)
	}
	defer func() {
		if err := comps.Close(); err != nil {
			s.log.ErrorObj("shutdown cleanup failed", "error", err.Error())
		}
	}()

	if s.cfg.SkipBackfill {
		s.log.InfoObj("startup backfill skipped", "supervisor_state", "skip_backfill")
	} else {
		s.log.InfoObj("startup backfill starting", "supervisor_state", map[string]any{
			"accounts": s.accounts.Len(),
		})
		if err := comps.Backfill.Run(ctx, s.accounts.All()); err != nil {
			if ctx.Err() != nil {
				s.log.InfoObj("shutdown during backfill", "supervisor_state", ctx.Err().Error())
				return nil
			}
			s.log.WarnObj("startup backfill incomplete", "backfill_error", err.Error())
		}
	}

	s.log.InfoObj("live subscription starting", "supervisor_state", map[string]any{
		"accounts": s.accounts.IDs(),
	})
	if err := comps.Subscriber.Run(ctx); err != nil {
		return fmt.Errorf("live subscriber: %w", err)
	}
	s.log.InfoObj("supervisor stopped", "supervisor_state", "terminated")
	return nil
}

// BuildComponents wires the production store, archive services, publishers,
// archiver, backfill fetcher and live subscriber from cfg.
func BuildComponents(ctx context.Context, cfg *config.Config, reg *accounts.Registry, log logger.Logger) (_ *Components, err error) {
	log = logger.Ensure(log)
	comps := &Components{}
	defer func() {
		if err != nil {
			_ = comps.Close()
		}
	}()

	storePath := cfg.WatermarkPrefix
	if cfg.StorageType == storage.TypeBBolt {
		storePath = cfg.BBoltPath
	}
	store, err := storage.NewStore(cfg.StorageType, storePath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	comps.Closers = append(comps.Closers, store)
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type": cfg.StorageType,
		"path": storePath,
	})

	services, err := buildArchiveServices(cfg, log)
	if err != nil {
		return nil, err
	}

	var eventPublisher archiver.EventPublisher
	if cfg.PublishersFile != "" {
		fanout, err := buildPublishers(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		comps.Closers = append(comps.Closers, fanout)
		eventPublisher = fanout
	}

	arch := archiver.NewService(services, store, eventPublisher, log, archiver.Options{
		PostURLHost: cfg.PostURLHost,
		Timeout:     cfg.ArchiveTimeout,
		Retries:     cfg.ArchiveRetries,
	})

	lister, err := timeline.NewClient(cfg.TimelineBaseURL, cfg.APIBearerToken, httpclient.NewRestyClient(cfg.HTTPTimeout), log)
	if err != nil {
		return nil, fmt.Errorf("init timeline client: %w", err)
	}
	comps.Backfill = backfill.NewFetcher(lister, store, arch, log, backfill.Options{
		PageSize:    cfg.BackfillPageSize,
		MaxPages:    cfg.BackfillMaxPages,
		Delay:       cfg.BackfillDelay,
		Concurrency: cfg.BackfillConcurrency,
	})

	transport, err := stream.NewHTTPTransport(cfg.StreamURL, cfg.APIBearerToken, httpclient.NewRestyClient(0), cfg.StreamStallTimeout, log)
	if err != nil {
		return nil, fmt.Errorf("init stream transport: %w", err)
	}
	subscriber, err := stream.NewSubscriber(transport, reg, arch, log, stream.Options{
		ReconnectDelay: cfg.ReconnectDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("init live subscriber: %w", err)
	}
	comps.Subscriber = subscriber
	return comps, nil
}

func buildArchiveServices(cfg *config.Config, log logger.Logger) ([]archivers.Service, error) {
	cfgs := archivers.DefaultConfigs()
	if cfg.ArchiversFile != "" {
		loaded, err := archivers.LoadConfigs(cfg.ArchiversFile)
		if err != nil {
			return nil, fmt.Errorf("load archivers: %w", err)
		}
		cfgs = loaded
	}

	enabled := archivers.Enabled(cfgs)
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no archive services enabled")
	}
	services, err := archivers.BuildAll(archivers.DefaultRegistry(), enabled)
	if err != nil {
		return nil, fmt.Errorf("build archive services: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, svc := range enabled {
		summaries = append(summaries, map[string]string{
			"id":     svc.ID,
			"type":   svc.Type,
			"prefix": svc.Prefix,
		})
	}
	log.InfoObj("archive services loaded", "archivers_meta", map[string]any{
		"count":    len(summaries),
		"services": summaries,
	})
	return services, nil
}

func buildPublishers(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := publisherReg.Enabled()
	clients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(clients), nil
}
