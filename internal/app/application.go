// Package app assembles the stores, services and HTTP surface into one
// runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zcy-charity/jar-service/internal/app/domain/jar"
	"github.com/zcy-charity/jar-service/internal/app/httpapi"
	"github.com/zcy-charity/jar-service/internal/app/metrics"
	jarsvc "github.com/zcy-charity/jar-service/internal/app/services/jars"
	syncsvc "github.com/zcy-charity/jar-service/internal/app/services/sync"
	"github.com/zcy-charity/jar-service/internal/app/services/volunteers"
	"github.com/zcy-charity/jar-service/internal/app/storage"
	"github.com/zcy-charity/jar-service/internal/app/storage/memory"
	"github.com/zcy-charity/jar-service/internal/app/system"
	"github.com/zcy-charity/jar-service/internal/blobstore"
	"github.com/zcy-charity/jar-service/internal/config"
	"github.com/zcy-charity/jar-service/pkg/logger"
)

// Stores groups the persistence dependencies. Empty fields default to a
// shared in-memory store.
type Stores struct {
	Jars       storage.JarStore
	Tags       storage.TagStore
	Volunteers storage.VolunteerStore
}

// Application owns the services and their lifecycle.
type Application struct {
	cfg     config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	manager *system.Manager

	Jars       *jarsvc.Service
	Volunteers *volunteers.Service
	Sync       *syncsvc.Service
	Scheduler  *syncsvc.Scheduler

	handler *httpapi.Handler
	server  *http.Server
}

// New wires the application. A nil fetcher disables outbound provider calls
// by failing every fetch, which keeps local setups without a provider token
// functional.
func New(cfg config.Config, stores Stores, blobs blobstore.Store, fetcher syncsvc.Fetcher, log *logger.Logger) *Application {
	if log == nil {
		log = logger.New(cfg.Logging)
	}
	if stores.Jars == nil || stores.Tags == nil || stores.Volunteers == nil {
		mem := memory.New()
		if stores.Jars == nil {
			stores.Jars = mem
		}
		if stores.Tags == nil {
			stores.Tags = mem
		}
		if stores.Volunteers == nil {
			stores.Volunteers = mem
		}
	}
	if blobs == nil {
		blobs = blobstore.NewMemory()
	}
	if fetcher == nil {
		fetcher = syncsvc.FetcherFunc(func(context.Context, string) (jar.Observation, error) {
			return jar.Observation{}, errors.New("no provider configured")
		})
	}

	m := metrics.New()

	jarService := jarsvc.New(stores.Jars, stores.Tags, stores.Volunteers, blobs, log.WithField("component", "jars"))
	volunteerService := volunteers.New(stores.Volunteers, cfg.Auth.JWTSecret, log.WithField("component", "volunteers"))

	syncOpts := []syncsvc.Option{syncsvc.WithCloseOnGoal(cfg.Sync.CloseOnGoal)}
	if cfg.Sync.MinInterval > 0 {
		syncOpts = append(syncOpts, syncsvc.WithMinInterval(cfg.Sync.MinInterval))
	}
	syncService := syncsvc.New(stores.Jars, fetcher, log.WithField("component", "sync"), syncOpts...)
	scheduler := syncsvc.NewScheduler(syncService, cfg.Sync.Schedule, m, log.WithField("component", "sync-scheduler"))

	handler := httpapi.New(jarService, volunteerService, scheduler, m, cfg.HTTP, log.WithField("component", "httpapi"))

	a := &Application{
		cfg:        cfg,
		log:        log,
		metrics:    m,
		manager:    system.NewManager(),
		Jars:       jarService,
		Volunteers: volunteerService,
		Sync:       syncService,
		Scheduler:  scheduler,
		handler:    handler,
	}
	a.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	_ = a.manager.Register(scheduler)
	_ = a.manager.Register(&httpServerService{app: a})
	return a
}

// Handler exposes the HTTP surface for tests.
func (a *Application) Handler() http.Handler { return a.handler }

// Start brings up the scheduler and the HTTP listener.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop shuts everything down in reverse start order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// httpServerService adapts the HTTP listener to the service lifecycle.
type httpServerService struct {
	app *Application
}

func (s *httpServerService) Name() string { return "http-server" }

func (s *httpServerService) Start(context.Context) error {
	go func() {
		s.app.log.WithField("addr", s.app.server.Addr).Info("http server listening")
		if err := s.app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.app.log.WithError(err).Error("http server stopped")
		}
	}()
	return nil
}

func (s *httpServerService) Stop(ctx context.Context) error {
	if err := s.app.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
