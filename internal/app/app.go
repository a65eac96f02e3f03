package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chrissnell/homewx/internal/automations"
	"github.com/chrissnell/homewx/internal/history"
	"github.com/chrissnell/homewx/internal/log"
	"github.com/chrissnell/homewx/internal/managers"
	"github.com/chrissnell/homewx/internal/metrics"
	"github.com/chrissnell/homewx/internal/notify"
	"github.com/chrissnell/homewx/internal/scheduler"
	"github.com/chrissnell/homewx/internal/state"
	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/internal/weatherstations"
	"github.com/chrissnell/homewx/pkg/config"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// StatePushoverLimit holds the number of Pushover messages left this month.
const StatePushoverLimit = "pushover.remainingLimit"

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
	clock          clockwork.Clock
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
		clock:          clockwork.NewRealClock(),
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}

	loc, err := cfg.Location.TimeLocation()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	backend, err := newStateBackend(ctx, cfg.StateStore)
	if err != nil {
		return err
	}
	defer backend.Close()

	recent := history.NewMemory(cfg.StateStore.HistorySize)
	changes := make(chan types.StateChange, 20)

	store := state.NewManager(backend, a.logger,
		state.WithClock(a.clock),
		state.WithRecorder(recent),
		state.WithDistributor(changes),
		state.WithMetrics(m),
	)
	store.Run(ctx, &wg)

	// Initialize the storage manager
	storageManager, err := managers.NewStorageManager(ctx, &wg, cfg.Storage, changes, store.SetState, m, a.logger)
	if err != nil {
		return err
	}

	// Lookbacks prefer the database, which survives restarts.
	var hist history.Querier = recent
	if storageManager.TimescaleDB != nil {
		hist = storageManager.TimescaleDB
	}

	cronScheduler := scheduler.NewCron(ctx, a.logger)
	cronScheduler.Start()
	defer cronScheduler.Stop()

	notifier, err := a.newNotifier(ctx, cfg.Notifications, store)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(notifier, a.logger, m)

	// Initialize the weather station manager
	wsm, err := managers.NewWeatherStationManager(ctx, &wg, weatherstations.Deps{
		ConfigProvider: a.configProvider,
		Store:          store,
		Cron:           cronScheduler,
		Notifier:       dispatcher,
		Metrics:        m,
		Location:       loc,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := wsm.StartWeatherStations(); err != nil {
		return err
	}

	am := automations.New(automations.Deps{
		Config:   cfg.Automations,
		Location: cfg.Location,
		TimeZone: loc,
		Store:    store,
		History:  hist,
		Cron:     cronScheduler,
		Astro:    scheduler.NewAstro(a.clock, cfg.Location.Latitude, cfg.Location.Longitude, loc, a.logger),
		Clock:    a.clock,
		Metrics:  m,
	}, a.logger)
	if err := am.Start(ctx, &wg); err != nil {
		return fmt.Errorf("error starting automations: %w", err)
	}

	// Initialize the controller manager
	cm, err := managers.NewControllerManager(ctx, &wg, cfg.Controllers, store, hist, registry, a.logger)
	if err != nil {
		return err
	}
	err = cm.StartControllers()
	if err != nil {
		return err
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	am.Stop()
	wsm.StopWeatherStations()

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}

func newStateBackend(ctx context.Context, c config.StateStoreData) (state.Backend, error) {
	switch c.Backend {
	case "sqlite":
		b, err := state.NewSQLiteBackend(ctx, c.Path)
		if err != nil {
			return nil, fmt.Errorf("could not open state store: %w", err)
		}
		return b, nil
	case "", "memory":
		return state.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown state store backend: %s", c.Backend)
	}
}

// newNotifier returns the Pushover client when it is configured. Its
// remaining message allowance is mirrored to a state.
func (a *App) newNotifier(ctx context.Context, c config.NotificationData, store *state.Manager) (notify.Notifier, error) {
	if c.Pushover == nil {
		a.logger.Info("no notification service configured, rain events will only be logged")
		return notify.Nop{}, nil
	}

	if _, err := store.CreateState(ctx, StatePushoverLimit, -1.0, types.StateCommon{
		Name: "Pushover messages remaining",
		Type: "number",
		Role: "value",
		Read: true,
	}); err != nil {
		return nil, err
	}

	p := notify.NewPushover(*c.Pushover, &http.Client{Timeout: 15 * time.Second}, a.clock)
	p.OnLimit = func(remaining int) {
		if err := store.SetState(ctx, StatePushoverLimit, float64(remaining), true); err != nil {
			a.logger.Warnf("could not store pushover limit: %v", err)
		}
	}
	return p, nil
}
