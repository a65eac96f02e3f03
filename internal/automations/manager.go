// Package automations derives values from the raw sensor states: dew point,
// sea level pressure and its trend, battery icons, daily temperature extremes,
// sun times and the server power LED.
package automations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/homewx/internal/history"
	"github.com/chrissnell/homewx/internal/metrics"
	"github.com/chrissnell/homewx/internal/scheduler"
	"github.com/chrissnell/homewx/internal/state"
	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/pkg/config"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	cron "gopkg.in/robfig/cron.v2"
)

// Store is the part of the state store automations work with.
type Store interface {
	GetState(ctx context.Context, id string) (*types.State, error)
	SetState(ctx context.Context, id string, val interface{}, ack bool) error
	SetStateAt(ctx context.Context, id string, val interface{}, ack bool, ts time.Time) error
	CreateState(ctx context.Context, id string, initial interface{}, common types.StateCommon) (bool, error)
	ExistsState(ctx context.Context, id string) bool
	List(ctx context.Context, pattern string) ([]types.State, error)
	On(pattern string, mode state.ChangeMode, handler state.Handler) (string, error)
	Unsubscribe(id string)
}

// Deps bundles what the automations need.
type Deps struct {
	Config   config.AutomationData
	Location config.LocationData
	TimeZone *time.Location
	Store    Store
	History  history.Querier
	Cron     *scheduler.Cron
	Astro    *scheduler.Astro
	Clock    clockwork.Clock
	Metrics  *metrics.Metrics
}

// Manager owns the schedules and subscriptions of all automations.
type Manager struct {
	Deps
	logger *zap.SugaredLogger

	subs    []string
	cronIDs []cron.EntryID
}

func New(deps Deps, logger *zap.SugaredLogger) *Manager {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.TimeZone == nil {
		deps.TimeZone = time.Local
	}
	return &Manager{Deps: deps, logger: logger.Named("automations")}
}

// Start registers every enabled automation.
func (m *Manager) Start(ctx context.Context, wg *sync.WaitGroup) error {
	cfg := m.Config

	if !cfg.DewPoint.Disabled {
		if err := m.schedule("dewpoint", cfg.DewPoint.Schedule, m.updateDewPoints); err != nil {
			return err
		}
	}

	if !cfg.QFF.Disabled {
		if cfg.QFF.TemperatureState == "" || cfg.QFF.PressureState == "" {
			m.logger.Warn("QFF automation needs temperature-state and pressure-state, not starting it")
		} else if err := m.schedule("qff", cfg.QFF.Schedule, m.updateQFF); err != nil {
			return err
		}
	}

	if !cfg.PressureTrend.Disabled {
		if m.History == nil {
			return fmt.Errorf("pressure trend automation needs a history")
		}
		if err := m.subscribe(cfg.QFF.OutputState, state.ChangeAny, m.onQFF); err != nil {
			return err
		}
		if err := m.subscribe(cfg.PressureTrend.Diff1hState, state.ChangeAny, m.onDiff1h); err != nil {
			return err
		}
	}

	if err := m.subscribe(senseggPattern(slotBatteryVoltage), state.ChangeNe, m.onBatteryVoltage); err != nil {
		return err
	}
	if err := m.subscribe(senseggPattern(slotTemperature), state.ChangeNe, m.onTemperature); err != nil {
		return err
	}

	if !cfg.Midnight.Disabled {
		if err := m.schedule("midnight", cfg.Midnight.Schedule, m.midnight); err != nil {
			return err
		}
	}

	if !cfg.Sun.Disabled {
		if err := m.createSunStates(ctx); err != nil {
			return err
		}
		if m.Astro == nil {
			return fmt.Errorf("sun automation needs an astro scheduler")
		}
		shift := time.Duration(cfg.Sun.ShiftMinutes) * time.Minute
		m.Astro.Schedule(ctx, wg, "sun", scheduler.Sunrise, shift, m.updateSunTimes)
	}

	if !cfg.PowerLED.Disabled {
		if err := m.startPowerLED(ctx); err != nil {
			return err
		}
	}

	m.logger.Infow("automations started", "jobs", len(m.cronIDs), "subscriptions", len(m.subs))
	return nil
}

// Stop removes all schedules and subscriptions. Astro jobs end with the
// context passed to Start.
func (m *Manager) Stop() {
	for _, id := range m.cronIDs {
		m.Cron.Remove(id)
	}
	for _, id := range m.subs {
		m.Store.Unsubscribe(id)
	}
	m.cronIDs, m.subs = nil, nil
}

func (m *Manager) schedule(name, spec string, fn func(ctx context.Context)) error {
	id, err := m.Cron.AddJob(name, spec, func(ctx context.Context) {
		m.Metrics.AutomationRan(name)
		fn(ctx)
	})
	if err != nil {
		return err
	}
	m.cronIDs = append(m.cronIDs, id)
	return nil
}

func (m *Manager) subscribe(pattern string, mode state.ChangeMode, h state.Handler) error {
	id, err := m.Store.On(pattern, mode, h)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}
	m.subs = append(m.subs, id)
	return nil
}

// float reads a numeric state.
func (m *Manager) float(ctx context.Context, id string) (float64, bool) {
	st, err := m.Store.GetState(ctx, id)
	if err != nil {
		m.logger.Debugw("state not readable", "id", id, "error", err)
		return 0, false
	}
	v, ok := types.Float(st.Val)
	if !ok {
		m.logger.Warnw("state is not numeric", "id", id, "val", st.Val)
	}
	return v, ok
}

func (m *Manager) set(ctx context.Context, id string, val interface{}) {
	if err := m.Store.SetState(ctx, id, val, true); err != nil {
		m.logger.Errorw("failed to write state", "id", id, "error", err)
	}
}
