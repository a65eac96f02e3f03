// Package mobilealerts polls rain gauges and thermometers through the
// Mobile Alerts cloud API and runs the rain tracker on the gauges.
package mobilealerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/homewx/internal/notify"
	"github.com/chrissnell/homewx/internal/rain"
	"github.com/chrissnell/homewx/internal/state"
	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/internal/weatherstations"
	"github.com/chrissnell/homewx/pkg/config"
	"github.com/chrissnell/homewx/pkg/wxcalc"
	cron "gopkg.in/robfig/cron.v2"
	"go.uber.org/zap"
)

// Prefix is the state id prefix of all Mobile Alerts sensors.
const Prefix = "mobilealerts."

// Station polls the Mobile Alerts cloud for the sensors of one account.
type Station struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	config  config.DeviceData
	deps    weatherstations.Deps
	notify  config.NotificationData
	client  *Client
	tracker *rain.Tracker
	logger  *zap.SugaredLogger
	cronID  cron.EntryID

	// pollMu keeps a slow poll from overlapping the next tick.
	pollMu sync.Mutex

	mu       sync.Mutex
	trackers map[string]rain.State
}

// NewStation creates a new Mobile Alerts station instance
func NewStation(ctx context.Context, wg *sync.WaitGroup, deps weatherstations.Deps, deviceName string, logger *zap.SugaredLogger) (*Station, error) {
	deviceConfig, err := weatherstations.LoadDeviceConfig(deps.ConfigProvider, deviceName)
	if err != nil {
		return nil, err
	}

	cfg, err := deps.ConfigProvider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	stationCtx, cancel := context.WithCancel(ctx)
	stationLogger := logger.Named("mobilealerts").With("station", deviceName)

	return &Station{
		ctx:    stationCtx,
		cancel: cancel,
		wg:     wg,
		config: *deviceConfig,
		deps:   deps,
		notify: cfg.Notifications,
		client: NewClient(deviceConfig.APIEndpoint, deviceConfig.PhoneID, nil),
		tracker: rain.NewTracker(rain.Config{
			TipFactor:        deviceConfig.Rain.TipFactor,
			DryPollThreshold: deviceConfig.Rain.DryPollThreshold,
			Location:         deps.Location,
		}, stationLogger),
		logger:   stationLogger,
		trackers: make(map[string]rain.State),
	}, nil
}

// StationName returns the name of this weather station
func (s *Station) StationName() string {
	return s.config.Name
}

// StartWeatherStation creates the sensors' data points, polls once and
// schedules the periodic polls.
func (s *Station) StartWeatherStation() error {
	if len(s.config.Sensors) == 0 {
		return fmt.Errorf("station [%s] has no sensors", s.config.Name)
	}

	for _, sensor := range s.config.Sensors {
		n, err := weatherstations.CreateDataPoints(s.ctx, s.deps.Store, Prefix+sensor.ID+".", dataPoints(sensor.Profile))
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Infow("created data points", "sensor", sensor.ID, "count", n)
		}
	}

	s.logger.Infow("Starting Mobile Alerts station",
		"sensors", len(s.config.Sensors),
		"schedule", s.config.PollSchedule)

	id, err := s.deps.Cron.AddJob("mobilealerts:"+s.config.Name, s.config.PollSchedule, s.Poll)
	if err != nil {
		return err
	}
	s.cronID = id

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Poll(s.ctx)
	}()

	return nil
}

// StopWeatherStation stops the weather station
func (s *Station) StopWeatherStation() error {
	s.logger.Info("Stopping Mobile Alerts station")
	s.deps.Cron.Remove(s.cronID)
	s.cancel()
	return nil
}

// Poll fetches the latest measurements and applies them.
func (s *Station) Poll(ctx context.Context) {
	if !s.pollMu.TryLock() {
		s.logger.Warn("previous poll still running, skipping this one")
		return
	}
	defer s.pollMu.Unlock()

	ids := make([]string, 0, len(s.config.Sensors))
	for _, sensor := range s.config.Sensors {
		ids = append(ids, sensor.ID)
	}

	start := time.Now()
	resp, err := s.client.LastMeasurement(ctx, ids)
	if err != nil {
		s.deps.Metrics.PollDone(s.config.Name, "error", time.Since(start).Seconds())
		s.logger.Errorw("Failed to fetch Mobile Alerts data", "error", err)
		return
	}
	s.deps.Metrics.PollDone(s.config.Name, "ok", time.Since(start).Seconds())

	byID := make(map[string]Device, len(resp.Devices))
	for _, d := range resp.Devices {
		byID[d.DeviceID] = d
	}

	for _, sensor := range s.config.Sensors {
		d, ok := byID[sensor.ID]
		if !ok {
			s.logger.Warnw("sensor missing from API response", "sensor", sensor.ID)
			continue
		}
		if err := s.apply(ctx, sensor, d.Measurement); err != nil {
			s.logger.Errorw("failed to apply measurement", "sensor", sensor.ID, "error", err)
		}
	}
}

func (s *Station) apply(ctx context.Context, sensor config.MobileAlertsSensorData, m Measurement) error {
	prefix := Prefix + sensor.ID + "."
	ts := m.Timestamp(time.Now())

	for _, sl := range profiles[sensor.Profile] {
		if !sl.fromAPI {
			continue
		}
		val := m[sl.Slot]
		if val == nil {
			// absent fields fall back to the slot's zero value
			val = sl.Initial
		}
		if err := s.deps.Store.SetStateAt(ctx, prefix+sl.Slot, val, true, ts); err != nil {
			return err
		}
	}

	if sensor.Profile != config.ProfileRain {
		return nil
	}

	count, ok := m.Number(slotTipCount)
	if !ok {
		s.logger.Warnw("rain measurement without tip counter, skipping tracker", "sensor", sensor.ID)
		return nil
	}

	return s.trackRain(ctx, sensor, rain.Snapshot{TipCount: int64(count), Timestamp: ts.Unix()})
}

func (s *Station) trackRain(ctx context.Context, sensor config.MobileAlertsSensorData, snap rain.Snapshot) error {
	prefix := Prefix + sensor.ID + "."

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.trackers[sensor.ID]
	if !ok {
		var err error
		prev, err = s.loadTrackerState(ctx, prefix)
		if err != nil {
			return err
		}
	}

	next, events := s.tracker.Process(prev, snap)

	if !prev.StartedFresh && snap.TipCount != 0 && snap.TipCount < prev.LastTipCount {
		s.deps.Metrics.CounterResync(sensor.ID)
	}

	ts := time.Unix(snap.Timestamp, 0)
	writes := []struct {
		slot string
		val  interface{}
	}{
		{slotLastTipCount, float64(next.LastTipCount)},
		{slotRaining, next.IsRaining},
		{slotLastAmount, wxcalc.RoundTo(next.LastAmount, 3)},
		{slotDailyTotal, wxcalc.RoundTo(next.DailyTotal, 3)},
	}
	for _, w := range writes {
		if err := s.deps.Store.SetStateAt(ctx, prefix+w.slot, w.val, true, ts); err != nil {
			return err
		}
	}
	// A failed write leaves the previous state in place, so the next poll
	// replays this snapshot's delta.
	s.trackers[sensor.ID] = next
	s.deps.Metrics.SetDailyRain(sensor.ID, next.DailyTotal)

	for _, ev := range events {
		s.logger.Infow("rain event", "sensor", sensor.ID, "event", ev.Type.String(), "daily_total", ev.DailyTotal)
		s.deps.Metrics.RainEvent(sensor.ID, ev.Type.String())
		if s.deps.Notifier != nil {
			s.deps.Notifier.Dispatch(ctx, s.message(sensor, ev))
		}
	}

	return nil
}

// loadTrackerState rebuilds the tracker state from the persisted slots. The
// result is marked as freshly started, so the first snapshot only resets
// the baseline.
func (s *Station) loadTrackerState(ctx context.Context, prefix string) (rain.State, error) {
	st := rain.State{StartedFresh: true}

	lrf, err := s.deps.Store.GetState(ctx, prefix+slotLastTipCount)
	switch {
	case errors.Is(err, state.ErrNotFound):
		return st, nil
	case err != nil:
		return st, err
	}
	if v, ok := types.Float(lrf.Val); ok {
		st.LastTipCount = int64(v)
	}
	if !lrf.Ts.IsZero() {
		st.LastTimestamp = lrf.Ts.Unix()
	}

	if rb, err := s.deps.Store.GetState(ctx, prefix+slotRaining); err == nil {
		st.IsRaining, _ = types.Bool(rb.Val)
	}
	if rsd, err := s.deps.Store.GetState(ctx, prefix+slotLastAmount); err == nil {
		st.LastAmount, _ = types.Float(rsd.Val)
	}
	if rst, err := s.deps.Store.GetState(ctx, prefix+slotDailyTotal); err == nil {
		st.DailyTotal, _ = types.Float(rst.Val)
	}

	return st, nil
}

func (s *Station) message(sensor config.MobileAlertsSensorData, ev rain.Event) notify.Message {
	name := sensor.Name
	if name == "" {
		name = sensor.ID
	}

	msg := notify.Message{Title: name}
	switch ev.Type {
	case rain.RainStarted:
		msg.Message = "It started raining."
		if s.notify.Pushover != nil {
			msg.Attachment = s.notify.Pushover.RainStartedIcon
		}
	case rain.RainStopped:
		msg.Message = fmt.Sprintf("The rain has stopped. %.1f mm today.", ev.DailyTotal)
		if s.notify.Pushover != nil {
			msg.Attachment = s.notify.Pushover.RainStoppedIcon
		}
	}
	return msg
}
