package automations

import (
	"context"
	"time"

	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/pkg/wxcalc"
	"gonum.org/v1/gonum/floats"
)

const (
	// trendWindow is how far after the full hour a reading still counts as
	// that hour's value.
	trendWindow = time.Minute
	// trendHours is the number of hourly differences summed into the
	// three hour trend.
	trendHours = 3
)

// updateQFF reduces the station pressure to sea level.
func (m *Manager) updateQFF(ctx context.Context) {
	cfg := m.Config.QFF

	t, ok := m.float(ctx, cfg.TemperatureState)
	if !ok {
		return
	}
	qfe, ok := m.float(ctx, cfg.PressureState)
	if !ok || qfe <= 0 {
		return
	}

	m.set(ctx, cfg.OutputState, wxcalc.RoundTo(wxcalc.QFF(qfe, t, m.Location.Altitude), 2))
}

// onQFF computes the pressure change over the last hour whenever a QFF value
// is written on the full hour.
func (m *Manager) onQFF(ctx context.Context, c types.StateChange) {
	at := c.New.Ts.In(m.TimeZone)
	if at.Minute() != 0 {
		return
	}
	cur, ok := types.Float(c.New.Val)
	if !ok {
		return
	}

	from := at.Truncate(time.Minute).Add(-time.Hour)
	prev, err := m.History.NewestBetween(ctx, c.ID, from, from.Add(trendWindow))
	if err != nil {
		m.logger.Errorw("failed to query pressure history", "id", c.ID, "error", err)
		return
	}

	diff := 0.0
	if prev == nil {
		m.logger.Warnw("no pressure value from one hour ago", "id", c.ID, "from", from)
	} else {
		diff = wxcalc.RoundTo(cur-prev.Val, 2)
	}

	m.Metrics.AutomationRan("pressuretrend")
	if err := m.Store.SetStateAt(ctx, m.Config.PressureTrend.Diff1hState, diff, true, c.New.Ts); err != nil {
		m.logger.Errorw("failed to write pressure trend", "error", err)
	}
}

// onDiff1h sums the latest hourly differences into the three hour trend. It
// stays 0 until three hourly values exist.
func (m *Manager) onDiff1h(ctx context.Context, c types.StateChange) {
	entries, err := m.History.Latest(ctx, c.ID, trendHours)
	if err != nil {
		m.logger.Errorw("failed to query pressure trend history", "id", c.ID, "error", err)
		return
	}

	sum := 0.0
	if len(entries) == trendHours {
		vals := make([]float64, len(entries))
		for i, e := range entries {
			vals[i] = e.Val
		}
		sum = wxcalc.RoundTo(floats.Sum(vals), 2)
	} else {
		m.logger.Debugw("not enough hourly differences for the three hour trend", "have", len(entries))
	}

	if err := m.Store.SetStateAt(ctx, m.Config.PressureTrend.Diff3hState, sum, true, c.New.Ts); err != nil {
		m.logger.Errorw("failed to write pressure trend", "error", err)
	}
}
