package automations

import (
	"context"
	"time"

	"github.com/chrissnell/homewx/internal/types"
)

// Sun states, shown by the dashboard's sun widget.
const (
	StateSunrise       = "sun.sunrise"
	StateSunset        = "sun.sunset"
	StateAfterMidnight = "sun.afterMidnight"
)

func (m *Manager) createSunStates(ctx context.Context) error {
	points := []struct {
		id      string
		initial interface{}
		common  types.StateCommon
	}{
		{StateSunrise, int64(0), types.StateCommon{Name: "Next sunrise", Type: "number", Role: "date.sunrise", Unit: "ms", Read: true}},
		{StateSunset, int64(0), types.StateCommon{Name: "Sunset today", Type: "number", Role: "date.sunset", Unit: "ms", Read: true}},
		{StateAfterMidnight, false, types.StateCommon{Name: "After midnight", Type: "boolean", Role: "indicator", Read: true}},
	}
	for _, p := range points {
		if _, err := m.Store.CreateState(ctx, p.id, p.initial, p.common); err != nil {
			return err
		}
	}
	return nil
}

// updateSunTimes runs shortly after sunrise. It stores today's sunset and
// tomorrow's sunrise in Unix milliseconds.
func (m *Manager) updateSunTimes(ctx context.Context) {
	m.Metrics.AutomationRan("sun")

	now := m.Clock.Now()
	_, sunset, ok := m.Astro.SunTimes(now)
	if !ok {
		m.logger.Warnw("no sunset today", "date", now.Format("2006-01-02"))
		return
	}
	sunrise, _, ok := m.Astro.SunTimes(sunset.Add(24 * time.Hour))
	if !ok {
		m.logger.Warnw("no sunrise tomorrow", "date", now.Format("2006-01-02"))
		return
	}

	m.logger.Infow("sun times", "sunset", sunset, "next_sunrise", sunrise)
	m.set(ctx, StateSunset, sunset.UnixMilli())
	m.set(ctx, StateSunrise, sunrise.UnixMilli())
	m.set(ctx, StateAfterMidnight, false)
}
