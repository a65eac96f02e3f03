package automations

import (
	"context"
	"strings"

	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/pkg/wxcalc"
)

// SensEgg slots read or written here.
const (
	slotTemperature    = "ntcT"
	slotHumidity       = "raH"
	slotDewPoint       = "dPt"
	slotAbsHumidity    = "aaH"
	slotBatteryVoltage = "btVcc"
	slotBatteryLimits  = "btVt"
	slotBatteryIcon    = "btIcon"
	slotTempMin        = "tMin"
	slotTempMax        = "tMax"
	slotTempMinTs      = "tsMin"
	slotTempMaxTs      = "tsMax"
)

func senseggPattern(slot string) string {
	return "sensegg.*." + slot
}

// sensorPrefix strips the slot from a state id, leaving "sensegg.<id>.".
func sensorPrefix(id, slot string) string {
	return strings.TrimSuffix(id, slot)
}

// updateDewPoints computes dew point and absolute humidity for every sensor
// that reports temperature and humidity.
func (m *Manager) updateDewPoints(ctx context.Context) {
	temps, err := m.Store.List(ctx, senseggPattern(slotTemperature))
	if err != nil {
		m.logger.Errorw("failed to list temperatures", "error", err)
		return
	}

	for _, st := range temps {
		prefix := sensorPrefix(st.ID, slotTemperature)
		t, ok := types.Float(st.Val)
		if !ok {
			continue
		}
		rh, ok := m.float(ctx, prefix+slotHumidity)
		if !ok || rh <= 0 {
			continue
		}

		m.set(ctx, prefix+slotDewPoint, wxcalc.RoundTo(wxcalc.DewPoint(t, rh), 2))
		m.set(ctx, prefix+slotAbsHumidity, wxcalc.RoundTo(wxcalc.AbsoluteHumidity(t, rh), 2))
	}
}

// onBatteryVoltage maps a new battery voltage onto the icon index.
func (m *Manager) onBatteryVoltage(ctx context.Context, c types.StateChange) {
	v, ok := types.Float(c.New.Val)
	if !ok {
		return
	}
	prefix := sensorPrefix(c.ID, slotBatteryVoltage)

	st, err := m.Store.GetState(ctx, prefix+slotBatteryLimits)
	if err != nil {
		m.logger.Warnw("no battery thresholds", "id", prefix+slotBatteryLimits, "error", err)
		return
	}
	thresholds, ok := types.FloatSlice(st.Val)
	if !ok {
		m.logger.Warnw("battery thresholds are not a list", "id", st.ID, "val", st.Val)
		return
	}

	m.Metrics.AutomationRan("battery")
	m.set(ctx, prefix+slotBatteryIcon, wxcalc.BatteryIndicator(v, thresholds))
}

// onTemperature tracks the daily extremes. Timestamps are Unix milliseconds.
func (m *Manager) onTemperature(ctx context.Context, c types.StateChange) {
	v, ok := types.Float(c.New.Val)
	if !ok {
		return
	}
	prefix := sensorPrefix(c.ID, slotTemperature)

	tMax, okMax := m.float(ctx, prefix+slotTempMax)
	tMin, okMin := m.float(ctx, prefix+slotTempMin)
	if !okMax || !okMin {
		return
	}

	ts := c.New.Ts.UnixMilli()
	switch {
	case v > tMax:
		m.set(ctx, prefix+slotTempMax, v)
		m.set(ctx, prefix+slotTempMaxTs, ts)
	case v < tMin:
		m.set(ctx, prefix+slotTempMin, v)
		m.set(ctx, prefix+slotTempMinTs, ts)
	}
}

// midnight starts a new day: extremes restart from the current temperature
// and the sun display switches to "after midnight".
func (m *Manager) midnight(ctx context.Context) {
	temps, err := m.Store.List(ctx, senseggPattern(slotTemperature))
	if err != nil {
		m.logger.Errorw("failed to list temperatures", "error", err)
	}

	ts := m.Clock.Now().UnixMilli()
	for _, st := range temps {
		prefix := sensorPrefix(st.ID, slotTemperature)
		if !m.Store.ExistsState(ctx, prefix+slotTempMax) || !m.Store.ExistsState(ctx, prefix+slotTempMin) {
			continue
		}
		m.set(ctx, prefix+slotTempMax, st.Val)
		m.set(ctx, prefix+slotTempMin, st.Val)
		m.set(ctx, prefix+slotTempMaxTs, ts)
		m.set(ctx, prefix+slotTempMinTs, ts)
	}

	m.set(ctx, StateAfterMidnight, true)
}
