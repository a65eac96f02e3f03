package automations

import (
	"context"
	"fmt"
	"os"

	"github.com/chrissnell/homewx/internal/state"
	"github.com/chrissnell/homewx/internal/types"
)

// startPowerLED applies the stored LED state and follows every write to it.
func (m *Manager) startPowerLED(ctx context.Context) error {
	cfg := m.Config.PowerLED

	if _, err := m.Store.CreateState(ctx, cfg.StateID, 1.0, types.StateCommon{
		Name: "Server power LED", Type: "number", Role: "switch", Read: true, Write: true,
	}); err != nil {
		return err
	}

	st, err := m.Store.GetState(ctx, cfg.StateID)
	if err != nil {
		return err
	}
	m.applyPowerLED(st.Val)

	return m.subscribe(cfg.StateID, state.ChangeAny, func(_ context.Context, c types.StateChange) {
		m.applyPowerLED(c.New.Val)
	})
}

// applyPowerLED switches the LED off for 0/false and on for anything else.
func (m *Manager) applyPowerLED(val interface{}) {
	on, ok := types.Bool(val)
	if !ok {
		on = true
	}

	brightness := "1"
	if !on {
		brightness = "0"
	}

	m.Metrics.AutomationRan("powerled")
	if err := os.WriteFile(m.Config.PowerLED.Path, []byte(brightness+"\n"), 0o644); err != nil {
		m.logger.Errorw("failed to switch power LED", "path", m.Config.PowerLED.Path, "error", fmt.Errorf("write brightness: %w", err))
		return
	}
	m.logger.Infow("power LED switched", "on", on)
}
