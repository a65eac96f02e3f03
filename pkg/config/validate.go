package config

import (
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"gopkg.in/go-playground/validator.v9"
	cron "gopkg.in/robfig/cron.v2"
)

const (
	defaultDewPointSchedule = "0 */10 * * * *"
	defaultMidnightSchedule = "0 0 0 * * *"
)

// DefaultBatteryThresholds are the SensEgg battery icon thresholds in volts.
var DefaultBatteryThresholds = []float64{2.65, 2.45}

func applyDefaults(cfg *ConfigData) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("failed to set default values: %w", err)
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if err := defaults.Set(d); err != nil {
			return fmt.Errorf("failed to set defaults for device [%s]: %w", d.Name, err)
		}
		if err := defaults.Set(&d.Rain); err != nil {
			return fmt.Errorf("failed to set rain defaults for device [%s]: %w", d.Name, err)
		}
		for j := range d.Sensors {
			if err := defaults.Set(&d.Sensors[j]); err != nil {
				return fmt.Errorf("failed to set sensor defaults for device [%s]: %w", d.Name, err)
			}
		}
		if d.Type == DeviceTypeSensEgg && len(d.BatteryThresholds) == 0 {
			d.BatteryThresholds = append([]float64(nil), DefaultBatteryThresholds...)
		}
	}

	sections := []interface{}{
		&cfg.Location,
		&cfg.StateStore,
		&cfg.Automations.QFF,
		&cfg.Automations.PressureTrend,
		&cfg.Automations.Sun,
		&cfg.Automations.PowerLED,
	}
	if cfg.Storage.MQTT != nil {
		sections = append(sections, cfg.Storage.MQTT)
	}
	if cfg.Notifications.Pushover != nil {
		sections = append(sections, cfg.Notifications.Pushover)
	}
	if cfg.Controllers.RESTServer != nil {
		sections = append(sections, cfg.Controllers.RESTServer)
	}
	for _, s := range sections {
		if err := defaults.Set(s); err != nil {
			return fmt.Errorf("failed to set default values: %w", err)
		}
	}

	if cfg.Automations.DewPoint.Schedule == "" {
		cfg.Automations.DewPoint.Schedule = defaultDewPointSchedule
	}
	if cfg.Automations.Midnight.Schedule == "" {
		cfg.Automations.Midnight.Schedule = defaultMidnightSchedule
	}

	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for an empty tag name.
	_ = v.RegisterValidation("cronspec", cronSpec)
	return v
}

// Validate checks struct tags and the rules spanning several fields.
func Validate(cfg *ConfigData) error {
	if err := newValidator().Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := cfg.Location.TimeLocation(); err != nil {
		return err
	}

	names := make(map[string]bool)
	for _, d := range cfg.Devices {
		if names[d.Name] {
			return fmt.Errorf("duplicate device name [%s]", d.Name)
		}
		names[d.Name] = true

		switch d.Type {
		case DeviceTypeMobileAlerts:
			if len(d.Sensors) == 0 {
				return fmt.Errorf("device [%s]: at least one Mobile Alerts sensor is required", d.Name)
			}
		case DeviceTypeSensEgg:
			if d.SerialDevice == "" {
				return fmt.Errorf("device [%s]: serial-device is required", d.Name)
			}
			if len(d.SensorIDs) == 0 {
				return fmt.Errorf("device [%s]: at least one sensor id is required", d.Name)
			}
		}
	}

	return nil
}

// cronSpec accepts six-field cron expressions (seconds first) and descriptors.
func cronSpec(fl validator.FieldLevel) bool {
	spec := fl.Field().String()
	if !strings.HasPrefix(spec, "@") && len(strings.Fields(spec)) != 6 {
		return false
	}
	_, err := cron.Parse(spec)
	return err == nil
}
