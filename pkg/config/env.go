package config

import (
	"fmt"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/creasty/defaults"
)

// environment lists the secrets that may be kept out of the YAML file.
type environment struct {
	MobileAlertsPhoneID string `env:"HOMEWX_MOBILEALERTS_PHONE_ID"`
	PushoverToken       string `env:"HOMEWX_PUSHOVER_TOKEN"`
	PushoverUser        string `env:"HOMEWX_PUSHOVER_USER"`
	TimescaleDB         string `env:"HOMEWX_TIMESCALEDB_CONNECTION"`
	StateStorePath      string `env:"HOMEWX_STATE_STORE_PATH"`
	Timezone            string `env:"HOMEWX_TIMEZONE"`
}

func applyEnvironment(cfg *ConfigData) error {
	var e environment
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if e.MobileAlertsPhoneID != "" {
		for i := range cfg.Devices {
			if cfg.Devices[i].Type == DeviceTypeMobileAlerts {
				cfg.Devices[i].PhoneID = e.MobileAlertsPhoneID
			}
		}
	}

	if e.PushoverToken != "" || e.PushoverUser != "" {
		if cfg.Notifications.Pushover == nil {
			cfg.Notifications.Pushover = &PushoverData{}
			if err := defaults.Set(cfg.Notifications.Pushover); err != nil {
				return fmt.Errorf("failed to set pushover defaults: %w", err)
			}
		}
		if e.PushoverToken != "" {
			cfg.Notifications.Pushover.Token = e.PushoverToken
		}
		if e.PushoverUser != "" {
			cfg.Notifications.Pushover.User = e.PushoverUser
		}
	}

	if e.TimescaleDB != "" {
		cfg.Storage.TimescaleDB = &TimescaleDBData{ConnectionString: e.TimescaleDB}
	}

	if e.StateStorePath != "" {
		cfg.StateStore.Path = e.StateStorePath
	}

	if tz := strings.TrimSpace(e.Timezone); tz != "" {
		cfg.Location.Timezone = tz
	}

	return nil
}
