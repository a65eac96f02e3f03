package weatherstations

import (
	"context"
	"time"

	"github.com/chrissnell/homewx/internal/metrics"
	"github.com/chrissnell/homewx/internal/notify"
	"github.com/chrissnell/homewx/internal/scheduler"
	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/pkg/config"
)

// WeatherStation is an interface that provides standard methods for various
// weather station backends
type WeatherStation interface {
	StartWeatherStation() error
	StopWeatherStation() error
	StationName() string
}

// StateStore is the part of the state store the stations write to.
type StateStore interface {
	GetState(ctx context.Context, id string) (*types.State, error)
	SetState(ctx context.Context, id string, val interface{}, ack bool) error
	SetStateAt(ctx context.Context, id string, val interface{}, ack bool, ts time.Time) error
	CreateState(ctx context.Context, id string, initial interface{}, common types.StateCommon) (bool, error)
}

// Deps bundles the shared services a station is built with.
type Deps struct {
	ConfigProvider config.ConfigProvider
	Store          StateStore
	Cron           *scheduler.Cron
	Notifier       *notify.Dispatcher
	Metrics        *metrics.Metrics
	Location       *time.Location
}
