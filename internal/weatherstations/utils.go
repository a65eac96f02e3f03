package weatherstations

import (
	"context"
	"fmt"

	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/pkg/config"
)

// DataPoint declares a state slot a station maintains below its prefix.
type DataPoint struct {
	Slot    string
	Initial interface{}
	Common  types.StateCommon
}

// LoadDeviceConfig loads configuration for a specific device
func LoadDeviceConfig(configProvider config.ConfigProvider, deviceName string) (*config.DeviceData, error) {
	device, err := configProvider.GetDevice(deviceName)
	if err != nil {
		return nil, fmt.Errorf("station [%s] failed to load config: %w", deviceName, err)
	}
	return device, nil
}

// CreateDataPoints creates every missing slot of points below prefix and
// returns how many were created.
func CreateDataPoints(ctx context.Context, store StateStore, prefix string, points []DataPoint) (int, error) {
	created := 0
	for _, p := range points {
		ok, err := store.CreateState(ctx, prefix+p.Slot, p.Initial, p.Common)
		if err != nil {
			return created, fmt.Errorf("failed to create data point %s%s: %w", prefix, p.Slot, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}
