package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/chrissnell/homewx/internal/interfaces"
	"github.com/chrissnell/homewx/internal/weatherstations"
	"github.com/chrissnell/homewx/internal/weatherstations/mobilealerts"
	"github.com/chrissnell/homewx/internal/weatherstations/sensegg"
	"github.com/chrissnell/homewx/pkg/config"
	"go.uber.org/zap"
)

// NewWeatherStationManager creates a WeatherStationManager object, populated with all configured weather stations
func NewWeatherStationManager(ctx context.Context, wg *sync.WaitGroup, deps weatherstations.Deps, logger *zap.SugaredLogger) (interfaces.WeatherStationManager, error) {
	devices, err := deps.ConfigProvider.GetDevices()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	wsm := &weatherStationManager{
		logger:   logger,
		stations: make(map[string]weatherstations.WeatherStation),
	}

	for _, deviceConfig := range devices {
		if deviceConfig.Disabled {
			logger.Infof("Skipping disabled device [%s]", deviceConfig.Name)
			continue
		}
		station, err := createStationFromConfig(ctx, wg, deps, deviceConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("error creating weather station [%s]: %w", deviceConfig.Name, err)
		}
		wsm.stations[deviceConfig.Name] = station
	}

	return wsm, nil
}

type weatherStationManager struct {
	logger   *zap.SugaredLogger
	stations map[string]weatherstations.WeatherStation
	mu       sync.RWMutex
}

func (w *weatherStationManager) StartWeatherStations() error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for name, station := range w.stations {
		w.logger.Infof("Starting weather station [%v]...", name)
		if err := station.StartWeatherStation(); err != nil {
			return fmt.Errorf("failed to start weather station [%s]: %w", name, err)
		}
	}
	return nil
}

// StopWeatherStations stops every station, logging failures.
func (w *weatherStationManager) StopWeatherStations() {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for name, station := range w.stations {
		if err := station.StopWeatherStation(); err != nil {
			w.logger.Errorf("Error stopping weather station %s: %v", name, err)
		}
	}
}

// GetStation retrieves a weather station by name.
// Returns nil if the station does not exist.
// This method is safe for concurrent use.
func (w *weatherStationManager) GetStation(deviceName string) weatherstations.WeatherStation {
	w.mu.RLock()
	defer w.mu.RUnlock()

	station, exists := w.stations[deviceName]
	if !exists {
		return nil
	}
	return station
}

// createStationFromConfig creates the appropriate weather station based on device type
func createStationFromConfig(ctx context.Context, wg *sync.WaitGroup, deps weatherstations.Deps, device config.DeviceData, logger *zap.SugaredLogger) (weatherstations.WeatherStation, error) {
	switch device.Type {
	case config.DeviceTypeMobileAlerts:
		return mobilealerts.NewStation(ctx, wg, deps, device.Name, logger)
	case config.DeviceTypeSensEgg:
		return sensegg.NewStation(ctx, wg, deps, device.Name, logger)
	default:
		return nil, fmt.Errorf("unknown device type: %s", device.Type)
	}
}
