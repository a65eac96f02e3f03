// Package interfaces defines common interface types used across the application.
package interfaces

import "github.com/chrissnell/homewx/internal/weatherstations"

// WeatherStationManager defines the interface for managing weather stations
type WeatherStationManager interface {
	StartWeatherStations() error
	StopWeatherStations()
	GetStation(deviceName string) weatherstations.WeatherStation
}
