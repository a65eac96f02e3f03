package config

import (
	"fmt"
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	GetDevices() ([]DeviceData, error)
	GetDevice(name string) (*DeviceData, error)

	IsReadOnly() bool
	Close() error
}

// Device types
const (
	DeviceTypeMobileAlerts = "mobilealerts"
	DeviceTypeSensEgg      = "sensegg"
)

// Mobile Alerts measurement profiles
const (
	ProfileRain        = "rain"
	ProfileTemperature = "temperature"
)

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Location      LocationData     `yaml:"location" json:"location"`
	Devices       []DeviceData     `yaml:"devices" json:"devices" validate:"dive"`
	StateStore    StateStoreData   `yaml:"state-store" json:"state_store"`
	Storage       StorageData      `yaml:"storage,omitempty" json:"storage,omitempty"`
	Notifications NotificationData `yaml:"notifications,omitempty" json:"notifications,omitempty"`
	Automations   AutomationData   `yaml:"automations,omitempty" json:"automations,omitempty"`
	Controllers   ControllerData   `yaml:"controllers,omitempty" json:"controllers,omitempty"`
}

// LocationData places the installation. It drives the day boundary of the
// rain totals, sunrise/sunset and the sea-level pressure reduction.
type LocationData struct {
	Latitude  float64 `yaml:"latitude" json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" json:"longitude" validate:"gte=-180,lte=180"`
	Altitude  float64 `yaml:"altitude" json:"altitude" default:"132"`
	Timezone  string  `yaml:"timezone" json:"timezone" default:"Local"`
}

// TimeLocation resolves the configured time zone.
func (l LocationData) TimeLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", l.Timezone, err)
	}
	return loc, nil
}

// DeviceData holds configuration specific to data collection devices
type DeviceData struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	Type     string `yaml:"type" json:"type" validate:"required,oneof=mobilealerts sensegg"`
	Disabled bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	// Mobile Alerts cloud API
	APIEndpoint  string                   `yaml:"api-endpoint,omitempty" json:"api_endpoint,omitempty" default:"https://www.data199.com/api/pv1/device/lastmeasurement"`
	PhoneID      string                   `yaml:"phone-id,omitempty" json:"phone_id,omitempty"`
	PollSchedule string                   `yaml:"poll-schedule,omitempty" json:"poll_schedule,omitempty" default:"0 */2 * * * *" validate:"cronspec"`
	Sensors      []MobileAlertsSensorData `yaml:"sensors,omitempty" json:"sensors,omitempty" validate:"dive"`
	Rain         RainData                 `yaml:"rain,omitempty" json:"rain,omitempty"`

	// SensEgg serial receiver
	SerialDevice      string    `yaml:"serial-device,omitempty" json:"serial_device,omitempty"`
	Baud              int       `yaml:"baud,omitempty" json:"baud,omitempty" default:"38400"`
	SensorIDs         []int     `yaml:"sensor-ids,omitempty" json:"sensor_ids,omitempty"`
	BatteryThresholds []float64 `yaml:"battery-thresholds,omitempty" json:"battery_thresholds,omitempty"`
}

// MobileAlertsSensorData is one sensor registered with the Mobile Alerts cloud.
type MobileAlertsSensorData struct {
	ID      string `yaml:"id" json:"id" validate:"required"`
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`
	Profile string `yaml:"profile,omitempty" json:"profile,omitempty" default:"rain" validate:"oneof=rain temperature"`
}

// RainData calibrates the rain tracker of a rain gauge.
type RainData struct {
	TipFactor        float64 `yaml:"tip-factor,omitempty" json:"tip_factor,omitempty" default:"0.258" validate:"gt=0"`
	DryPollThreshold int     `yaml:"dry-poll-threshold,omitempty" json:"dry_poll_threshold,omitempty" default:"5" validate:"gt=0"`
}

// StateStoreData selects where state slots are kept.
type StateStoreData struct {
	Backend     string `yaml:"backend" json:"backend" default:"memory" validate:"oneof=memory sqlite"`
	Path        string `yaml:"path,omitempty" json:"path,omitempty" default:"homewx-states.db"`
	HistorySize int    `yaml:"history-size,omitempty" json:"history_size,omitempty" default:"1000" validate:"gt=0"`
}

// StorageData holds the configuration for various storage backends
type StorageData struct {
	TimescaleDB *TimescaleDBData `yaml:"timescaledb,omitempty" json:"timescaledb,omitempty"`
	MQTT        *MQTTData        `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
}

type TimescaleDBData struct {
	ConnectionString string `yaml:"connection-string" json:"connection_string" validate:"required"`
}

type MQTTData struct {
	ListenAddr  string `yaml:"listen-addr,omitempty" json:"listen_addr,omitempty" default:":1883"`
	TopicPrefix string `yaml:"topic-prefix,omitempty" json:"topic_prefix,omitempty" default:"homewx"`
}

// NotificationData configures push notifications.
type NotificationData struct {
	Pushover *PushoverData `yaml:"pushover,omitempty" json:"pushover,omitempty"`
}

type PushoverData struct {
	Token           string `yaml:"token" json:"token" validate:"required"`
	User            string `yaml:"user" json:"user" validate:"required"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" default:"https://api.pushover.net/1/messages.json"`
	Sound           string `yaml:"sound,omitempty" json:"sound,omitempty"`
	RainStartedIcon string `yaml:"rain-started-icon,omitempty" json:"rain_started_icon,omitempty"`
	RainStoppedIcon string `yaml:"rain-stopped-icon,omitempty" json:"rain_stopped_icon,omitempty"`
}

// AutomationData configures the derived-value automations.
type AutomationData struct {
	DewPoint      ScheduleData      `yaml:"dewpoint,omitempty" json:"dewpoint,omitempty"`
	QFF           QFFData           `yaml:"qff,omitempty" json:"qff,omitempty"`
	PressureTrend PressureTrendData `yaml:"pressure-trend,omitempty" json:"pressure_trend,omitempty"`
	Midnight      ScheduleData      `yaml:"midnight,omitempty" json:"midnight,omitempty"`
	Sun           SunData           `yaml:"sun,omitempty" json:"sun,omitempty"`
	PowerLED      PowerLEDData      `yaml:"power-led,omitempty" json:"power_led,omitempty"`
}

type ScheduleData struct {
	Disabled bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty" validate:"omitempty,cronspec"`
}

type QFFData struct {
	Disabled         bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Schedule         string `yaml:"schedule,omitempty" json:"schedule,omitempty" default:"0 */15 * * * *" validate:"cronspec"`
	TemperatureState string `yaml:"temperature-state,omitempty" json:"temperature_state,omitempty"`
	PressureState    string `yaml:"pressure-state,omitempty" json:"pressure_state,omitempty"`
	OutputState      string `yaml:"output-state,omitempty" json:"output_state,omitempty" default:"var.pressure.qff"`
}

type PressureTrendData struct {
	Disabled    bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Diff1hState string `yaml:"diff-1h-state,omitempty" json:"diff_1h_state,omitempty" default:"var.pressure.diff1h"`
	Diff3hState string `yaml:"diff-3h-state,omitempty" json:"diff_3h_state,omitempty" default:"var.pressure.diff3h"`
}

type SunData struct {
	Disabled     bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	ShiftMinutes int  `yaml:"shift-minutes,omitempty" json:"shift_minutes,omitempty" default:"10"`
}

type PowerLEDData struct {
	Disabled bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	StateID  string `yaml:"state,omitempty" json:"state,omitempty" default:"server.powerLed"`
	Path     string `yaml:"path,omitempty" json:"path,omitempty" default:"/sys/class/leds/PWR/brightness"`
}

// ControllerData holds the configuration for the API surfaces
type ControllerData struct {
	RESTServer *RESTServerData `yaml:"rest,omitempty" json:"rest,omitempty"`
}

type RESTServerData struct {
	ListenAddr string `yaml:"listen-addr,omitempty" json:"listen_addr,omitempty" default:"0.0.0.0"`
	Port       int    `yaml:"port,omitempty" json:"port,omitempty" default:"8080" validate:"gt=0,lte=65535"`
}
