// Package sensegg reads SensEgg climate sensors from a serial receiver.
package sensegg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/internal/weatherstations"
	"github.com/chrissnell/homewx/pkg/config"
	serial "github.com/tarm/goserial"
	"go.uber.org/zap"
)

// Prefix is the state id prefix of all SensEgg sensors.
const Prefix = "sensegg."

const defaultRetryDelay = 30 * time.Second

// OpenFunc opens the serial port.
type OpenFunc func(c *serial.Config) (io.ReadWriteCloser, error)

// Station implements a SensEgg serial receiver
type Station struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	config  config.DeviceData
	deps    weatherstations.Deps
	logger  *zap.SugaredLogger
	sensors map[int]bool

	open       OpenFunc
	retryDelay time.Duration

	rwcMu sync.Mutex
	rwc   io.ReadWriteCloser
}

// NewStation creates a new SensEgg station
func NewStation(ctx context.Context, wg *sync.WaitGroup, deps weatherstations.Deps, deviceName string, logger *zap.SugaredLogger) (*Station, error) {
	deviceConfig, err := weatherstations.LoadDeviceConfig(deps.ConfigProvider, deviceName)
	if err != nil {
		return nil, err
	}

	sensors := make(map[int]bool, len(deviceConfig.SensorIDs))
	for _, id := range deviceConfig.SensorIDs {
		sensors[id] = true
	}

	stationCtx, cancel := context.WithCancel(ctx)
	return &Station{
		ctx:        stationCtx,
		cancel:     cancel,
		wg:         wg,
		config:     *deviceConfig,
		deps:       deps,
		logger:     logger.Named("sensegg").With("station", deviceName),
		sensors:    sensors,
		open:       serial.OpenPort,
		retryDelay: defaultRetryDelay,
	}, nil
}

func (s *Station) StationName() string {
	return s.config.Name
}

// dataPoints lists the slots kept for every sensor. Besides the measured
// values they hold the derived ones the automations maintain.
func (s *Station) dataPoints() []weatherstations.DataPoint {
	num := func(slot, name, unit string) weatherstations.DataPoint {
		return weatherstations.DataPoint{
			Slot:    slot,
			Initial: 0.0,
			Common:  types.StateCommon{Name: name, Type: "number", Role: "value", Unit: unit, Read: true},
		}
	}
	thresholds := append([]float64(nil), s.config.BatteryThresholds...)

	return []weatherstations.DataPoint{
		num("T", "Temperature (BME)", "°C"),
		num("raH", "Relative humidity", "%"),
		num("aP", "Air pressure", "hPa"),
		num("ntcT", "Temperature (NTC)", "°C"),
		{
			Slot:    "btVt",
			Initial: thresholds,
			Common:  types.StateCommon{Name: "Battery icon thresholds", Type: "array", Role: "config", Unit: "V", Read: true, Write: true},
		},
		num("btVcc", "Battery voltage", "V"),
		num("btIcon", "Battery icon", ""),
		num("tMin", "Temperature minimum", "°C"),
		num("tMax", "Temperature maximum", "°C"),
		num("tsMin", "Time of temperature minimum", "ms"),
		num("tsMax", "Time of temperature maximum", "ms"),
		num("dPt", "Dew point", "°C"),
		num("aaH", "Absolute humidity", "g/m³"),
	}
}

// StartWeatherStation creates the data points and launches the reader.
func (s *Station) StartWeatherStation() error {
	if s.config.SerialDevice == "" {
		return fmt.Errorf("SensEgg station [%s] has no serial device", s.config.Name)
	}

	for id := range s.sensors {
		n, err := weatherstations.CreateDataPoints(s.ctx, s.deps.Store, Prefix+strconv.Itoa(id)+".", s.dataPoints())
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Infow("created data points", "sensor", id, "count", n)
		}
	}

	s.logger.Infof("Starting SensEgg receiver on %s at %d baud", s.config.SerialDevice, s.config.Baud)

	s.wg.Add(1)
	go s.readLoop()

	return nil
}

// StopWeatherStation stops the reader and closes the port.
func (s *Station) StopWeatherStation() error {
	s.logger.Info("Stopping SensEgg receiver")
	s.cancel()
	s.closePort()
	return nil
}

// readLoop reads packets, reconnecting whenever the port fails.
func (s *Station) readLoop() {
	defer s.wg.Done()

	for {
		rwc, ok := s.connect()
		if !ok {
			return
		}

		err := s.ParsePackets(s.ctx, rwc)
		s.closePort()

		select {
		case <-s.ctx.Done():
			s.logger.Info("cancellation request received, stopping SensEgg reader")
			return
		default:
		}

		s.logger.Errorw("serial read failed, reconnecting", "error", err, "delay", s.retryDelay)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.retryDelay):
		}
	}
}

// connect opens the serial port, retrying until it succeeds or the station
// is stopped.
func (s *Station) connect() (io.ReadWriteCloser, bool) {
	sc := &serial.Config{Name: s.config.SerialDevice, Baud: s.config.Baud}

	for {
		s.logger.Debugf("attempting to open serial port %s at %d baud", sc.Name, sc.Baud)
		rwc, err := s.open(sc)
		if err == nil {
			s.rwcMu.Lock()
			s.rwc = rwc
			s.rwcMu.Unlock()
			return rwc, true
		}

		s.logger.Errorf("failed to open serial port %s: %v", sc.Name, err)
		s.logger.Errorf("sleeping %v and trying again", s.retryDelay)

		select {
		case <-s.ctx.Done():
			s.logger.Info("cancellation request received during retry wait")
			return nil, false
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *Station) closePort() {
	s.rwcMu.Lock()
	defer s.rwcMu.Unlock()
	if s.rwc != nil {
		s.rwc.Close()
		s.rwc = nil
	}
}

// ParsePackets reads newline-delimited packets from r and writes their
// values to the state store. Bad lines are skipped. It returns when r fails
// or hits EOF.
func (s *Station) ParsePackets(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		id, values, err := ParsePacket(line)
		if err != nil {
			s.deps.Metrics.SerialLine(s.config.Name, "invalid")
			s.logger.Warnw("skipping invalid line", "line", string(line), "error", err)
			continue
		}
		if !s.sensors[id] {
			s.deps.Metrics.SerialLine(s.config.Name, "unknown_sensor")
			s.logger.Debugw("ignoring unconfigured sensor", "sensor", id)
			continue
		}
		s.deps.Metrics.SerialLine(s.config.Name, "ok")

		prefix := Prefix + strconv.Itoa(id) + "."
		for slot, v := range values {
			if err := s.deps.Store.SetState(ctx, prefix+slot, v, true); err != nil {
				s.logger.Errorw("failed to store value", "state", prefix+slot, "error", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning aborted: %w", err)
	}
	return io.EOF
}
