package sensegg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chrissnell/homewx/internal/state"
	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/internal/weatherstations"
	"github.com/chrissnell/homewx/pkg/config"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	serial "github.com/tarm/goserial"
	"go.uber.org/zap"
)

func TestParsePacket(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantID  int
		want    map[string]float64
		wantErr bool
	}{
		{
			name:   "string values",
			line:   `{"SENSOR_ID":201,"data":{"BME_T":"12.3","BME_H":"55.7","BME_P":"1019","SNE_BATT":"2.987","NTC_T":"22.1"}}`,
			wantID: 201,
			want:   map[string]float64{"T": 12.3, "raH": 55.7, "aP": 1019, "btVcc": 2.987, "ntcT": 22.1},
		},
		{
			name:   "numeric values and unknown fields",
			line:   `{"SENSOR_ID":7,"data":{"NTC_T":-3.5,"RSSI":"-71"}}`,
			wantID: 7,
			want:   map[string]float64{"ntcT": -3.5},
		},
		{name: "garbage", line: `#boot v1.2`, wantErr: true},
		{name: "missing id", line: `{"data":{"NTC_T":"1"}}`, wantErr: true},
		{name: "bad number", line: `{"SENSOR_ID":201,"data":{"NTC_T":"n/a"}}`, wantID: 201, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, got, err := ParsePacket([]byte(tt.line))
			assert.Equal(t, tt.wantID, id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestStation(t *testing.T) (*Station, *state.Manager) {
	t.Helper()

	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
location:
  latitude: 52.5
  longitude: 13.4
devices:
  - name: attic
    type: sensegg
    serial-device: /dev/ttyUSB0
    sensor-ids: [201, 202]
`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := zap.NewNop().Sugar()
	store := state.NewManager(state.NewMemoryBackend(), logger)
	s, err := NewStation(ctx, &sync.WaitGroup{}, weatherstations.Deps{
		ConfigProvider: config.NewYAMLProvider(cfgFile),
		Store:          store,
	}, "attic", logger)
	require.NoError(t, err)
	return s, store
}

func TestParsePacketsWritesStates(t *testing.T) {
	s, store := newTestStation(t)
	ctx := context.Background()

	input := strings.Join([]string{
		`{"SENSOR_ID":201,"data":{"BME_T":"12.3","NTC_T":"22.1"}}`,
		`not json`,
		``,
		`{"SENSOR_ID":999,"data":{"NTC_T":"5"}}`,
		`{"SENSOR_ID":202,"data":{"SNE_BATT":"2.5"}}`,
	}, "\n")

	err := s.ParsePackets(ctx, strings.NewReader(input))
	assert.ErrorIs(t, err, io.EOF)

	st, err := store.GetState(ctx, "sensegg.201.ntcT")
	require.NoError(t, err)
	v, _ := types.Float(st.Val)
	assert.Equal(t, 22.1, v)

	st, err = store.GetState(ctx, "sensegg.202.btVcc")
	require.NoError(t, err)
	v, _ = types.Float(st.Val)
	assert.Equal(t, 2.5, v)

	assert.False(t, store.ExistsState(ctx, "sensegg.999.ntcT"))
}

func TestStartCreatesDataPoints(t *testing.T) {
	s, store := newTestStation(t)
	s.open = func(*serial.Config) (io.ReadWriteCloser, error) { return nil, errors.New("no port") }
	s.retryDelay = time.Millisecond

	require.NoError(t, s.StartWeatherStation())
	require.NoError(t, s.StopWeatherStation())
	s.wg.Wait()

	ctx := context.Background()
	list, err := store.List(ctx, "sensegg.201.*")
	require.NoError(t, err)
	assert.Len(t, list, 13)

	st, err := store.GetState(ctx, "sensegg.201.btVt")
	require.NoError(t, err)
	th, ok := types.FloatSlice(st.Val)
	require.True(t, ok)
	assert.Equal(t, config.DefaultBatteryThresholds, th)
}

type pipePort struct {
	io.Reader
	closed int32
}

func (p *pipePort) Write(b []byte) (int, error) { return len(b), nil }

func (p *pipePort) Close() error {
	atomic.StoreInt32(&p.closed, 1)
	return nil
}

func TestReaderReconnects(t *testing.T) {
	defer leaktest.Check(t)()

	s, store := newTestStation(t)
	s.retryDelay = time.Millisecond

	var opens int32
	s.open = func(c *serial.Config) (io.ReadWriteCloser, error) {
		assert.Equal(t, "/dev/ttyUSB0", c.Name)
		assert.Equal(t, 38400, c.Baud)

		n := atomic.AddInt32(&opens, 1)
		if n == 1 {
			return nil, errors.New("device busy")
		}
		line := fmt.Sprintf(`{"SENSOR_ID":201,"data":{"NTC_T":"%d"}}`+"\n", n)
		return &pipePort{Reader: strings.NewReader(line)}, nil
	}

	require.NoError(t, s.StartWeatherStation())

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&opens) >= 3
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, s.StopWeatherStation())
	s.wg.Wait()

	st, err := store.GetState(context.Background(), "sensegg.201.ntcT")
	require.NoError(t, err)
	v, _ := types.Float(st.Val)
	assert.GreaterOrEqual(t, v, 2.0)
}
