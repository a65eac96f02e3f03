package mobilealerts

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chrissnell/homewx/internal/notify"
	"github.com/chrissnell/homewx/internal/rain"
	"github.com/chrissnell/homewx/internal/scheduler"
	"github.com/chrissnell/homewx/internal/state"
	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/internal/weatherstations"
	"github.com/chrissnell/homewx/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	msgs chan notify.Message
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.msgs <- msg
	return nil
}

// gaugeServer replays one tip counter value per request.
func gaugeServer(t *testing.T, start time.Time, counts []int) *httptest.Server {
	t.Helper()
	var n int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "08A1,0299", r.PostForm.Get("deviceids"))
		assert.Equal(t, "phone", r.PostForm.Get("phoneid"))

		i := int(atomic.AddInt32(&n, 1)) - 1
		if i >= len(counts) {
			i = len(counts) - 1
		}
		ts := start.Add(time.Duration(i) * 2 * time.Minute).Unix()
		fmt.Fprintf(w, `{"success":true,"devices":[`+
			`{"deviceid":"08A1","measurement":{"ts":%d,"t1":12.3,"r":%.3f,"rf":%d,"lb":false}},`+
			`{"deviceid":"0299","measurement":{"ts":%d,"t1":8.5}}]}`,
			ts, float64(counts[i])*0.258, counts[i], ts)
	}))
}

func newTestStation(t *testing.T, endpoint string, opts ...func(*weatherstations.Deps)) (*Station, *state.Manager, *recordingNotifier) {
	t.Helper()

	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(fmt.Sprintf(`
location:
  latitude: 52.5
  longitude: 13.4
  timezone: UTC
devices:
  - name: garden
    type: mobilealerts
    api-endpoint: %s
    phone-id: phone
    rain:
      dry-poll-threshold: 2
    sensors:
      - id: 08A1
        name: Garden gauge
      - id: "0299"
        profile: temperature
notifications:
  pushover:
    token: tok
    user: usr
    rain-started-icon: /icons/rain.png
`, endpoint)), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := zap.NewNop().Sugar()
	store := state.NewManager(state.NewMemoryBackend(), logger)
	rec := &recordingNotifier{msgs: make(chan notify.Message, 10)}

	deps := weatherstations.Deps{
		ConfigProvider: config.NewYAMLProvider(cfgFile),
		Store:          store,
		Cron:           scheduler.NewCron(ctx, logger),
		Notifier:       notify.NewDispatcher(rec, logger, nil),
		Location:       time.UTC,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	st, err := NewStation(ctx, &sync.WaitGroup{}, deps, "garden", logger)
	require.NoError(t, err)
	return st, store, rec
}

func floatState(t *testing.T, store *state.Manager, id string) float64 {
	t.Helper()
	st, err := store.GetState(context.Background(), id)
	require.NoError(t, err)
	v, ok := types.Float(st.Val)
	require.True(t, ok, "state %s is not numeric: %v", id, st.Val)
	return v
}

func boolState(t *testing.T, store *state.Manager, id string) bool {
	t.Helper()
	st, err := store.GetState(context.Background(), id)
	require.NoError(t, err)
	v, ok := types.Bool(st.Val)
	require.True(t, ok)
	return v
}

func TestStationRainCycle(t *testing.T) {
	start := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	srv := gaugeServer(t, start, []int{10, 12, 12, 12})
	defer srv.Close()

	s, store, rec := newTestStation(t, srv.URL)
	ctx := context.Background()

	s.Poll(ctx)
	assert.Equal(t, 10.0, floatState(t, store, "mobilealerts.08A1.lrf"))
	assert.Equal(t, 12.3, floatState(t, store, "mobilealerts.08A1.t1"))
	assert.Equal(t, 8.5, floatState(t, store, "mobilealerts.0299.t1"))
	assert.False(t, boolState(t, store, "mobilealerts.08A1.rb"))

	s.Poll(ctx)
	assert.True(t, boolState(t, store, "mobilealerts.08A1.rb"))
	assert.Equal(t, 0.516, floatState(t, store, "mobilealerts.08A1.rsd"))
	assert.Equal(t, 0.516, floatState(t, store, "mobilealerts.08A1.rst"))

	select {
	case msg := <-rec.msgs:
		assert.Equal(t, "Garden gauge", msg.Title)
		assert.Equal(t, "It started raining.", msg.Message)
		assert.Equal(t, "/icons/rain.png", msg.Attachment)
	case <-time.After(5 * time.Second):
		t.Fatal("no rain started notification")
	}

	s.Poll(ctx)
	assert.True(t, boolState(t, store, "mobilealerts.08A1.rb"))

	s.Poll(ctx)
	assert.False(t, boolState(t, store, "mobilealerts.08A1.rb"))
	assert.Equal(t, 0.0, floatState(t, store, "mobilealerts.08A1.rsd"))
	assert.Equal(t, 0.516, floatState(t, store, "mobilealerts.08A1.rst"))

	select {
	case msg := <-rec.msgs:
		assert.Contains(t, msg.Message, "0.5 mm today")
		assert.Empty(t, msg.Attachment)
	case <-time.After(5 * time.Second):
		t.Fatal("no rain stopped notification")
	}

	lrf, err := store.GetState(ctx, "mobilealerts.08A1.lrf")
	require.NoError(t, err)
	assert.True(t, lrf.Ts.Equal(start.Add(6*time.Minute)), "lrf carries the measurement time")
}

func TestStationRestoresPersistedState(t *testing.T) {
	start := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	srv := gaugeServer(t, start, []int{40, 41})
	defer srv.Close()

	s, store, _ := newTestStation(t, srv.URL)
	ctx := context.Background()

	// state left behind by a previous run earlier the same day
	require.NoError(t, store.SetStateAt(ctx, "mobilealerts.08A1.lrf", 30.0, true, start.Add(-time.Hour)))
	require.NoError(t, store.SetState(ctx, "mobilealerts.08A1.rst", 2.5, true))

	// first poll after the restart only re-establishes the baseline
	s.Poll(ctx)
	assert.Equal(t, 40.0, floatState(t, store, "mobilealerts.08A1.lrf"))
	assert.Equal(t, 2.5, floatState(t, store, "mobilealerts.08A1.rst"))

	s.Poll(ctx)
	assert.InDelta(t, 2.758, floatState(t, store, "mobilealerts.08A1.rst"), 1e-9)
}

func TestStationPollError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"errorcode":1,"errormessage":"invalid device id"}`)
	}))
	defer srv.Close()

	s, store, _ := newTestStation(t, srv.URL)
	s.Poll(context.Background())

	assert.False(t, store.ExistsState(context.Background(), "mobilealerts.08A1.lrf"))
}

func TestStationStartCreatesDataPoints(t *testing.T) {
	start := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	srv := gaugeServer(t, start, []int{1})
	defer srv.Close()

	s, store, _ := newTestStation(t, srv.URL)
	require.NoError(t, s.StartWeatherStation())
	defer s.StopWeatherStation()

	ctx := context.Background()
	rain, err := store.List(ctx, "mobilealerts.08A1.*")
	require.NoError(t, err)
	assert.Len(t, rain, len(profiles[config.ProfileRain]))

	temp, err := store.List(ctx, "mobilealerts.0299.*")
	require.NoError(t, err)
	assert.Len(t, temp, len(profiles[config.ProfileTemperature]))

	assert.Equal(t, "garden", s.StationName())
}

func gaugeJSON(ts int64, count int) string {
	return fmt.Sprintf(`{"deviceid":"08A1","measurement":{"ts":%d,"t1":12.3,"r":%.3f,"rf":%d,"lb":false}}`,
		ts, float64(count)*rain.DefaultTipFactor, count)
}

func thermometerJSON(ts int64, temp float64) string {
	return fmt.Sprintf(`{"deviceid":"0299","measurement":{"ts":%d,"t1":%.1f}}`, ts, temp)
}

func responseJSON(devices ...string) string {
	return `{"success":true,"devices":[` + strings.Join(devices, ",") + `]}`
}

// scriptedServer answers the n-th request with the n-th body and repeats the
// last one. An empty body drops the connection without a response.
func scriptedServer(bodies ...string) *httptest.Server {
	var n int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(atomic.AddInt32(&n, 1)) - 1
		if i >= len(bodies) {
			i = len(bodies) - 1
		}
		if bodies[i] == "" {
			if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
				conn.Close()
			}
			return
		}
		fmt.Fprint(w, bodies[i])
	}))
}

func TestStationSkipsOnlyTheBadDevice(t *testing.T) {
	t0 := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC).Unix()
	t1 := t0 + 120
	first := responseJSON(gaugeJSON(t0, 10), thermometerJSON(t0, 8.5))

	tests := []struct {
		name        string
		second      string
		wantLastTip float64
		wantTotal   float64
		wantRaining bool
		wantTemp    float64
	}{
		{
			name:        "gauge without tip counter",
			second:      responseJSON(fmt.Sprintf(`{"deviceid":"08A1","measurement":{"ts":%d,"t1":12.1}}`, t1), thermometerJSON(t1, 9.1)),
			wantLastTip: 10,
			wantTemp:    9.1,
		},
		{
			name:        "gauge missing from the response",
			second:      responseJSON(thermometerJSON(t1, 9.1)),
			wantLastTip: 10,
			wantTemp:    9.1,
		},
		{
			name:        "thermometer missing from the response",
			second:      responseJSON(gaugeJSON(t1, 12)),
			wantLastTip: 12,
			wantTotal:   0.516,
			wantRaining: true,
			wantTemp:    8.5,
		},
		{
			name:        "server unreachable",
			second:      "",
			wantLastTip: 10,
			wantTemp:    8.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := scriptedServer(first, tt.second)
			defer srv.Close()

			s, store, _ := newTestStation(t, srv.URL)
			ctx := context.Background()

			s.Poll(ctx)
			s.Poll(ctx)

			assert.Equal(t, tt.wantLastTip, floatState(t, store, "mobilealerts.08A1.lrf"))
			assert.InDelta(t, tt.wantTotal, floatState(t, store, "mobilealerts.08A1.rst"), 1e-9)
			assert.Equal(t, tt.wantRaining, boolState(t, store, "mobilealerts.08A1.rb"))
			assert.Equal(t, tt.wantTemp, floatState(t, store, "mobilealerts.0299.t1"))
		})
	}
}

// flakyStore fails writes to one state while failures is positive.
type flakyStore struct {
	weatherstations.StateStore
	id       string
	failures int32
}

func (f *flakyStore) SetStateAt(ctx context.Context, id string, val interface{}, ack bool, ts time.Time) error {
	if id == f.id && atomic.AddInt32(&f.failures, -1) >= 0 {
		return fmt.Errorf("write to %s failed", id)
	}
	return f.StateStore.SetStateAt(ctx, id, val, ack, ts)
}

func TestStationReplaysSnapshotAfterFailedWrite(t *testing.T) {
	start := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	srv := gaugeServer(t, start, []int{10, 12, 12})
	defer srv.Close()

	flaky := &flakyStore{id: "mobilealerts.08A1.rst"}
	s, store, rec := newTestStation(t, srv.URL, func(d *weatherstations.Deps) {
		flaky.StateStore = d.Store
		d.Store = flaky
	})
	ctx := context.Background()

	s.Poll(ctx)
	assert.Equal(t, 0.0, floatState(t, store, "mobilealerts.08A1.rst"))

	atomic.StoreInt32(&flaky.failures, 1)
	s.Poll(ctx)
	assert.Equal(t, 0.0, floatState(t, store, "mobilealerts.08A1.rst"))

	select {
	case msg := <-rec.msgs:
		t.Fatalf("unexpected notification after a failed write: %q", msg.Message)
	case <-time.After(100 * time.Millisecond):
	}

	// the tracker still holds the state of the first poll, so the delta is
	// counted again
	s.Poll(ctx)
	assert.Equal(t, 0.516, floatState(t, store, "mobilealerts.08A1.rst"))
	assert.True(t, boolState(t, store, "mobilealerts.08A1.rb"))

	select {
	case msg := <-rec.msgs:
		assert.Equal(t, "It started raining.", msg.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("no rain started notification")
	}
}
