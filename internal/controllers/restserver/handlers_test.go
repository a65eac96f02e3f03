package restserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chrissnell/homewx/internal/history"
	"github.com/chrissnell/homewx/internal/metrics"
	"github.com/chrissnell/homewx/internal/state"
	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*httptest.Server, *state.Manager) {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop().Sugar()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hist := history.NewMemory(10)
	store := state.NewManager(state.NewMemoryBackend(), logger, state.WithRecorder(hist), state.WithMetrics(m))

	_, err := store.CreateState(ctx, "server.powerLed", 1.0, types.StateCommon{Name: "Server power LED", Write: true})
	require.NoError(t, err)
	_, err = store.CreateState(ctx, "mobilealerts.08A1.rst", 0.0, types.StateCommon{Name: "Rainfall today", Unit: "mm"})
	require.NoError(t, err)
	_, err = store.CreateState(ctx, "sensegg.201.btVt", []float64{2.65, 2.45}, types.StateCommon{Write: true})
	require.NoError(t, err)
	for _, v := range []float64{0.258, 0.516, 1.032} {
		require.NoError(t, store.SetState(ctx, "mobilealerts.08A1.rst", v, true))
	}

	ctrl, err := NewController(ctx, &sync.WaitGroup{}, config.RESTServerData{}, store, hist, reg, logger)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", ctrl.Server.Addr)

	srv := httptest.NewServer(ctrl.Server.Handler)
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestListStates(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		pattern string
		want    []string
	}{
		{pattern: "", want: []string{"mobilealerts.08A1.rst", "sensegg.201.btVt", "server.powerLed"}},
		{pattern: "mobilealerts.*", want: []string{"mobilealerts.08A1.rst"}},
		{pattern: "nothing.*", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/states?pattern="+tt.pattern, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var states []types.State
			require.NoError(t, json.Unmarshal(body, &states))
			ids := make([]string, 0, len(states))
			for _, st := range states {
				ids = append(ids, st.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestGetState(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/states/mobilealerts.08A1.rst", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st types.State
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 1.032, st.Val)
	assert.Equal(t, "mm", st.Common.Unit)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/states/does.not.exist", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetState(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		id     string
		body   string
		status int
	}{
		{name: "switch LED off", id: "server.powerLed", body: `{"val":0}`, status: http.StatusOK},
		{name: "thresholds", id: "sensegg.201.btVt", body: `{"val":[2.7,2.5],"ack":true}`, status: http.StatusOK},
		{name: "read-only", id: "mobilealerts.08A1.rst", body: `{"val":0}`, status: http.StatusForbidden},
		{name: "unknown", id: "server.fan", body: `{"val":1}`, status: http.StatusNotFound},
		{name: "no value", id: "server.powerLed", body: `{}`, status: http.StatusBadRequest},
		{name: "mixed list", id: "sensegg.201.btVt", body: `{"val":[1,"a"]}`, status: http.StatusBadRequest},
		{name: "garbage", id: "server.powerLed", body: `off`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := do(t, http.MethodPut, srv.URL+"/api/v1/states/"+tt.id, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	st, err := store.GetState(ctx, "server.powerLed")
	require.NoError(t, err)
	assert.Equal(t, 0.0, st.Val)
	assert.False(t, st.Ack)

	st, err = store.GetState(ctx, "sensegg.201.btVt")
	require.NoError(t, err)
	assert.Equal(t, []float64{2.7, 2.5}, st.Val)
	assert.True(t, st.Ack)
}

func TestGetHistory(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/history/mobilealerts.08A1.rst?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var hr HistoryResponse
	require.NoError(t, json.Unmarshal(body, &hr))
	require.Len(t, hr.Entries, 2)
	assert.Equal(t, 1.032, hr.Entries[0].Val)
	assert.Equal(t, 0.516, hr.Entries[1].Val)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/history/unknown.state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &hr))
	assert.Empty(t, hr.Entries)
	assert.NotNil(t, hr.Entries)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/history/mobilealerts.08A1.rst?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, body = do(t, http.MethodGet, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "homewx_state_writes_total")
}
