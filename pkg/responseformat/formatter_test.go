package responseformat

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

type sample struct {
	ID  string  `json:"id"`
	Val float64 `json:"val"`
}

func TestWriteResponseJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/states", nil)

	if err := NewFormatter().WriteResponse(rec, req, http.StatusOK, sample{ID: "var.pressure.qff", Val: 1013.25}); err != nil {
		t.Fatalf("WriteResponse() error = %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS header = %q, want *", got)
	}
	want := `{"id":"var.pressure.qff","val":1013.25}` + "\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
}

func TestWriteResponseMsgPack(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/states?format=msgpack", nil)

	if err := NewFormatter().WriteResponse(rec, req, http.StatusOK, sample{ID: "sun.sunrise", Val: 1}); err != nil {
		t.Fatalf("WriteResponse() error = %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != "application/x-msgpack" {
		t.Errorf("Content-Type = %q, want application/x-msgpack", got)
	}

	var got map[string]interface{}
	if err := msgpack.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding msgpack: %v", err)
	}
	if got["id"] != "sun.sunrise" {
		t.Errorf("id = %v, want sun.sunrise", got["id"])
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_ = NewFormatter().WriteError(rec, req, http.StatusNotFound, "state not found")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	want := `{"error":"state not found"}` + "\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
}
