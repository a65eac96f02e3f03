package restserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/chrissnell/homewx/internal/history"
	"github.com/chrissnell/homewx/internal/state"
	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/pkg/responseformat"
	"github.com/gorilla/mux"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// SetStateRequest is the body of PUT /api/v1/states/{id}.
type SetStateRequest struct {
	Val json.RawMessage `json:"val"`
	Ack bool            `json:"ack"`
}

// HistoryResponse is returned by GET /api/v1/history/{id}.
type HistoryResponse struct {
	ID      string          `json:"id"`
	Entries []history.Entry `json:"entries"`
}

// ListStates returns all states matching the pattern query parameter, or
// all states without one.
func (h *Handlers) ListStates(w http.ResponseWriter, req *http.Request) {
	pattern := req.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "*"
	}

	states, err := h.controller.store.List(req.Context(), pattern)
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, err.Error())
		return
	}
	if states == nil {
		states = []types.State{}
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, states)
}

// GetState returns one state.
func (h *Handlers) GetState(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	st, err := h.controller.store.GetState(req.Context(), id)
	switch {
	case errors.Is(err, state.ErrNotFound):
		h.formatter.WriteError(w, req, http.StatusNotFound, "state not found: "+id)
		return
	case err != nil:
		h.controller.logger.Errorw("failed to read state", "id", id, "error", err)
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "failed to read state")
		return
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, st)
}

// SetState writes a state the way a dashboard button does. Only existing,
// writable states can be set.
func (h *Handlers) SetState(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	ctx := req.Context()

	var body SetStateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 64<<10)).Decode(&body); err != nil || len(body.Val) == 0 {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "body must be {\"val\": ..., \"ack\": bool}")
		return
	}

	var val interface{}
	if err := json.Unmarshal(body.Val, &val); err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "invalid value")
		return
	}
	if list, ok := val.([]interface{}); ok {
		// lists are stored as []float64
		floats := make([]float64, 0, len(list))
		for _, e := range list {
			f, ok := e.(float64)
			if !ok {
				h.formatter.WriteError(w, req, http.StatusBadRequest, "lists must contain numbers only")
				return
			}
			floats = append(floats, f)
		}
		val = floats
	}

	st, err := h.controller.store.GetState(ctx, id)
	switch {
	case errors.Is(err, state.ErrNotFound):
		h.formatter.WriteError(w, req, http.StatusNotFound, "state not found: "+id)
		return
	case err != nil:
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "failed to read state")
		return
	}
	if !st.Common.Write {
		h.formatter.WriteError(w, req, http.StatusForbidden, "state is read-only: "+id)
		return
	}

	if err := h.controller.store.SetState(ctx, id, val, body.Ack); err != nil {
		h.controller.logger.Errorw("failed to write state", "id", id, "error", err)
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "failed to write state")
		return
	}

	st, err = h.controller.store.GetState(ctx, id)
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "failed to read state")
		return
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, st)
}

// GetHistory returns the newest recorded values of a state.
func (h *Handlers) GetHistory(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	if h.controller.history == nil {
		h.formatter.WriteError(w, req, http.StatusServiceUnavailable, "no history available")
		return
	}

	limit := defaultHistoryLimit
	if l := req.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			h.formatter.WriteError(w, req, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.controller.history.Latest(req.Context(), id, limit)
	if err != nil {
		h.controller.logger.Errorw("failed to query history", "id", id, "error", err)
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "failed to query history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, HistoryResponse{ID: id, Entries: entries})
}

// Health reports that the server is up.
func (h *Handlers) Health(w http.ResponseWriter, req *http.Request) {
	h.formatter.WriteResponse(w, req, http.StatusOK, map[string]string{"status": "ok"})
}
