package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"stationmgr/backend/services/station-manager/internal/livestatus"
	"stationmgr/backend/services/station-manager/internal/models"
	"stationmgr/backend/services/station-manager/internal/service"
)

// StationService is the part of the station manager exposed over HTTP.
type StationService interface {
	ListStations() []models.StationView
	GetStation(id string) (models.StationView, error)
	StationOutput(id string) ([]string, error)
	StartStations(ctx context.Context, ids []string) []string
	StopStations(ctx context.Context, ids []string) []string
	ChangeApp(ctx context.Context, ids []string, appID string) []string
	LoadConfiguration(ctx context.Context) error
	GlobalOutput() []string
	Log() []models.LogEntry
	LastLivestatusDump() []livestatus.Row
	PollStats() service.PollStats
}

type batchRequest struct {
	IDs   []string `json:"ids"`
	AppID string   `json:"app_id"`
}

// StationsHandler serves station queries and batch commands.
type StationsHandler struct {
	svc     StationService
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewStationsHandler builds handler. A nil limiter accepts every command request.
func NewStationsHandler(svc StationService, limiter *rate.Limiter, logger *zap.Logger) *StationsHandler {
	return &StationsHandler{svc: svc, limiter: limiter, logger: logger.Named("stations_handler")}
}

// List handles GET /stations.
func (h *StationsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ListStations())
}

// Get handles GET /stations/{id}.
func (h *StationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	station, err := h.svc.GetStation(r.PathValue("id"))
	if errors.Is(err, service.ErrStationNotFound) {
		writeError(w, http.StatusNotFound, "station not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch station")
		return
	}
	writeJSON(w, http.StatusOK, station)
}

// Output handles GET /stations/{id}/output.
func (h *StationsHandler) Output(w http.ResponseWriter, r *http.Request) {
	lines, err := h.svc.StationOutput(r.PathValue("id"))
	if errors.Is(err, service.ErrStationNotFound) {
		writeError(w, http.StatusNotFound, "station not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch output")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lines": lines})
}

// Start handles POST /stations/start.
func (h *StationsHandler) Start(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}
	h.dispatch(r, "start", func(ctx context.Context) []string {
		return h.svc.StartStations(ctx, req.IDs)
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Stop handles POST /stations/stop.
func (h *StationsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}
	h.dispatch(r, "stop", func(ctx context.Context) []string {
		return h.svc.StopStations(ctx, req.IDs)
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// ChangeApp handles POST /stations/change_app.
func (h *StationsHandler) ChangeApp(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}
	if req.AppID == "" {
		writeError(w, http.StatusBadRequest, "app_id is required")
		return
	}
	h.dispatch(r, "change app", func(ctx context.Context) []string {
		return h.svc.ChangeApp(ctx, req.IDs, req.AppID)
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *StationsHandler) decodeBatch(w http.ResponseWriter, r *http.Request) (batchRequest, bool) {
	var req batchRequest
	if h.limiter != nil && !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return req, false
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return req, false
	}
	return req, true
}

// dispatch runs a batch after the response is written; the request context is detached.
func (h *StationsHandler) dispatch(r *http.Request, op string, run func(context.Context) []string) {
	ctx := context.WithoutCancel(r.Context())
	go func() {
		dispatched := run(ctx)
		h.logger.Debug("batch settled", zap.String("op", op), zap.Strings("station_ids", dispatched))
	}()
}
