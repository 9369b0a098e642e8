package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// NewHealthHandler returns GET /health handler.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// NewServerOutputHandler returns GET /server/output handler.
func NewServerOutputHandler(svc StationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"lines": svc.GlobalOutput()})
	}
}

// NewNotificationsHandler returns GET /notifications handler.
func NewNotificationsHandler(svc StationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Log())
	}
}

// NewLivestatusDumpHandler returns GET /server/mkls handler.
func NewLivestatusDumpHandler(svc StationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.LastLivestatusDump())
	}
}

// NewPollStatsHandler returns GET /server/stats handler.
func NewPollStatsHandler(svc StationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.PollStats())
	}
}

// NewReloadHandler returns POST /server/reload handler. The reload runs in the background.
func NewReloadHandler(svc StationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithoutCancel(r.Context())
		go func() {
			if err := svc.LoadConfiguration(ctx); err != nil {
				logger.Error("failed to reload station configuration", zap.Error(err))
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}
