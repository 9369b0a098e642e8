package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	Health         http.HandlerFunc
	Stations       http.HandlerFunc
	Station        http.HandlerFunc
	StationOutput  http.HandlerFunc
	StartStations  http.HandlerFunc
	StopStations   http.HandlerFunc
	ChangeApp      http.HandlerFunc
	Reload         http.HandlerFunc
	ServerOutput   http.HandlerFunc
	Notifications  http.HandlerFunc
	LivestatusDump http.HandlerFunc
	PollStats      http.HandlerFunc
	WebSocket      http.HandlerFunc
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	if routes.Stations != nil {
		mux.Handle("/stations", method(http.MethodGet, routes.Stations))
	}
	if routes.Station != nil {
		mux.Handle("/stations/{id}", method(http.MethodGet, routes.Station))
	}
	if routes.StationOutput != nil {
		mux.Handle("/stations/{id}/output", method(http.MethodGet, routes.StationOutput))
	}
	if routes.StartStations != nil {
		mux.Handle("/stations/start", method(http.MethodPost, routes.StartStations))
	}
	if routes.StopStations != nil {
		mux.Handle("/stations/stop", method(http.MethodPost, routes.StopStations))
	}
	if routes.ChangeApp != nil {
		mux.Handle("/stations/change_app", method(http.MethodPost, routes.ChangeApp))
	}
	if routes.Reload != nil {
		mux.Handle("/server/reload", method(http.MethodPost, routes.Reload))
	}
	if routes.ServerOutput != nil {
		mux.Handle("/server/output", method(http.MethodGet, routes.ServerOutput))
	}
	if routes.Notifications != nil {
		mux.Handle("/notifications", method(http.MethodGet, routes.Notifications))
	}
	if routes.LivestatusDump != nil {
		mux.Handle("/server/mkls", method(http.MethodGet, routes.LivestatusDump))
	}
	if routes.PollStats != nil {
		mux.Handle("/server/stats", method(http.MethodGet, routes.PollStats))
	}
	if routes.WebSocket != nil {
		mux.Handle("/ws", method(http.MethodGet, routes.WebSocket))
	}
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
