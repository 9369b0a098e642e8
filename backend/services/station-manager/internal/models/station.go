package models

import "time"

// State is the control-flow lifecycle state of a station.
type State string

const (
	StateOff               State = "off"
	StateQueuedToStart     State = "queued-to-start"
	StateStarting          State = "starting"
	StateOn                State = "on"
	StateQueuedToStop      State = "queued-to-stop"
	StateStopping          State = "stopping"
	StateQueuedToChangeApp State = "queued-to-change-app"
	StateChangingApp       State = "changing-app"
	StateError             State = "error"
)

// StationConfig is the static definition of a station as read from the hilbert configuration.
type StationConfig struct {
	ID             string   `json:"id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	Description    string   `json:"description" yaml:"description"`
	Type           string   `json:"type" yaml:"type"`
	DefaultApp     string   `json:"default_app" yaml:"default_app"`
	CompatibleApps []string `json:"compatible_apps" yaml:"compatible_apps"`
}

// MonitoringState holds the last values observed through MK Livestatus.
type MonitoringState struct {
	State        int       `json:"state"`
	StateType    int       `json:"state_type"`
	AppState     int       `json:"app_state"`
	AppStateType int       `json:"app_state_type"`
	AppID        string    `json:"app_id"`
	Unreachable  bool      `json:"unreachable"`
	LastUpdated  time.Time `json:"last_updated"`
}

// StationView is an immutable copy of a station handed to callers.
type StationView struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Type           string          `json:"type"`
	DefaultApp     string          `json:"default_app"`
	CompatibleApps []string        `json:"compatible_apps"`
	State          State           `json:"state"`
	Status         string          `json:"status"`
	App            string          `json:"app"`
	Monitoring     MonitoringState `json:"mk_livestatus"`
}
