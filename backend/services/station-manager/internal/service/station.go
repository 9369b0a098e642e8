package service

import (
	"fmt"
	"time"

	"stationmgr/backend/services/station-manager/internal/livestatus"
	"stationmgr/backend/services/station-manager/internal/models"
)

// Station is the runtime state of one managed device. Only the Manager mutates it and
// it serializes every call; the output buffer has its own lock because command
// executions write into it concurrently.
type Station struct {
	cfg        models.StationConfig
	state      models.State
	status     string
	app        string
	targetApp  string
	output     *OutputBuffer
	monitoring models.MonitoringState
}

// NewStation builds an idle station running its default app.
func NewStation(cfg models.StationConfig, outputLines int) *Station {
	cfg.CompatibleApps = append([]string(nil), cfg.CompatibleApps...)
	return &Station{
		cfg:    cfg,
		state:  models.StateOff,
		app:    cfg.DefaultApp,
		output: NewOutputBuffer(outputLines),
		monitoring: models.MonitoringState{
			State:    livestatus.HostDown,
			AppState: livestatus.ServiceUnknown,
		},
	}
}

// ID returns the immutable station id.
func (s *Station) ID() string { return s.cfg.ID }

// Name returns the display name.
func (s *Station) Name() string { return s.cfg.Name }

// State returns the lifecycle state.
func (s *Station) State() models.State { return s.state }

// App returns the current or target application.
func (s *Station) App() string { return s.app }

// Output returns the station's command output buffer.
func (s *Station) Output() *OutputBuffer { return s.output }

// QueueStart claims an off station for starting.
func (s *Station) QueueStart() bool {
	if s.state != models.StateOff {
		return false
	}
	s.set(models.StateQueuedToStart, "Queued to start")
	return true
}

// SetStarting marks the start command as running.
func (s *Station) SetStarting() {
	s.set(models.StateStarting, "Starting...")
}

// QueueStop claims a running station for stopping.
func (s *Station) QueueStop() bool {
	if s.state != models.StateOn {
		return false
	}
	s.set(models.StateQueuedToStop, "Queued to stop")
	return true
}

// SetStopping marks the stop command as running.
func (s *Station) SetStopping() {
	s.set(models.StateStopping, "Stopping...")
}

// QueueChangeApp claims a running station for switching to appID.
func (s *Station) QueueChangeApp(appID string) bool {
	if s.state != models.StateOn {
		return false
	}
	s.targetApp = appID
	s.set(models.StateQueuedToChangeApp, fmt.Sprintf("Queued to launch %s", appID))
	return true
}

// SetChangingApp marks the app change as running.
func (s *Station) SetChangingApp() {
	s.set(models.StateChangingApp, fmt.Sprintf("Launching %s...", s.targetApp))
}

// SetOn moves the station to on. A pending app change becomes the current app.
func (s *Station) SetOn() {
	if s.state == models.StateChangingApp && s.targetApp != "" {
		s.app = s.targetApp
	}
	s.targetApp = ""
	s.set(models.StateOn, "")
}

// SetOff moves the station to off.
func (s *Station) SetOff() {
	s.targetApp = ""
	s.set(models.StateOff, "")
}

// SetError moves the station to error with a human readable reason.
func (s *Station) SetError(message string) {
	s.targetApp = ""
	s.set(models.StateError, message)
}

func (s *Station) set(state models.State, status string) {
	s.state = state
	s.status = status
}

// UpdateFromLivestatus merges monitoring data and reports whether anything observable
// changed. The lifecycle state and status are left alone.
func (s *Station) UpdateFromLivestatus(row livestatus.Row) bool {
	next := s.monitoring
	next.State = row.State
	next.StateType = row.StateType
	next.Unreachable = row.State == livestatus.HostUnreachable
	if row.HasApp {
		next.AppState = row.AppState
		next.AppStateType = row.AppStateType
		next.AppID = row.AppID
	} else {
		next.AppState = livestatus.ServiceUnknown
		next.AppStateType = livestatus.StateTypeSoft
		next.AppID = ""
	}

	next.LastUpdated = s.monitoring.LastUpdated
	if next == s.monitoring {
		return false
	}
	next.LastUpdated = time.Now().UTC()
	s.monitoring = next
	return true
}

// View returns a copy safe to hand out of the Manager.
func (s *Station) View() models.StationView {
	return models.StationView{
		ID:             s.cfg.ID,
		Name:           s.cfg.Name,
		Description:    s.cfg.Description,
		Type:           s.cfg.Type,
		DefaultApp:     s.cfg.DefaultApp,
		CompatibleApps: append([]string(nil), s.cfg.CompatibleApps...),
		State:          s.state,
		Status:         s.status,
		App:            s.app,
		Monitoring:     s.monitoring,
	}
}
