package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"stationmgr/backend/services/station-manager/internal/livestatus"
	"stationmgr/backend/services/station-manager/internal/models"
	"stationmgr/backend/services/station-manager/internal/notify"
)

var (
	// ErrStationNotFound is returned for ids missing from the registry.
	ErrStationNotFound = errors.New("station manager: station not found")
	// ErrDuplicateStation is returned when adding an id that is already registered.
	ErrDuplicateStation = errors.New("station manager: duplicate station id")
)

// Executor performs commands against stations. Progress text goes to out.
type Executor interface {
	GetStationConfig(ctx context.Context, out io.Writer) ([]models.StationConfig, error)
	StartStation(ctx context.Context, stationID string, out io.Writer) error
	StopStation(ctx context.Context, stationID string, out io.Writer) error
	ChangeApp(ctx context.Context, stationID, appID string, out io.Writer) error
}

// Monitor returns the merged monitoring snapshot of the fleet.
type Monitor interface {
	State(ctx context.Context) ([]livestatus.Row, error)
}

// Options tunes the Manager.
type Options struct {
	ScriptConcurrency  int
	MaxLogLength       int
	OutputBufferLines  int
	PollDelay          time.Duration
	ErrorDigestSize    int
	// DigestAcrossCycles keeps the failure streak between poll cycles. When false every
	// failing cycle counts as the first failure and the digest entry is never written.
	DigestAcrossCycles bool
	LogSink            LogSink
}

// Manager owns the station registry and activity log, dispatches commands with a shared
// concurrency cap and reconciles monitoring data into stations.
type Manager struct {
	mu       sync.Mutex
	stations []*Station
	index    map[string]*Station
	log      *ActivityLog
	lastDump []livestatus.Row
	lastErr  string

	globalOutput *OutputBuffer
	executor     Executor
	monitor      Monitor
	hub          *notify.Hub
	slots        *semaphore.Weighted
	opts         Options
	logger       *zap.Logger

	pollStarted sync.Once
	cycles      atomic.Uint64
	failures    atomic.Uint64
	consecutive atomic.Uint64
}

// NewManager builds a Manager with an empty registry.
func NewManager(executor Executor, monitor Monitor, hub *notify.Hub, opts Options, logger *zap.Logger) *Manager {
	if opts.ScriptConcurrency <= 0 {
		opts.ScriptConcurrency = 1
	}
	if opts.PollDelay <= 0 {
		opts.PollDelay = time.Second
	}
	if opts.ErrorDigestSize <= 0 {
		opts.ErrorDigestSize = 50
	}
	return &Manager{
		index:        make(map[string]*Station),
		log:          NewActivityLog(opts.MaxLogLength, opts.LogSink),
		globalOutput: NewOutputBuffer(opts.OutputBufferLines),
		executor:     executor,
		monitor:      monitor,
		hub:          hub,
		slots:        semaphore.NewWeighted(int64(opts.ScriptConcurrency)),
		opts:         opts,
		logger:       logger.Named("station_manager"),
	}
}

// LoadConfiguration replaces the registry with the stations returned by the executor.
// The registry is cleared first and stays empty if the read fails.
func (m *Manager) LoadConfiguration(ctx context.Context) error {
	m.ClearStations()
	m.signalUpdate()

	configs, err := m.executor.GetStationConfig(ctx, m.globalOutput)
	if err != nil {
		return fmt.Errorf("station manager: load configuration: %w", err)
	}

	for _, cfg := range configs {
		if err := m.AddStation(cfg); err != nil {
			m.logger.Warn("skipping station", zap.String("station_id", cfg.ID), zap.Error(err))
		}
	}
	m.signalUpdate()

	m.logger.Info("station configuration loaded", zap.Int("stations", len(configs)))
	return nil
}

// AddStation appends a station to the registry.
func (m *Manager) AddStation(cfg models.StationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.index[cfg.ID]; exists {
		return ErrDuplicateStation
	}
	m.logger.Debug("adding station", zap.String("station_id", cfg.ID))
	st := NewStation(cfg, m.opts.OutputBufferLines)
	m.stations = append(m.stations, st)
	m.index[cfg.ID] = st
	return nil
}

// RemoveStation drops a station from the registry.
func (m *Manager) RemoveStation(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.index[id]
	if !ok {
		return ErrStationNotFound
	}
	m.logger.Debug("removing station", zap.String("station_id", id))
	for i, candidate := range m.stations {
		if candidate == st {
			m.stations = append(m.stations[:i], m.stations[i+1:]...)
			break
		}
	}
	delete(m.index, id)
	return nil
}

// ClearStations empties the registry.
func (m *Manager) ClearStations() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug("clearing all stations")
	m.stations = nil
	m.index = make(map[string]*Station)
}

// ListStations returns the stations in configuration order.
func (m *Manager) ListStations() []models.StationView {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]models.StationView, 0, len(m.stations))
	for _, st := range m.stations {
		views = append(views, st.View())
	}
	return views
}

// GetStation returns one station.
func (m *Manager) GetStation(id string) (models.StationView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.index[id]
	if !ok {
		return models.StationView{}, ErrStationNotFound
	}
	return st.View(), nil
}

// StartStations starts every listed station that is off and waits for the commands to
// settle. It returns the ids that were dispatched.
func (m *Manager) StartStations(ctx context.Context, ids []string) []string {
	return m.runBatch(ctx, ids, operation{
		name:  "start",
		claim: (*Station).QueueStart,
		begin: (*Station).SetStarting,
		run: func(ctx context.Context, st *Station) error {
			return m.executor.StartStation(ctx, st.ID(), st.Output())
		},
		done:          (*Station).SetOn,
		successLog:    "Station started",
		failureLog:    "Error starting station",
		failureStatus: "Failure starting the station",
	})
}

// StopStations stops every listed station that is on and waits for the commands to settle.
func (m *Manager) StopStations(ctx context.Context, ids []string) []string {
	return m.runBatch(ctx, ids, operation{
		name:  "stop",
		claim: (*Station).QueueStop,
		begin: (*Station).SetStopping,
		run: func(ctx context.Context, st *Station) error {
			return m.executor.StopStation(ctx, st.ID(), st.Output())
		},
		done:          (*Station).SetOff,
		successLog:    "Station stopped",
		failureLog:    "Error stopping station",
		failureStatus: "Failure stopping the station",
	})
}

// ChangeApp switches every listed station that is on to appID and waits for the
// commands to settle.
func (m *Manager) ChangeApp(ctx context.Context, ids []string, appID string) []string {
	return m.runBatch(ctx, ids, operation{
		name: "change app",
		claim: func(st *Station) bool {
			return st.QueueChangeApp(appID)
		},
		begin: (*Station).SetChangingApp,
		run: func(ctx context.Context, st *Station) error {
			return m.executor.ChangeApp(ctx, st.ID(), appID, st.Output())
		},
		done:          (*Station).SetOn,
		successLog:    fmt.Sprintf("Launched app %s", appID),
		failureLog:    fmt.Sprintf("Failed to launch app %s", appID),
		failureStatus: fmt.Sprintf("Failed to open %s", appID),
	})
}

type operation struct {
	name          string
	claim         func(*Station) bool
	begin         func(*Station)
	run           func(context.Context, *Station) error
	done          func(*Station)
	successLog    string
	failureLog    string
	failureStatus string
}

// runBatch claims every eligible station before any command is dispatched, so an
// overlapping batch naming the same station sees it already claimed.
func (m *Manager) runBatch(ctx context.Context, ids []string, op operation) []string {
	m.mu.Lock()
	eligible := make([]*Station, 0, len(ids))
	for _, id := range ids {
		st, ok := m.index[id]
		if ok && op.claim(st) {
			eligible = append(eligible, st)
		}
	}
	m.mu.Unlock()

	m.signalUpdate()

	// Claimed work always runs to completion.
	ctx = context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	dispatched := make([]string, 0, len(eligible))
	for _, st := range eligible {
		dispatched = append(dispatched, st.ID())
		wg.Add(1)
		go func(st *Station) {
			defer wg.Done()
			m.dispatch(ctx, st, op)
		}(st)
	}
	wg.Wait()
	return dispatched
}

func (m *Manager) dispatch(ctx context.Context, st *Station, op operation) {
	// ctx is never cancelled, so Acquire only returns once a slot is free.
	_ = m.slots.Acquire(ctx, 1)
	defer m.slots.Release(1)

	logger := m.logger.With(zap.String("station_id", st.ID()), zap.String("op", op.name))

	m.mu.Lock()
	op.begin(st)
	m.mu.Unlock()
	m.signalUpdate()

	logger.Debug("dispatching station command")
	err := op.run(ctx, st)

	m.mu.Lock()
	if err != nil {
		logger.Warn("station command failed", zap.Error(err))
		m.log.Append(models.LogError, st, op.failureLog)
		st.SetError(op.failureStatus)
	} else {
		logger.Debug("station command finished")
		op.done(st)
		m.log.Append(models.LogMessage, st, op.successLog)
	}
	m.mu.Unlock()

	m.signalUpdate()
}

// Log returns the activity log, oldest first.
func (m *Manager) Log() []models.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.log.Entries()
}

// Subscribe registers for change notifications.
func (m *Manager) Subscribe() *notify.Subscription {
	return m.hub.Subscribe()
}

// LastLivestatusDump returns the rows of the latest successful poll.
func (m *Manager) LastLivestatusDump() []livestatus.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]livestatus.Row, len(m.lastDump))
	copy(out, m.lastDump)
	return out
}

// StationOutput returns a station's captured command output.
func (m *Manager) StationOutput(id string) ([]string, error) {
	m.mu.Lock()
	st, ok := m.index[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrStationNotFound
	}
	return st.Output().Lines(), nil
}

// GlobalOutput returns output captured outside station commands, such as config reads.
func (m *Manager) GlobalOutput() []string {
	return m.globalOutput.Lines()
}

func (m *Manager) signalUpdate() {
	m.hub.Publish()
}
