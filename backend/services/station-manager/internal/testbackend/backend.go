package testbackend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"stationmgr/backend/services/station-manager/internal/clients"
	"stationmgr/backend/services/station-manager/internal/livestatus"
	"stationmgr/backend/services/station-manager/internal/models"
)

// ErrSimulatedFailure is returned for stations configured to fail.
var ErrSimulatedFailure = errors.New("testbackend: simulated hilbert CLI failure")

const (
	defaultMinDelay = time.Second
	defaultMaxDelay = 5 * time.Second
)

// Options configures the simulation.
type Options struct {
	ConfigFile   string
	FailCommands []string
	Unreachable  []string
	// StopUnexpectedly lists stations that go down on the next hosts query, once.
	StopUnexpectedly []string
	// UnexpectedOff makes started stations drop back down before their app comes up,
	// and makes change-app commands take the station down.
	UnexpectedOff bool
	// Timeout makes every command hang until its context is done.
	Timeout bool
	// SimulateDelays pauses each command step for a random time in [MinDelay, MaxDelay).
	SimulateDelays     bool
	MinDelay           time.Duration
	MaxDelay           time.Duration
	ServiceDescription string
	FieldSeparator     string
}

type hostState struct {
	state        int
	stateType    int
	appState     int
	appStateType int
	appID        string
}

// Backend simulates a fleet: it acts as the command executor and answers Livestatus
// queries from its own in-memory state.
type Backend struct {
	mu            sync.Mutex
	opts          Options
	order         []string
	configs       map[string]models.StationConfig
	hosts         map[string]*hostState
	failIDs       map[string]bool
	unreachable   map[string]bool
	stopNext      map[string]bool
	unexpectedOff bool
	timeout       bool
	logger        *zap.Logger
}

// New builds an empty simulation.
func New(opts Options, logger *zap.Logger) *Backend {
	if opts.FieldSeparator == "" {
		opts.FieldSeparator = livestatus.DefaultFieldSeparator
	}
	if opts.ServiceDescription == "" {
		opts.ServiceDescription = livestatus.DefaultServiceDescription
	}
	if opts.SimulateDelays && opts.MaxDelay <= 0 {
		opts.MinDelay, opts.MaxDelay = defaultMinDelay, defaultMaxDelay
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	b := &Backend{
		opts:          opts,
		configs:       make(map[string]models.StationConfig),
		hosts:         make(map[string]*hostState),
		failIDs:       toSet(opts.FailCommands),
		unreachable:   toSet(opts.Unreachable),
		stopNext:      toSet(opts.StopUnexpectedly),
		unexpectedOff: opts.UnexpectedOff,
		timeout:       opts.Timeout,
		logger:        logger.Named("testbackend"),
	}
	return b
}

// Load replaces the simulated stations; every station starts down.
func (b *Backend) Load(configs []models.StationConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.order = b.order[:0]
	b.configs = make(map[string]models.StationConfig, len(configs))
	b.hosts = make(map[string]*hostState, len(configs))
	for _, cfg := range configs {
		b.order = append(b.order, cfg.ID)
		b.configs[cfg.ID] = cfg
		b.hosts[cfg.ID] = &hostState{}
		b.hosts[cfg.ID].setDown()
	}
}

// SetFailing toggles simulated command failures for a station.
func (b *Backend) SetFailing(stationID string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failIDs[stationID] = fail
}

// SetUnreachable toggles reporting a station as unreachable.
func (b *Backend) SetUnreachable(stationID string, unreachable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unreachable[stationID] = unreachable
}

// StopUnexpectedly takes the stations down on the next hosts query without any command.
func (b *Backend) StopUnexpectedly(stationIDs ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range stationIDs {
		b.stopNext[id] = true
	}
}

// SetUnexpectedOff toggles stations dropping down during start and change-app.
func (b *Backend) SetUnexpectedOff(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unexpectedOff = on
}

// SetTimeout toggles commands hanging until their context is done.
func (b *Backend) SetTimeout(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = on
}

// GetStationConfig reads ConfigFile when set, otherwise returns the loaded stations.
func (b *Backend) GetStationConfig(ctx context.Context, out io.Writer) ([]models.StationConfig, error) {
	fmt.Fprintln(out, b.waitingMessage("Simulating reading hilbert configuration."))
	if err := b.delay(ctx); err != nil {
		return nil, err
	}

	if b.opts.ConfigFile == "" {
		b.mu.Lock()
		defer b.mu.Unlock()
		configs := make([]models.StationConfig, 0, len(b.order))
		for _, id := range b.order {
			configs = append(configs, b.configs[id])
		}
		return configs, nil
	}

	data, err := os.ReadFile(b.opts.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("testbackend: read config: %w", err)
	}
	configs, err := clients.ParseHilbertConfig(data)
	if err != nil {
		return nil, err
	}
	b.Load(configs)
	return configs, nil
}

// StartStation brings a down station up, then starts its default app.
func (b *Backend) StartStation(ctx context.Context, stationID string, out io.Writer) error {
	if err := b.begin(ctx, stationID, out, "starting station "+stationID); err != nil {
		return err
	}
	if err := b.delay(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	host, ok := b.hosts[stationID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("testbackend: unknown station %s", stationID)
	}
	if host.state != livestatus.HostDown {
		b.mu.Unlock()
		return nil
	}
	host.setUp()
	b.mu.Unlock()

	if err := b.delay(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unexpectedOff {
		host.setDown()
		return nil
	}
	host.setAppUp(b.configs[stationID].DefaultApp)
	fmt.Fprintf(out, "Station state set to UP with app %s.\n", host.appID)
	return nil
}

// StopStation brings an up station down.
func (b *Backend) StopStation(ctx context.Context, stationID string, out io.Writer) error {
	if err := b.begin(ctx, stationID, out, "stopping station "+stationID); err != nil {
		return err
	}
	if err := b.delay(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	host, ok := b.hosts[stationID]
	if !ok {
		return fmt.Errorf("testbackend: unknown station %s", stationID)
	}
	if host.state == livestatus.HostUp {
		host.setDown()
		fmt.Fprintln(out, "Station state set to DOWN.")
	}
	return nil
}

// ChangeApp switches the foreground app. An app the station does not list as compatible
// leaves the current app running and still succeeds.
func (b *Backend) ChangeApp(ctx context.Context, stationID, appID string, out io.Writer) error {
	if err := b.begin(ctx, stationID, out, fmt.Sprintf("changing app for station %s to %s", stationID, appID)); err != nil {
		return err
	}

	b.mu.Lock()
	host, ok := b.hosts[stationID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("testbackend: unknown station %s", stationID)
	}
	if b.unexpectedOff {
		host.setDown()
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if err := b.delay(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !slices.Contains(b.configs[stationID].CompatibleApps, appID) {
		fmt.Fprintf(out, "App %s is not compatible with station %s, app unchanged.\n", appID, stationID)
		return nil
	}
	host.setAppUp(appID)
	fmt.Fprintln(out, "App changed.")
	return nil
}

// RoundTrip answers hosts and services queries in the separator wire format.
func (b *Backend) RoundTrip(ctx context.Context, query string) (string, error) {
	firstLine, _, _ := strings.Cut(query, "\n")
	table := strings.TrimSpace(strings.TrimPrefix(firstLine, "GET "))

	b.mu.Lock()
	defer b.mu.Unlock()

	sep := b.opts.FieldSeparator
	var sb strings.Builder
	switch table {
	case "hosts":
		for id := range b.stopNext {
			if host, ok := b.hosts[id]; ok {
				b.logger.Info("station stopped unexpectedly", zap.String("station", id))
				host.setDown()
			}
		}
		clear(b.stopNext)

		for _, id := range b.order {
			host := b.hosts[id]
			state := host.state
			if b.unreachable[id] {
				state = livestatus.HostUnreachable
			}
			fmt.Fprintf(&sb, "%s%s%d%s%d\n", id, sep, state, sep, host.stateType)
		}
	case "services":
		if !strings.Contains(query, "Filter: description = "+b.opts.ServiceDescription+"\n") {
			return "", nil
		}
		for _, id := range b.order {
			host := b.hosts[id]
			output := livestatus.NoRunningAppOutput
			if host.appID != "" {
				output = fmt.Sprintf("OK - TOP: %s@[simulated]", host.appID)
			}
			fmt.Fprintf(&sb, "%s%s%d%s%d%s%s\n", id, sep, host.appState, sep, host.appStateType, sep, output)
		}
	default:
		return "", fmt.Errorf("testbackend: unsupported table %q", table)
	}

	b.logger.Debug("answered livestatus query", zap.String("table", table))
	return sb.String(), nil
}

// begin runs the common command prologue: a simulated failure or hang, then progress output.
func (b *Backend) begin(ctx context.Context, stationID string, out io.Writer, action string) error {
	b.mu.Lock()
	fail, timeout := b.failIDs[stationID], b.timeout
	b.mu.Unlock()

	if fail {
		return ErrSimulatedFailure
	}
	if timeout {
		fmt.Fprintf(out, "Simulating %s with operation that times out.\n", action)
		<-ctx.Done()
		return ctx.Err()
	}
	fmt.Fprintln(out, b.waitingMessage(fmt.Sprintf("Simulating %s.", action)))
	return nil
}

func (b *Backend) waitingMessage(msg string) string {
	if b.opts.SimulateDelays {
		return msg + " Waiting a random delay..."
	}
	return msg
}

func (b *Backend) delay(ctx context.Context) error {
	if !b.opts.SimulateDelays {
		return nil
	}
	d := b.opts.MinDelay
	if span := b.opts.MaxDelay - b.opts.MinDelay; span > 0 {
		d += rand.N(span)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (h *hostState) setUp() {
	h.state = livestatus.HostUp
	h.stateType = livestatus.StateTypeHard
	h.appState = livestatus.ServiceUnknown
	h.appStateType = livestatus.StateTypeHard
	h.appID = ""
}

func (h *hostState) setAppUp(appID string) {
	h.appState = livestatus.ServiceOK
	h.appStateType = livestatus.StateTypeHard
	h.appID = appID
}

func (h *hostState) setDown() {
	h.state = livestatus.HostDown
	h.stateType = livestatus.StateTypeHard
	h.appState = livestatus.ServiceUnknown
	h.appStateType = livestatus.StateTypeHard
	h.appID = ""
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
