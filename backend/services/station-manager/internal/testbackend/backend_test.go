package testbackend

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"stationmgr/backend/services/station-manager/internal/livestatus"
	"stationmgr/backend/services/station-manager/internal/models"
	"stationmgr/backend/services/station-manager/internal/notify"
	"stationmgr/backend/services/station-manager/internal/service"
)

const fleetYAML = `Stations:
  station_a:
    name: Station A
    type: kiosk
    client_settings:
      hilbert_station_default_application: app_a
    compatible_applications: [app_a, app_b]
  station_b:
    name: Station B
    client_settings:
      hilbert_station_default_application: app_b
    compatible_applications: [app_b]
`

func newFleet(t *testing.T, opts Options) *Backend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stations.yml")
	if err := os.WriteFile(path, []byte(fleetYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	opts.ConfigFile = path
	b := New(opts, zap.NewNop())
	if _, err := b.GetStationConfig(context.Background(), &bytes.Buffer{}); err != nil {
		t.Fatalf("GetStationConfig: %v", err)
	}
	return b
}

func monitorState(t *testing.T, b *Backend) map[string]livestatus.Row {
	t.Helper()
	conn := livestatus.NewConnector(b, livestatus.NewSeparatorParser(""), "", zap.NewNop())
	rows, err := conn.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	byID := make(map[string]livestatus.Row, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	return byID
}

func TestStationsStartDown(t *testing.T) {
	b := newFleet(t, Options{})
	rows := monitorState(t, b)

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for id, r := range rows {
		if r.State != livestatus.HostDown || r.AppID != "" || !r.HasApp {
			t.Errorf("%s: unexpected initial row %+v", id, r)
		}
	}
}

func TestStartChangeStop(t *testing.T) {
	b := newFleet(t, Options{})
	ctx := context.Background()
	out := &bytes.Buffer{}

	if err := b.StartStation(ctx, "station_a", out); err != nil {
		t.Fatalf("StartStation: %v", err)
	}
	if r := monitorState(t, b)["station_a"]; r.State != livestatus.HostUp || r.AppID != "app_a" {
		t.Fatalf("after start: %+v", r)
	}

	if err := b.ChangeApp(ctx, "station_a", "app_b", out); err != nil {
		t.Fatalf("ChangeApp: %v", err)
	}
	if r := monitorState(t, b)["station_a"]; r.AppID != "app_b" {
		t.Fatalf("after change: %+v", r)
	}

	if err := b.ChangeApp(ctx, "station_a", "app_z", out); err != nil {
		t.Fatalf("ChangeApp with incompatible app: %v", err)
	}
	if r := monitorState(t, b)["station_a"]; r.AppID != "app_b" {
		t.Fatalf("incompatible app should leave app_b running: %+v", r)
	}

	if err := b.StopStation(ctx, "station_a", out); err != nil {
		t.Fatalf("StopStation: %v", err)
	}
	if r := monitorState(t, b)["station_a"]; r.State != livestatus.HostDown || r.AppID != "" {
		t.Fatalf("after stop: %+v", r)
	}
	if out.Len() == 0 {
		t.Error("expected progress output")
	}
}

func TestFailingAndUnreachable(t *testing.T) {
	b := newFleet(t, Options{FailCommands: []string{"station_b"}, Unreachable: []string{"station_a"}})

	err := b.StartStation(context.Background(), "station_b", &bytes.Buffer{})
	if !errors.Is(err, ErrSimulatedFailure) {
		t.Fatalf("expected simulated failure, got %v", err)
	}
	rows := monitorState(t, b)
	if rows["station_a"].State != livestatus.HostUnreachable {
		t.Errorf("expected station_a unreachable, got %+v", rows["station_a"])
	}

	b.SetFailing("station_b", false)
	if err := b.StartStation(context.Background(), "station_b", &bytes.Buffer{}); err != nil {
		t.Errorf("StartStation after clearing failure: %v", err)
	}
}

func TestUnsupportedTable(t *testing.T) {
	b := New(Options{}, zap.NewNop())
	if _, err := b.RoundTrip(context.Background(), "GET contacts\n\n"); err == nil {
		t.Error("expected error for unsupported table")
	}
}

// The simulation drives a full manager: commands change the simulated fleet and the
// next poll reflects them.
func TestManagerAgainstSimulatedFleet(t *testing.T) {
	b := newFleet(t, Options{})
	conn := livestatus.NewConnector(b, livestatus.NewSeparatorParser(""), "", zap.NewNop())
	m := service.NewManager(b, conn, notify.NewHub(16), service.Options{ScriptConcurrency: 2}, zap.NewNop())

	ctx := context.Background()
	if err := m.LoadConfiguration(ctx); err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	if got := m.StartStations(ctx, []string{"station_a", "station_b"}); len(got) != 2 {
		t.Fatalf("expected 2 dispatched, got %v", got)
	}
	if err := m.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}

	for _, v := range m.ListStations() {
		if v.State != models.StateOn {
			t.Errorf("%s: expected on, got %s", v.ID, v.State)
		}
		if v.Monitoring.AppID != v.App {
			t.Errorf("%s: monitoring app %q, station app %q", v.ID, v.Monitoring.AppID, v.App)
		}
		if time.Since(v.Monitoring.LastUpdated) > time.Minute {
			t.Errorf("%s: monitoring not refreshed", v.ID)
		}
	}
}

func newSimulatedManager(t *testing.T, b *Backend, concurrency int) *service.Manager {
	t.Helper()
	conn := livestatus.NewConnector(b, livestatus.NewSeparatorParser(""), "", zap.NewNop())
	m := service.NewManager(b, conn, notify.NewHub(16), service.Options{ScriptConcurrency: concurrency}, zap.NewNop())
	if err := m.LoadConfiguration(context.Background()); err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	return m
}

func stationView(t *testing.T, m *service.Manager, id string) models.StationView {
	t.Helper()
	v, err := m.GetStation(id)
	if err != nil {
		t.Fatalf("GetStation(%s): %v", id, err)
	}
	return v
}

func TestUnexpectedStopIsReconciled(t *testing.T) {
	b := newFleet(t, Options{})
	m := newSimulatedManager(t, b, 2)
	ctx := context.Background()

	m.StartStations(ctx, []string{"station_a", "station_b"})
	if err := m.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if v := stationView(t, m, "station_a"); v.Monitoring.State != livestatus.HostUp || v.Monitoring.AppID != "app_a" {
		t.Fatalf("expected station_a up with app_a, got %+v", v.Monitoring)
	}

	b.StopUnexpectedly("station_a")
	if err := m.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	v := stationView(t, m, "station_a")
	if v.Monitoring.State != livestatus.HostDown || v.Monitoring.AppID != "" {
		t.Errorf("expected monitoring to report station_a down, got %+v", v.Monitoring)
	}
	if v.State != models.StateOn {
		t.Errorf("monitoring must not change the lifecycle state, got %s", v.State)
	}
	if other := stationView(t, m, "station_b"); other.Monitoring.State != livestatus.HostUp {
		t.Errorf("station_b should be unaffected, got %+v", other.Monitoring)
	}

	// the stop applies to one query only
	if err := b.StartStation(ctx, "station_a", &bytes.Buffer{}); err != nil {
		t.Fatalf("StartStation: %v", err)
	}
	if err := m.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if v := stationView(t, m, "station_a"); v.Monitoring.State != livestatus.HostUp {
		t.Errorf("expected station_a back up, got %+v", v.Monitoring)
	}
}

func TestStopUnexpectedlyOption(t *testing.T) {
	b := newFleet(t, Options{StopUnexpectedly: []string{"station_b"}})
	ctx := context.Background()

	if err := b.StartStation(ctx, "station_b", &bytes.Buffer{}); err != nil {
		t.Fatalf("StartStation: %v", err)
	}
	if r := monitorState(t, b)["station_b"]; r.State != livestatus.HostDown {
		t.Errorf("expected station_b stopped on first query, got %+v", r)
	}
}

func TestUnexpectedOff(t *testing.T) {
	b := newFleet(t, Options{UnexpectedOff: true})
	m := newSimulatedManager(t, b, 2)
	ctx := context.Background()

	m.StartStations(ctx, []string{"station_a"})
	if err := m.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	v := stationView(t, m, "station_a")
	if v.State != models.StateOn {
		t.Errorf("start should still succeed, got %s", v.State)
	}
	if v.Monitoring.State != livestatus.HostDown {
		t.Errorf("expected station_a down behind the manager, got %+v", v.Monitoring)
	}

	b.SetUnexpectedOff(false)
	if err := b.StartStation(ctx, "station_b", &bytes.Buffer{}); err != nil {
		t.Fatalf("StartStation: %v", err)
	}
	b.SetUnexpectedOff(true)
	if err := b.ChangeApp(ctx, "station_b", "app_b", &bytes.Buffer{}); err != nil {
		t.Fatalf("ChangeApp: %v", err)
	}
	if r := monitorState(t, b)["station_b"]; r.State != livestatus.HostDown || r.AppID != "" {
		t.Errorf("expected change-app to take station_b down, got %+v", r)
	}
}

func TestTimeoutHangsUntilContextDone(t *testing.T) {
	b := newFleet(t, Options{Timeout: true})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := &bytes.Buffer{}
	err := b.StartStation(ctx, "station_a", out)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !strings.Contains(out.String(), "times out") {
		t.Errorf("unexpected output %q", out.String())
	}
	if r := monitorState(t, b)["station_a"]; r.State != livestatus.HostDown {
		t.Errorf("hung command must not change the station, got %+v", r)
	}

	b.SetTimeout(false)
	if err := b.StartStation(context.Background(), "station_a", out); err != nil {
		t.Errorf("StartStation after clearing timeout: %v", err)
	}
}

func TestSimulatedDelaysRespectConcurrencyCap(t *testing.T) {
	const step = 15 * time.Millisecond
	b := newFleet(t, Options{SimulateDelays: true, MinDelay: step, MaxDelay: step})
	m := newSimulatedManager(t, b, 1)

	begin := time.Now()
	if got := m.StartStations(context.Background(), []string{"station_a", "station_b"}); len(got) != 2 {
		t.Fatalf("expected 2 dispatched, got %v", got)
	}
	// two delayed steps per start, one start at a time
	if elapsed := time.Since(begin); elapsed < 4*step {
		t.Errorf("expected starts to run one at a time, took %s", elapsed)
	}
	for _, v := range m.ListStations() {
		if v.State != models.StateOn {
			t.Errorf("%s: expected on, got %s", v.ID, v.State)
		}
	}
}

func TestSimulatedDelaysDefaults(t *testing.T) {
	b := New(Options{SimulateDelays: true}, zap.NewNop())
	if b.opts.MinDelay != defaultMinDelay || b.opts.MaxDelay != defaultMaxDelay {
		t.Errorf("unexpected delay range %s..%s", b.opts.MinDelay, b.opts.MaxDelay)
	}
}
