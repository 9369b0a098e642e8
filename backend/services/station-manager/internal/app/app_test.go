package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"stationmgr/backend/services/station-manager/internal/config"
)

func TestRunWithSimulatedBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.yml")
	body := `Stations:
  kiosk_1:
    client_settings:
      hilbert_station_default_application: welcome
    compatible_applications: [welcome]
  admin:
    hidden: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := config.Default()
	cfg.HTTP.Port = "0"
	cfg.Livestatus.PollDelayMs = 10
	cfg.TestBackend.Enabled = true
	cfg.TestBackend.ConfigFile = path
	cfg.TestBackend.Unreachable = []string{"kiosk_1"}

	application, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- application.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		stations := application.manager.ListStations()
		if len(stations) == 1 && stations[0].Monitoring.Unreachable {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("station not loaded and polled: %+v", stations)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
