package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"stationmgr/backend/services/station-manager/internal/models"
)

// HilbertCLI runs the hilbert command line tool to read the configuration and
// control stations.
type HilbertCLI struct {
	path   string
	args   []string
	logger *zap.Logger
}

// NewHilbertCLI builds the executor. args are prepended to every subcommand.
func NewHilbertCLI(path string, args []string, logger *zap.Logger) *HilbertCLI {
	if path == "" {
		path = "hilbert"
	}
	return &HilbertCLI{
		path:   path,
		args:   append([]string(nil), args...),
		logger: logger.Named("hilbert_cli"),
	}
}

// GetStationConfig runs cfg_query and parses its stdout.
func (c *HilbertCLI) GetStationConfig(ctx context.Context, out io.Writer) ([]models.StationConfig, error) {
	var stdout bytes.Buffer
	if err := c.run(ctx, out, &stdout, "cfg_query"); err != nil {
		return nil, err
	}
	return ParseHilbertConfig(stdout.Bytes())
}

// StartStation runs start_station.
func (c *HilbertCLI) StartStation(ctx context.Context, stationID string, out io.Writer) error {
	return c.run(ctx, out, out, "start_station", stationID)
}

// StopStation runs stop_station.
func (c *HilbertCLI) StopStation(ctx context.Context, stationID string, out io.Writer) error {
	return c.run(ctx, out, out, "stop_station", stationID)
}

// ChangeApp runs app_change.
func (c *HilbertCLI) ChangeApp(ctx context.Context, stationID, appID string, out io.Writer) error {
	return c.run(ctx, out, out, "app_change", stationID, appID)
}

func (c *HilbertCLI) run(ctx context.Context, out, stdout io.Writer, subcommand ...string) error {
	args := append(append([]string(nil), c.args...), subcommand...)
	line := c.path + " " + strings.Join(args, " ")

	c.logger.Debug("running hilbert", zap.String("cmd", line))
	fmt.Fprintf(out, "$ %s\n", line)

	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.Stdout = stdout
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(out, "%s failed: %v\n", subcommand[0], err)
		return fmt.Errorf("hilbert: %s: %w", subcommand[0], err)
	}
	return nil
}
