package livestatus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Transport performs one request/response exchange with the Livestatus service.
type Transport interface {
	RoundTrip(ctx context.Context, query string) (string, error)
}

// CommandTransport pipes the query through a shell command such as "nc localhost 6557"
// and returns everything the command writes to stdout.
type CommandTransport struct {
	command string
	logger  *zap.Logger
}

// NewCommandTransport builds a CommandTransport.
func NewCommandTransport(command string, logger *zap.Logger) *CommandTransport {
	return &CommandTransport{command: command, logger: logger}
}

// RoundTrip runs the command once with the query on stdin.
func (t *CommandTransport) RoundTrip(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(t.command) == "" {
		return "", fmt.Errorf("livestatus: empty command")
	}

	t.logger.Debug("livestatus query", zap.String("command", t.command), zap.String("query", query))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", t.command)
	cmd.Stdin = strings.NewReader(query)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stderr.Len() > 0 {
		t.logger.Error("livestatus stderr", zap.String("output", stderr.String()))
	}
	if err != nil {
		return "", fmt.Errorf("livestatus: run %q: %w", t.command, err)
	}

	t.logger.Debug("livestatus response", zap.String("stdout", stdout.String()))
	return stdout.String(), nil
}

// SocketTransport talks to Livestatus directly over a unix or TCP socket.
type SocketTransport struct {
	network string
	address string
	timeout time.Duration
	logger  *zap.Logger
}

// NewSocketTransport parses "unix:/path/to/live" or "host:port".
func NewSocketTransport(address string, timeout time.Duration, logger *zap.Logger) *SocketTransport {
	network := "tcp"
	if strings.HasPrefix(address, "unix:") {
		network = "unix"
		address = strings.TrimPrefix(address, "unix:")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SocketTransport{network: network, address: address, timeout: timeout, logger: logger}
}

// RoundTrip writes the query, half-closes the connection and reads until EOF.
func (t *SocketTransport) RoundTrip(ctx context.Context, query string) (string, error) {
	dialer := net.Dialer{Timeout: t.timeout}
	conn, err := dialer.DialContext(ctx, t.network, t.address)
	if err != nil {
		return "", fmt.Errorf("livestatus: dial %s %s: %w", t.network, t.address, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	t.logger.Debug("livestatus query", zap.String("address", t.address), zap.String("query", query))

	if _, err := io.WriteString(conn, query); err != nil {
		return "", fmt.Errorf("livestatus: write query: %w", err)
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return "", fmt.Errorf("livestatus: close write: %w", err)
		}
	}

	response, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("livestatus: read response: %w", err)
	}
	return string(response), nil
}
