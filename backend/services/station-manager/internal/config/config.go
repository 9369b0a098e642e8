package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "stationmgr/backend/libs/config"
)

const defaultHTTPPort = "3000"

// Config defines station manager configuration.
type Config struct {
	HTTP struct {
		Port              string  `yaml:"port" env:"STATION_MANAGER_HTTP_PORT"`
		CommandsPerSecond float64 `yaml:"commandsPerSecond"`
		CommandBurst      int     `yaml:"commandBurst"`
	} `yaml:"http"`
	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`
	Manager     ManagerConfig     `yaml:"manager"`
	Livestatus  LivestatusConfig  `yaml:"livestatus"`
	Hilbert     HilbertConfig     `yaml:"hilbert"`
	TestBackend TestBackendConfig `yaml:"testBackend"`
	WebSocket   struct {
		PingIntervalSeconds int `yaml:"pingIntervalSeconds" env:"STATION_MANAGER_PING_INTERVAL"`
		WriteTimeoutSeconds int `yaml:"writeTimeoutSeconds" env:"STATION_MANAGER_WRITE_TIMEOUT"`
	} `yaml:"websocket"`
	Redis struct {
		Addr     string `yaml:"addr" env:"STATION_MANAGER_REDIS_ADDR"`
		Password string `yaml:"password" env:"STATION_MANAGER_REDIS_PASSWORD"`
		Channel  string `yaml:"channel" env:"STATION_MANAGER_REDIS_CHANNEL"`
	} `yaml:"redis"`
	Database struct {
		DSN string `yaml:"dsn" env:"STATION_MANAGER_POSTGRES_DSN"`
	} `yaml:"database"`
}

// ManagerConfig tunes command dispatch and the activity log.
type ManagerConfig struct {
	ScriptConcurrency int `yaml:"scriptConcurrency" env:"SCRIPT_CONCURRENCY"`
	MaxLogLength      int `yaml:"maxLogLength" env:"MAX_LOG_LENGTH"`
	OutputBufferLines int `yaml:"outputBufferLines" env:"OUTPUT_BUFFER_LINES"`
}

// LivestatusConfig selects how the monitoring backend is reached.
type LivestatusConfig struct {
	Command            string `yaml:"command" env:"MKLS_CMD"`
	Address            string `yaml:"address" env:"MKLS_ADDRESS"`
	PollDelayMs        int    `yaml:"pollDelayMs" env:"MKLS_POLL_DELAY"`
	ServiceDescription string `yaml:"serviceDescription"`
	FieldSeparator     string `yaml:"fieldSeparator"`
	ErrorDigestSize    int    `yaml:"errorDigestSize"`
	DigestAcrossCycles bool   `yaml:"digestAcrossCycles" env:"MKLS_DIGEST_ACROSS_CYCLES"`
	DialTimeoutMs      int    `yaml:"dialTimeoutMs"`
}

// HilbertConfig locates the hilbert CLI.
type HilbertConfig struct {
	CLIPath string   `yaml:"cliPath" env:"HILBERT_CLI_PATH"`
	Args    []string `yaml:"args" env:"HILBERT_CLI_ARGS"`
}

// TestBackendConfig enables the simulated fleet.
type TestBackendConfig struct {
	Enabled          bool     `yaml:"enabled" env:"TEST_BACKEND"`
	ConfigFile       string   `yaml:"configFile" env:"TEST_BACKEND_CONFIG"`
	FailCommands     []string `yaml:"failCommands"`
	Unreachable      []string `yaml:"unreachable"`
	StopUnexpectedly []string `yaml:"stopUnexpectedly"`
	UnexpectedOff    bool     `yaml:"unexpectedOff"`
	Timeout          bool     `yaml:"timeout"`
	SimulateDelays   bool     `yaml:"simulateDelays" env:"TEST_BACKEND_DELAYS"`
	MinDelayMs       int      `yaml:"minDelayMs"`
	MaxDelayMs       int      `yaml:"maxDelayMs"`
}

// Load uses shared config loader with the file named by CONFIG_FILE.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile is Load with an explicit YAML path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfigFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with default values.
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = defaultHTTPPort
	cfg.HTTP.CommandsPerSecond = 10
	cfg.HTTP.CommandBurst = 20
	cfg.Log.Level = "info"
	cfg.Manager = ManagerConfig{
		ScriptConcurrency: 20,
		MaxLogLength:      100,
		OutputBufferLines: 500,
	}
	cfg.Livestatus = LivestatusConfig{
		PollDelayMs:        1000,
		ServiceDescription: "dockapp_top1",
		FieldSeparator:     ";",
		ErrorDigestSize:    50,
		DialTimeoutMs:      5000,
	}
	cfg.Hilbert.CLIPath = "hilbert"
	cfg.TestBackend.MinDelayMs = 1000
	cfg.TestBackend.MaxDelayMs = 5000
	cfg.WebSocket.PingIntervalSeconds = 30
	cfg.WebSocket.WriteTimeoutSeconds = 15
	cfg.Redis.Channel = "stations:updates"
	return cfg
}

// Validate checks the values the service cannot run without.
func (c *Config) Validate() error {
	if c.Manager.ScriptConcurrency <= 0 {
		return errors.New("config: manager.scriptConcurrency must be positive")
	}
	if c.Manager.MaxLogLength <= 0 {
		return errors.New("config: manager.maxLogLength must be positive")
	}
	if c.TestBackend.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Livestatus.Command) == "" && strings.TrimSpace(c.Livestatus.Address) == "" {
		return errors.New("config: livestatus command or address is required")
	}
	if strings.TrimSpace(c.Hilbert.CLIPath) == "" {
		return errors.New("config: hilbert cli path is required")
	}
	return nil
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultHTTPPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// PollDelay returns the pause between monitoring cycles.
func (c *Config) PollDelay() time.Duration {
	if c.Livestatus.PollDelayMs <= 0 {
		return time.Second
	}
	return time.Duration(c.Livestatus.PollDelayMs) * time.Millisecond
}

// DialTimeout returns the socket transport timeout.
func (c *Config) DialTimeout() time.Duration {
	if c.Livestatus.DialTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Livestatus.DialTimeoutMs) * time.Millisecond
}

// TestBackendDelays returns the range of simulated command delays.
func (c *Config) TestBackendDelays() (time.Duration, time.Duration) {
	return time.Duration(c.TestBackend.MinDelayMs) * time.Millisecond,
		time.Duration(c.TestBackend.MaxDelayMs) * time.Millisecond
}

// PingInterval returns websocket ping interval.
func (c *Config) PingInterval() time.Duration {
	if c.WebSocket.PingIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.WebSocket.PingIntervalSeconds) * time.Second
}

// WriteTimeout returns websocket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	if c.WebSocket.WriteTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.WebSocket.WriteTimeoutSeconds) * time.Second
}
