package app

import (
	"context"
	"database/sql"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	libredis "stationmgr/backend/libs/redis"
	"stationmgr/backend/services/station-manager/internal/clients"
	"stationmgr/backend/services/station-manager/internal/config"
	"stationmgr/backend/services/station-manager/internal/db"
	httpserver "stationmgr/backend/services/station-manager/internal/http"
	"stationmgr/backend/services/station-manager/internal/http/handlers"
	"stationmgr/backend/services/station-manager/internal/livestatus"
	"stationmgr/backend/services/station-manager/internal/notify"
	redispub "stationmgr/backend/services/station-manager/internal/redis"
	"stationmgr/backend/services/station-manager/internal/repository"
	"stationmgr/backend/services/station-manager/internal/service"
	"stationmgr/backend/services/station-manager/internal/testbackend"
	"stationmgr/backend/services/station-manager/internal/ws"
)

const hubBuffer = 64

// App wires station manager dependencies.
type App struct {
	server      *httpserver.Server
	manager     *service.Manager
	hub         *notify.Hub
	wsManager   *ws.Manager
	publisher   *redispub.UpdatePublisher
	archive     *repository.ArchiveWriter
	db          *sql.DB
	redisClient *redis.Client
	stopWS      context.CancelFunc
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	if cfg.Database.DSN != "" {
		sqlDB, err := db.NewPostgres(context.Background(), cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.db = sqlDB
		repo := repository.NewActivityLogRepository(sqlDB)
		if err := repo.EnsureSchema(context.Background()); err != nil {
			a.Close()
			return nil, err
		}
		a.archive = repository.NewArchiveWriter(repo, 0, logger)
	}

	if cfg.Redis.Addr != "" {
		redisClient, err := libredis.NewRedisClient(context.Background(), cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redisClient = redisClient
	}

	executor, monitor := newBackends(cfg, logger)

	opts := service.Options{
		ScriptConcurrency:  cfg.Manager.ScriptConcurrency,
		MaxLogLength:       cfg.Manager.MaxLogLength,
		OutputBufferLines:  cfg.Manager.OutputBufferLines,
		PollDelay:          cfg.PollDelay(),
		ErrorDigestSize:    cfg.Livestatus.ErrorDigestSize,
		DigestAcrossCycles: cfg.Livestatus.DigestAcrossCycles,
	}
	if a.archive != nil {
		opts.LogSink = a.archive
	}

	a.hub = notify.NewHub(hubBuffer)
	a.manager = service.NewManager(executor, monitor, a.hub, opts, logger)

	if a.redisClient != nil {
		a.publisher = redispub.NewUpdatePublisher(a.redisClient, a.manager, cfg.Redis.Channel, logger)
	}

	wsCtx, stopWS := context.WithCancel(context.Background())
	a.stopWS = stopWS
	a.wsManager = ws.NewManager(logger)
	wsServer := ws.NewServer(wsCtx, a.wsManager, cfg.WriteTimeout(), cfg.PingInterval(), logger)

	var limiter *rate.Limiter
	if cfg.HTTP.CommandsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.HTTP.CommandsPerSecond), cfg.HTTP.CommandBurst)
	}
	stations := handlers.NewStationsHandler(a.manager, limiter, logger)
	routes := httpserver.Routes{
		Health:         handlers.NewHealthHandler(),
		Stations:       stations.List,
		Station:        stations.Get,
		StationOutput:  stations.Output,
		StartStations:  stations.Start,
		StopStations:   stations.Stop,
		ChangeApp:      stations.ChangeApp,
		Reload:         handlers.NewReloadHandler(a.manager, logger),
		ServerOutput:   handlers.NewServerOutputHandler(a.manager),
		Notifications:  handlers.NewNotificationsHandler(a.manager),
		LivestatusDump: handlers.NewLivestatusDumpHandler(a.manager),
		PollStats:      handlers.NewPollStatsHandler(a.manager),
		WebSocket:      wsServer.HandleWS,
	}
	a.server = httpserver.NewServer(cfg.HTTPAddress(), httpserver.NewRouter(routes), logger)

	return a, nil
}

// newBackends selects the simulated fleet or the hilbert CLI with a Livestatus transport.
func newBackends(cfg *config.Config, logger *zap.Logger) (service.Executor, service.Monitor) {
	parser := livestatus.NewSeparatorParser(cfg.Livestatus.FieldSeparator)

	if cfg.TestBackend.Enabled {
		logger.Warn("using simulated station backend")
		minDelay, maxDelay := cfg.TestBackendDelays()
		fleet := testbackend.New(testbackend.Options{
			ConfigFile:         cfg.TestBackend.ConfigFile,
			FailCommands:       cfg.TestBackend.FailCommands,
			Unreachable:        cfg.TestBackend.Unreachable,
			StopUnexpectedly:   cfg.TestBackend.StopUnexpectedly,
			UnexpectedOff:      cfg.TestBackend.UnexpectedOff,
			Timeout:            cfg.TestBackend.Timeout,
			SimulateDelays:     cfg.TestBackend.SimulateDelays,
			MinDelay:           minDelay,
			MaxDelay:           maxDelay,
			ServiceDescription: cfg.Livestatus.ServiceDescription,
			FieldSeparator:     cfg.Livestatus.FieldSeparator,
		}, logger)
		return fleet, livestatus.NewConnector(fleet, parser, cfg.Livestatus.ServiceDescription, logger)
	}

	var transport livestatus.Transport
	if cfg.Livestatus.Command != "" {
		transport = livestatus.NewCommandTransport(cfg.Livestatus.Command, logger)
	} else {
		transport = livestatus.NewSocketTransport(cfg.Livestatus.Address, cfg.DialTimeout(), logger)
	}

	executor := clients.NewHilbertCLI(cfg.Hilbert.CLIPath, cfg.Hilbert.Args, logger)
	return executor, livestatus.NewConnector(transport, parser, cfg.Livestatus.ServiceDescription, logger)
}

// Run loads the station configuration, starts background workers and serves HTTP until
// ctx is done. A failed configuration read leaves the registry empty; the service keeps
// running so the configuration can be reloaded.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	wsSub := a.hub.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.wsManager.Run(ctx, wsSub)
	}()

	if a.publisher != nil {
		sub := a.hub.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.publisher.Run(ctx, sub)
		}()
	}

	if a.archive != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.archive.Run(ctx)
		}()
	}

	if err := a.manager.LoadConfiguration(ctx); err != nil {
		a.logger.Error("failed to load station configuration", zap.Error(err))
	}
	a.manager.StartPolling(ctx)

	err := a.server.Run(ctx)
	a.stopWS()
	return err
}

// Close releases resources.
func (a *App) Close() {
	if a.stopWS != nil {
		a.stopWS()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
