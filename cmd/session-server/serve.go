package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/hanyusok/docplus-dev/config"
	"github.com/hanyusok/docplus-dev/internal/directory"
	"github.com/hanyusok/docplus-dev/internal/postgres"
	"github.com/hanyusok/docplus-dev/internal/security"
	httpserver "github.com/hanyusok/docplus-dev/internal/server/http"
	"github.com/hanyusok/docplus-dev/internal/session"
	grpcx "github.com/hanyusok/docplus-dev/internal/transport/grpc"
	transport "github.com/hanyusok/docplus-dev/internal/transport/http"
	"github.com/hanyusok/docplus-dev/internal/transport/ws"
	"github.com/hanyusok/docplus-dev/pkg/logger"
)

var flagConfig string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/websocket server and the gRPC admin API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig(flagConfig)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to config.yaml (default $CONFIG_PATH or ./config/config.yaml)")
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lc := cfg.Logging.ToLoggerConfig()
	if lc.Version == "" || version != "dev" {
		lc.Version = version
	}
	logger.Init(lc)
	defer func() { _ = logger.Sync() }()

	slog.Info("starting session-server",
		"env", cfg.Logging.Env, "version", lc.Version, "auth", cfg.Auth.Mode)

	// --- directory & settings ---
	defaults := cfg.RoomDefaults()
	var (
		users    directory.Directory
		settings session.SettingsProvider
	)
	if cfg.Postgres.Enabled() {
		pool, err := postgres.NewPool(ctx, cfg.Postgres.ToPGConfig())
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		users = directory.NewCached(postgres.NewUserRepo(pool), cfg.Directory.CacheTTL, cfg.Directory.CacheSize)
		settings = postgres.NewSessionSettingsRepo(pool, defaults)
		slog.Info("postgres connected", "application_name", cfg.Postgres.ApplicationName)
	} else {
		users = directory.NewStatic(cfg.Directory.StaticUsers()...)
		settings = session.StaticSettings{Default: defaults}
		slog.Warn("postgres disabled, using static directory", "users", len(cfg.Directory.Users))
	}

	// --- auth ---
	auth, err := newAuthenticator(cfg.Auth)
	if err != nil {
		return err
	}

	// --- sessions ---
	rooms := session.NewManager(session.Options{
		Settings:   settings,
		Defaults:   defaults,
		EmptyGrace: cfg.Rooms.EmptyGrace,
		SweepEvery: cfg.Rooms.SweepEvery,
	})
	defer rooms.Close()
	go rooms.Run(ctx)

	// --- WS & HTTP ---
	wsServer := ws.NewServer(rooms, auth, users, ws.Options{
		WriteWait:      cfg.WS.WriteWait,
		PongWait:       cfg.WS.PongWait,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBuffer:     cfg.WS.SendBuffer,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	router := transport.NewRouter(transport.Deps{
		Rooms:          rooms,
		Auth:           auth,
		Users:          users,
		WS:             http.HandlerFunc(wsServer.HandleWS),
		ICEServers:     cfg.WebRTCICEServers(),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	httpSrv := httpserver.New(httpserver.Config{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, router)

	// --- run both servers ---
	httpDone := make(chan error, 1)
	go func() {
		httpDone <- httpSrv.Run(ctx)
	}()

	grpcErr := make(chan error, 1)
	var grpcServer *grpc.Server
	if cfg.GRPC.Addr != "" {
		grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
			grpcx.UnaryServerInterceptor(cfg.GRPC.CallTimeout),
			grpcx.AdminTokenInterceptor(cfg.GRPC.AdminToken),
		))
		grpcx.Register(grpcServer, grpcx.NewServer(rooms))
		if cfg.GRPC.AdminToken == "" {
			slog.Warn("grpc admin API has no token")
		}

		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			cancel()
			<-httpDone
			return fmt.Errorf("grpc listen: %w", err)
		}
		go func() {
			slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				grpcErr <- err
			}
		}()
	}

	stopGRPC := func() {
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
	}
	runErr := waitServers(ctx, cancel, httpDone, grpcErr, stopGRPC)
	// rooms.Close (defer) закрывает websocket соединения, которые http.Shutdown не трогает
	slog.Info("session-server stopped")
	return runErr
}

// waitServers блокирует до сигнала или ошибки одного из серверов и
// возвращается только после того, как HTTP-сервер завершил Shutdown.
func waitServers(ctx context.Context, cancel context.CancelFunc, httpDone, grpcErr <-chan error, stopGRPC func()) error {
	var (
		runErr       error
		httpFinished bool
	)
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal")
	case runErr = <-httpDone:
		httpFinished = true
	case runErr = <-grpcErr:
	}
	if runErr != nil {
		slog.Error("server error", "err", runErr)
	}
	cancel()

	stopGRPC()
	if !httpFinished {
		if err := <-httpDone; err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func newAuthenticator(a config.Auth) (*security.Authenticator, error) {
	if a.Mode == security.ModeTrust {
		slog.Warn("auth mode trust: user id is taken from the request as is")
		return security.NewTrustAuthenticator(), nil
	}

	switch a.Alg {
	case "HS256":
		return security.NewJWTAuthenticator(
			security.NewHMACVerifier([]byte(a.HMACSecret), a.Issuer, a.Audience, a.ClockSkew),
		), nil
	default:
		pub, err := security.LoadRSAPublicKeyFromPEM(a.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load jwt public key: %w", err)
		}
		return security.NewJWTAuthenticator(
			security.NewRSAVerifier(pub, a.Issuer, a.Audience, a.ClockSkew),
		), nil
	}
}
