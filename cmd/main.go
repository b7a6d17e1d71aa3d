package main

import (
	"chat-relay/auth"
	"chat-relay/infrastructure/api"
	"chat-relay/infrastructure/grpc/server"
	"chat-relay/infrastructure/websocket"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat-relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run keeps every defer (badger close first of all) on the exit path.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(ctx, config, log))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 4. Core
	userRepository := repositories.NewUserRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	issuer := auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration)
	authenticator := auth.NewAuthenticator(issuer, userRepository)

	registry := runtime.NewRegistry()
	presence := runtime.NewPresenceManager(log, registry, userRepository, config.NotifySessionReplaced)
	dispatcher := runtime.NewDispatcher(log, registry, userRepository, messageRepository, config.MaxContentLength)
	relay := runtime.NewSignalRelay(log, registry, messageRepository)
	reconciler := runtime.NewReconciler(log, registry, userRepository)

	// 5. Ops gRPC, NOT_SERVING until reconciliation is done
	ops := server.NewOpsServer(log)
	opsAddress := fmt.Sprintf("%s:%d", config.Host, config.OpsPort)
	opsListener, err := net.Listen("tcp", opsAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", opsAddress, err)
	}

	errChan := make(chan error, 2)
	go func() {
		log.Info("Starting ops gRPC server", "address", opsAddress)
		if err := ops.Serve(opsListener); err != nil {
			errChan <- fmt.Errorf("ops gRPC server error: %w", err)
		}
	}()

	// 6. No stale online flag may survive a restart
	cleared, err := reconciler.Run(ctx)
	if err != nil {
		return exitRuntime, fmt.Errorf("startup reconciliation failed: %w", err)
	}
	log.Info("Startup reconciliation done", "cleared", cleared)

	// 7. HTTP: REST, socket and metrics
	socketServer := websocket.NewServer(log, authenticator, presence, dispatcher, relay, websocket.Config{
		AllowedOrigins:  config.AllowedOrigins(),
		BufferSize:      config.ConnectionBufferSize,
		DeliveryTimeout: config.DeliveryTimeout,
	})
	handler := api.NewHandler(log,
		services.NewAuthService(userRepository, issuer),
		services.NewChatService(userRepository, messageRepository),
		presence,
	)
	router := api.NewRouter(log, api.RouterConfig{AllowedOrigins: config.AllowedOrigins()}, handler, authenticator, socketServer)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Background workers
	workersCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	supervisor := workers.NewSupervisor(log, config.RestartInterval).Add(
		workers.NewPresenceSweeper(log, reconciler, config.SweepInterval),
		workers.NewStatsReporter(log, presence, config.StatsInterval),
	)
	workersDone := make(chan struct{})
	go func() {
		supervisor.Run(workersCtx)
		close(workersDone)
	}()

	ops.SetServing(true)

	// 9. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 10. Graceful shutdown: stop accepting, close live connections so their
	// offline writes land before the database closes.
	log.Info("Shutting down gracefully...")
	ops.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := socketServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Socket shutdown incomplete", "error", err)
	}
	stopWorkers()
	<-workersDone
	ops.Stop(shutdownCtx)
	log.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(ctx context.Context, config Config, log *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if log.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}
