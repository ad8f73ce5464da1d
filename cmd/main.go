package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-hub/assistant"
	"chat-hub/attachments"
	"chat-hub/auth"
	"chat-hub/domain"
	"chat-hub/domain/chat"
	"chat-hub/infrastructure/api"
	"chat-hub/infrastructure/grpc/server"
	"chat-hub/infrastructure/socket"
	"chat-hub/mention"
	"chat-hub/observability"
	"chat-hub/runtime"
	"chat-hub/services"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of exiting lets every deferred close run.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	stores, err := openStores(ctx, log, config)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing store...", "driver", config.StoreDriver)
		_ = stores.close()
	}()

	assistantUser := domain.User{ID: config.AssistantUserID, Username: config.AssistantUserID, DisplayName: config.AssistantDisplayName}
	if err := stores.users.SaveUser(ctx, assistantUser); err != nil {
		return fmt.Errorf("assistant profile: %w", err)
	}

	// 3. Assistant
	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		log.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()
	retriever := assistant.NewRetriever(log, blugeWriter)
	if config.DocsDir != "" {
		if _, err := retriever.LoadDirectory(config.DocsDir); err != nil {
			return fmt.Errorf("assistant documents: %w", err)
		}
	}
	handles, err := mention.NewMatcher(config.Handles())
	if err != nil {
		return fmt.Errorf("assistant handles: %w", err)
	}
	responder := assistant.NewResponder(log, retriever, handles, 0)

	// 4. Fan-out core
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	orchestrator := runtime.NewOrchestrator(log, metrics, chat.SystemClock, runtime.Config{
		DeliveryTimeout:      config.DeliveryTimeout,
		KeepAliveInterval:    config.KeepAliveInterval,
		PresenceOfflineGrace: config.PresenceOfflineGrace,
		RestartInterval:      config.RestartInterval,
	})
	orchestrator.Start(ctx)
	broadcaster := orchestrator.Broadcaster()

	// 5. Services
	ingestion := services.NewIngestionService(log, stores.messages, stores.users, broadcaster, responder, handles,
		metrics, chat.SystemClock, services.IngestionConfig{
			Assistant:        assistantUser,
			AssistantTimeout: config.AssistantTimeout,
			MaxContentLength: config.MaxContentLength,
		})
	attachmentStore, err := attachments.NewStore(log, config.AttachmentsDir, config.AttachmentsBaseURL, config.MaxAttachmentBytes)
	if err != nil {
		return err
	}
	tokens := auth.NewTokens(config.JWTSecret)

	// 6. HTTP: API, WebSocket, metrics
	mux := http.NewServeMux()
	api.NewAPI(log, tokens, api.Dependencies{
		Messages:    ingestion,
		Reactions:   services.NewReactionService(log, stores.reactions, broadcaster, chat.SystemClock),
		Channels:    services.NewChannelService(log, stores.channels, broadcaster, chat.SystemClock),
		Profiles:    services.NewProfileService(log, stores.users, broadcaster),
		Presence:    orchestrator.Presence(),
		Attachments: attachmentStore,
	}, api.Config{WriteRatePerSecond: config.WriteRatePerSecond, WriteBurst: config.WriteBurst}).Routes(mux)
	mux.Handle("GET /ws", tokens.Middleware(socket.NewHandler(log, orchestrator, orchestrator.Presence(),
		config.ConnectionBufferSize, 2*config.KeepAliveInterval)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	httpServer := &http.Server{Addr: config.HTTPAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	// 7. gRPC push stream
	listener, err := net.Listen("tcp", config.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", config.GRPCAddr, err)
	}
	grpcServer := grpc.NewServer(server.ServerOptions(tokens, config.KeepAliveInterval)...)
	server.NewStreamServer(log, orchestrator, config.ConnectionBufferSize).Register(grpcServer)

	// Use an error channel to capture Serve() issues
	errChan := make(chan error, 2)
	go func() {
		log.Info("Starting gRPC server", "address", config.GRPCAddr)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		log.Info("Starting HTTP server", "address", config.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		log.Error("Server failed, shutting down", "error", err)
		shutdown(httpServer, grpcServer, orchestrator)
		return err
	}

	shutdown(httpServer, grpcServer, orchestrator)
	log.Info("Program stopped cleanly")
	return nil
}

// shutdown stops intake first, then closes the live connections so the
// long-lived streams return and the gRPC server can drain.
func shutdown(httpServer *http.Server, grpcServer *grpc.Server, orchestrator *runtime.Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	orchestrator.Stop()

	drained := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		grpcServer.Stop()
	}
}
