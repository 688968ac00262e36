package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"loft-messaging/acl"
	"loft-messaging/auth"
	"loft-messaging/directory"
	"loft-messaging/moderation"
	"loft-messaging/repositories"
	"loft-messaging/runtime"
	"loft-messaging/runtime/workers"
	"loft-messaging/services"
	"loft-messaging/sink"
	"loft-messaging/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer (database close included)
// executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Moderation
	censored, err := moderation.LoadCensoredWords()
	if err != nil {
		return fmt.Errorf("loading censored words failed: %w", err)
	}
	replacement, err := CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}
	moderator, err := moderation.NewModerator(censored.Words, replacement)
	if err != nil {
		return fmt.Errorf("moderator setup failed: %w", err)
	}

	// 4. Storage, directory & ACL
	conversationRepository := repositories.NewConversationRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log)
	notificationRepository := repositories.NewNotificationRepository(db, log)
	credentialRepository := repositories.NewCredentialRepository(db)
	profileDirectory := directory.New(db)
	resolver := acl.NewResolver(profileDirectory)

	// 5. Supervision & Orchestration
	sup := workers.NewSupervisor(log)
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(
		log, sup, registry,
		config.BufferSize, config.SinkTimeout, config.MetricInterval,
	)

	// 6. Services & permanent sinks
	notificationService := services.NewNotificationService(
		notificationRepository, conversationRepository, profileDirectory, orchestrator, log)
	conversationService := services.NewConversationService(
		resolver, conversationRepository, messageRepository, profileDirectory, orchestrator, log)
	messageService := services.NewMessageService(
		messageRepository, conversationRepository, orchestrator, &moderator, log)
	counter := services.NewUnreadCounter(notificationRepository, log)

	orchestrator.Add(
		sink.NewNotificationSink(notificationService, log),
		counter,
	)

	// 7. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 8. Start the engine
	orchestrator.Start(ctx)

	// 9. HTTP server
	tokens := auth.NewTokenManager(config.JWTSecret, config.JWTDuration)
	authService := services.NewAuthService(credentialRepository, profileDirectory, tokens, log)
	server := web.NewServer(
		authService, conversationService, messageService, notificationService,
		counter, conversationRepository, orchestrator, log,
		config.SessionBufferSize, config.DeliveryTimeout,
	)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: server.Router(tokens),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 10. Wait for stop or error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 11. Final cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	orchestrator.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
