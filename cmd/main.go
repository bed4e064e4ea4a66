package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deal-lab/auth"
	"deal-lab/infrastructure/httpapi"
	"deal-lab/infrastructure/notify"
	"deal-lab/infrastructure/storage"
	"deal-lab/internal"
	"deal-lab/repositories"
	"deal-lab/runtime"
	"deal-lab/runtime/workers"
	"deal-lab/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the daemon lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.GetLogger(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories & external collaborators
	transactionRepository := repositories.NewTransactionRepository(db, log)
	offerRepository := repositories.NewOfferRepository(db, log)
	milestoneRepository := repositories.NewMilestoneRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)

	attachmentStore, err := storage.NewDiskAttachmentStore(config.AttachmentDir, config.AttachmentBaseURL, log)
	if err != nil {
		return fmt.Errorf("attachment store init failed: %w", err)
	}
	notifier := notify.NewLogNotifier(log)
	authorizer := auth.NewAuthorizer()

	// 4. Presence, supervision & fan-out
	sup := workers.NewSupervisor(log, config.RestartInterval)
	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(log, sup, registry,
		config.NumberOfWorkers, config.BufferSize, config.SinkTimeout, config.MetricInterval)

	// 5. Services
	workflow := services.NewWorkflowService(transactionRepository, offerRepository, milestoneRepository,
		messageRepository, attachmentStore, authorizer, notifier, broadcaster, log)
	negotiation := services.NewNegotiationService(transactionRepository, offerRepository, workflow,
		authorizer, notifier, broadcaster, log)
	conversations := services.NewConversationService(transactionRepository, messageRepository,
		attachmentStore, authorizer, notifier, broadcaster, log)
	presence := services.NewPresenceService(registry, broadcaster, authorizer, transactionRepository, log)

	// 6. Transport
	handlers := httpapi.NewHandlers(log, negotiation, workflow, conversations, presence)
	server := httpapi.NewServer(log, config.HTTPHost, config.HTTPPort, httpapi.NewRouter(log, handlers))

	// 7. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 8. Run until shutdown
	log.Info("deal-lab core starting", "routers", config.NumberOfWorkers)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server shutdown failed", "error", err)
		}
	}()

	if err = broadcaster.Start(ctx); err != nil {
		return fmt.Errorf("broadcaster failed to start: %w", err)
	}
	if err = <-serverErr; err != nil {
		return fmt.Errorf("http server failed: %w", err)
	}
	log.Info("Shutdown complete")
	return nil
}
