package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/diviner-ai/diviner/internal/ai"
	"github.com/diviner-ai/diviner/internal/api/handlers"
	"github.com/diviner-ai/diviner/internal/config"
	"github.com/diviner-ai/diviner/internal/database"
	"github.com/diviner-ai/diviner/internal/domain"
	"github.com/diviner-ai/diviner/internal/jobs"
	"github.com/diviner-ai/diviner/internal/repository"
	"github.com/diviner-ai/diviner/internal/server"
	"github.com/diviner-ai/diviner/internal/service"
	"github.com/diviner-ai/diviner/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the diviner retrieval API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	knowledgeRepo := repository.NewKnowledgeRepository(pool)

	var embeddingClient service.EmbeddingClient
	var completionClient service.CompletionClient
	if cfg.HasAI() {
		client := ai.NewClient(ai.Config{
			APIKey:              cfg.AIAPIKey,
			BaseURL:             cfg.AIBaseURL,
			EmbeddingModel:      cfg.EmbeddingModel,
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			ChatModel:           cfg.ChatModel,
		})
		embeddingClient = client
		completionClient = &AICompletionAdapter{client: client}
	} else {
		log.Println("AI credentials not configured, retrieval degrades to keyword search and chat is unavailable")
		embeddingClient = &NoOpEmbeddingClient{}
		completionClient = &NoOpCompletionClient{}
	}

	searchSvc := service.NewSearchServiceWithConfig(embeddingClient, knowledgeRepo, service.SearchConfig{
		DefaultLimit:     cfg.SearchLimit,
		DefaultThreshold: cfg.SearchThreshold,
		Fallback:         cfg.Fallback(),
	})
	chatSvc := service.NewChatServiceWithConfig(searchSvc, completionClient, service.ChatConfig{
		SearchLimit:     cfg.ChatSearchLimit,
		SearchThreshold: cfg.ChatSearchThreshold,
	})
	backfillSvc := service.NewBackfillServiceWithConfig(knowledgeRepo, embeddingClient, service.BackfillConfig{
		BatchSize: cfg.BackfillBatchSize,
		PaceDelay: cfg.BackfillPaceDelay,
	})

	var backfillWorker *jobs.Worker
	if cfg.BackfillInterval > 0 {
		backfillWorker = jobs.NewWorker(jobs.NewBackfillProcessor(backfillSvc), cfg.BackfillInterval)
		go backfillWorker.Start(ctx)
		log.Println("backfill worker started")
	}

	router := server.NewRouter(server.RouterConfig{
		AdminToken:      cfg.AdminToken,
		SearchHandler:   handlers.NewSearchHandler(searchSvc),
		ChatHandler:     handlers.NewChatHandler(chatSvc),
		BackfillHandler: handlers.NewBackfillHandler(backfillSvc),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if backfillWorker != nil {
		backfillWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// AICompletionAdapter bridges the AI client's stream to the chat service's
// completion interface.
type AICompletionAdapter struct {
	client *ai.Client
}

func (a *AICompletionAdapter) StreamChatCompletion(ctx context.Context, messages []domain.ConversationMessage) (service.CompletionStream, error) {
	stream, err := a.client.StreamChatCompletion(ctx, messages)
	if err != nil {
		return nil, err
	}
	return &completionStream{inner: stream}, nil
}

type completionStream struct {
	inner ai.ChatStream
}

func (s *completionStream) Recv() ([]byte, error) {
	return s.inner.RecvRaw()
}

func (s *completionStream) Close() error {
	return s.inner.Close()
}

type NoOpEmbeddingClient struct{}

func (c *NoOpEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, domain.ErrMissingCredentials
}

type NoOpCompletionClient struct{}

func (c *NoOpCompletionClient) StreamChatCompletion(ctx context.Context, messages []domain.ConversationMessage) (service.CompletionStream, error) {
	return nil, domain.ErrMissingCredentials
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
