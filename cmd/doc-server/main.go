package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medicai/docserver/internal/config"
	"github.com/medicai/docserver/internal/domain/document"
	"github.com/medicai/docserver/internal/domain/submission"
	"github.com/medicai/docserver/internal/platform/aiassist"
	"github.com/medicai/docserver/internal/platform/blobstore"
	"github.com/medicai/docserver/internal/platform/db"
	"github.com/medicai/docserver/internal/platform/middleware"
	"github.com/medicai/docserver/internal/platform/notify"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "doc-server",
		Short: "Clinician document review and generation service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the document service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Object storage
	var store blobstore.Store
	switch cfg.StorageBackend {
	case "s3":
		store, err = blobstore.NewS3Store(ctx, blobstore.S3Config{
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.StoragePublicBaseURL,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize s3 storage")
		}
	default:
		store = blobstore.NewMemoryStore(cfg.StoragePublicBaseURL)
		logger.Warn().Msg("using in-memory object storage; generated documents will not survive restarts")
	}

	// Notification dispatch
	var sender notify.Sender
	if cfg.MailFunctionURL != "" {
		sender = notify.NewHTTPSender(cfg.MailFunctionURL, cfg.MailFunctionToken, logger)
	} else {
		sender = notify.NewMockSender()
		logger.Warn().Msg("MAIL_FUNCTION_URL not set; notifications are recorded, not delivered")
	}

	// AI content assist (optional)
	suggester := aiassist.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, "", logger)
	if !suggester.Configured() {
		logger.Info().Msg("ai assist disabled; no OPENAI_API_KEY configured")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID", submission.OperatorHeader},
	}))

	apiV1 := e.Group("/api/v1")

	// Submission domain: sign-off lifecycle and persisted document fields.
	subRepo := submission.NewRepoPG(pool)
	profileRepo := submission.NewProfileRepoPG(pool)
	eventRepo := submission.NewApprovalEventRepoPG(pool)
	txRunner := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	subSvc := submission.NewService(subRepo, profileRepo, eventRepo, sender, txRunner,
		cfg.ClinicName, cfg.ClinicEmail, logger)
	submission.NewHandler(subSvc).RegisterRoutes(apiV1)

	// Document domain: review sessions, dual renderer, send workflow. The
	// letterhead takes the configured contact email; the brand mark and
	// address are the printed stationery.
	clinic := document.DefaultClinicIdentity().WithEmail(cfg.ClinicEmail)
	docSvc := document.NewService(subRepo, profileRepo, store, cfg.StorageBucket,
		sender, document.NewPDFRenderer(), suggester,
		document.NewHTTPSignatureFetcher(), clinic, logger)
	document.NewHandler(docSvc).RegisterRoutes(apiV1)

	// Health check
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	// Start server with graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting doc-server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	return nil
}
