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
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthtech/platform/internal/config"
	"github.com/healthtech/platform/internal/domain/resources"
	"github.com/healthtech/platform/internal/ingestion"
	"github.com/healthtech/platform/internal/platform/auth"
	"github.com/healthtech/platform/internal/platform/blobstore"
	"github.com/healthtech/platform/internal/platform/db"
	"github.com/healthtech/platform/internal/platform/fhir"
	"github.com/healthtech/platform/internal/platform/middleware"
	"github.com/healthtech/platform/internal/platform/queue"
	"github.com/healthtech/platform/internal/search"
	"github.com/healthtech/platform/internal/synthetic"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "platform-server",
		Short: "Clinical data platform API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(synthCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the ingestion queue processor",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, _ := cmd.Flags().GetString("processed-prefix")
			return runProcessor(prefix)
		},
	}
	cmd.Flags().String("processed-prefix", "processed/", "Destination prefix for validated files")
	return cmd
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

func synthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate synthetic FHIR resources as NDJSON, optionally with OMOP tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("patients")
			seed, _ := cmd.Flags().GetInt64("seed")
			out, _ := cmd.Flags().GetString("out")
			omopDir, _ := cmd.Flags().GetString("omop-dir")

			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			cohort := synthetic.NewGenerator(seed, time.Now()).Cohort(count)
			n, err := synthetic.WriteResources(w, cohort)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %d resources for %d patients.\n", n, count)

			if omopDir != "" {
				oc, err := synthetic.OMOPFromCohort(cohort)
				if err != nil {
					return err
				}
				rows, err := oc.WriteFiles(omopDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Wrote %d OMOP rows to %s.\n", rows, omopDir)
			}
			return nil
		},
	}
	cmd.Flags().Int("patients", 10, "Number of patients to generate")
	cmd.Flags().Int64("seed", 1, "Random seed")
	cmd.Flags().String("out", "", "Output file (default stdout)")
	cmd.Flags().String("omop-dir", "", "Also write OMOP person/visit/measurement NDJSON tables to this directory")
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// AWS-backed ingestion infrastructure. Without a queue URL the ingestion
	// surface falls back to in-memory stubs, which keeps local development
	// free of cloud credentials.
	var (
		store blobstore.Store
		q     queue.Queue
	)
	if cfg.IngestionQueueURL != "" {
		store, err = blobstore.NewS3Store(ctx, cfg.AWSRegion, cfg.UploadBucket)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init blob store")
		}
		q, err = queue.NewSQS(ctx, cfg.AWSRegion, cfg.IngestionQueueURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init queue")
		}
	} else {
		logger.Warn().Msg("INGESTION_QUEUE_URL unset; using in-memory ingestion backends")
		store = blobstore.NewMemory()
		q = queue.NewMemory()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = fhir.HTTPErrorHandler

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	engine := search.NewEngine(search.NewPGExecutor(pool), logger)

	fhirGroup := e.Group("/fhir", auth.TokenMiddleware(cfg.APIToken))
	resources.NewHandler(engine).RegisterRoutes(fhirGroup)

	ingestGroup := e.Group("/ingestion", auth.TokenMiddleware(cfg.APIToken))
	ingestion.NewHandler(
		store, q,
		cfg.UploadBucket, cfg.UploadPrefix,
		time.Duration(cfg.PresignExpirySecs)*time.Second,
		logger,
	).RegisterRoutes(ingestGroup)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runProcessor(processedPrefix string) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IngestionQueueURL == "" {
		return fmt.Errorf("INGESTION_QUEUE_URL is required for the processor")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := blobstore.NewS3Store(ctx, cfg.AWSRegion, cfg.UploadBucket)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init blob store")
	}
	q, err := queue.NewSQS(ctx, cfg.AWSRegion, cfg.IngestionQueueURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init queue")
	}

	logger.Info().Str("queue", cfg.IngestionQueueURL).Msg("processor started")
	if err := ingestion.NewProcessor(store, q, processedPrefix, logger).Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	logger.Info().Msg("processor stopped")
	return nil
}
