package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/config"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/analytics"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/appointments"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/claims"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/compliance"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/consents"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/eligibility"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/surveys"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/domain/tasks"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/adapters"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/audit"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/auth"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/blobstore"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/db"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/middleware"
	"github.com/pablo-56/healthcare-appointment-scheduling-app/internal/platform/queue"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "careops-server",
		Short: "Care operations workflow API and workers",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())

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

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the background workflow workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
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

			count, err := db.NewMigrator(pool, dir).Up(ctx)
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

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

// transport is what both processes need from the queue: producers enqueue,
// the worker process consumes.
type transport interface {
	queue.Enqueuer
	Run(ctx context.Context, reg *queue.Registry) error
}

// app holds the wired object graph shared by the serve and worker commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	queue  transport

	tasksSvc       *tasks.Service
	claimsSvc      *claims.Service
	complianceSvc  *compliance.Service
	eligibilitySvc *eligibility.Service
	surveysSvc     *surveys.Service
	appointmentSvc *appointments.Service
	consentsSvc    *consents.Service

	claimsWorker      *claims.Worker
	complianceWorker  *compliance.Worker
	eligibilityWorker *eligibility.Worker
	surveysWorker     *surveys.Worker
	analyticsWorker   *analytics.Worker
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	opts := queue.Options{
		Concurrency: cfg.WorkerConcurrency,
		MaxRetries:  cfg.JobMaxRetries,
		BackoffBase: cfg.JobBackoffBase,
		BackoffMax:  cfg.JobBackoffMax,
	}
	var q transport
	if cfg.QueueMode == "redis" {
		rq, err := queue.NewRedis(cfg.RedisURL, logger, opts)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		q = rq
	} else {
		q = queue.NewMemory(logger, opts)
	}

	rec := audit.NewPGRecorder(pool, logger)

	var store blobstore.Store
	if cfg.ArtifactDir != "" {
		fs, err := blobstore.NewFS(cfg.ArtifactDir)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("opening artifact dir: %w", err)
		}
		store = fs
	} else {
		store = blobstore.NewMemory()
	}

	billingClient := adapters.NewBillingClient(cfg.BillingAdapterBase, cfg.AdapterTimeout)
	eligibilityClient := adapters.NewEligibilityClient(cfg.EligibilityAdapterBase, cfg.AdapterTimeout)
	signatureClient := adapters.NewSignatureClient(cfg.SignatureAdapterBase, cfg.SignatureWebhookSecret, cfg.AdapterTimeout)
	ehrClient := adapters.NewEHRClient(cfg.EHRBase, cfg.AdapterTimeout, logger)

	tasksRepo := tasks.NewRepoPG(pool)
	tasksSvc := tasks.NewService(tasksRepo, rec)

	claimsRepo := claims.NewRepoPG(pool)
	claimsSvc := claims.NewService(claimsRepo, q, rec)
	claimsWorker := claims.NewWorker(claimsRepo, billingClient, tasksSvc, rec, logger)

	complianceRepo := compliance.NewRepoPG(pool)
	complianceSvc := compliance.NewService(complianceRepo, complianceRepo, q, rec)
	complianceWorker := compliance.NewWorker(complianceRepo, complianceRepo, store, rec, logger)

	eligibilityRepo := eligibility.NewRepoPG(pool)
	eligibilitySvc := eligibility.NewService(eligibilityRepo, eligibilityClient, tasksSvc, q, rec)
	eligibilityWorker := eligibility.NewWorker(eligibilitySvc, logger)

	appointmentsRepo := appointments.NewRepoPG(pool)
	appointmentSvc := appointments.NewService(appointmentsRepo, q, rec, logger)

	surveysRepo := surveys.NewRepoPG(pool)
	surveysSvc := surveys.NewService(surveysRepo, tasksSvc, rec)
	surveysWorker := surveys.NewWorker(surveysRepo, appointmentsRepo, tasksSvc, surveys.SweepWindows{
		ReminderLookback: time.Duration(cfg.ReminderWindowDays) * 24 * time.Hour,
		SurveyFreshness:  time.Duration(cfg.SurveyQuietDays) * 24 * time.Hour,
	}, logger)

	consentsRepo := consents.NewRepoPG(pool)
	consentsSvc := consents.NewService(consentsRepo, signatureClient, appointmentsRepo, store, ehrClient, rec)

	analyticsRepo := analytics.NewRepoPG(pool)
	analyticsWorker := analytics.NewWorker(analyticsRepo, rec, logger)

	return &app{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		queue:  q,

		tasksSvc:       tasksSvc,
		claimsSvc:      claimsSvc,
		complianceSvc:  complianceSvc,
		eligibilitySvc: eligibilitySvc,
		surveysSvc:     surveysSvc,
		appointmentSvc: appointmentSvc,
		consentsSvc:    consentsSvc,

		claimsWorker:      claimsWorker,
		complianceWorker:  complianceWorker,
		eligibilityWorker: eligibilityWorker,
		surveysWorker:     surveysWorker,
		analyticsWorker:   analyticsWorker,
	}, nil
}

func (a *app) registry() *queue.Registry {
	reg := queue.NewRegistry()
	a.claimsWorker.Register(reg)
	a.complianceWorker.Register(reg)
	a.eligibilityWorker.Register(reg)
	a.surveysWorker.Register(reg)
	a.analyticsWorker.Register(reg)
	return reg
}

// scheduler drives the periodic sweeps. It runs wherever the consumers run:
// the worker process in redis mode, the API process in memory mode.
func (a *app) scheduler() *queue.Scheduler {
	return queue.NewScheduler(a.queue, a.cfg.SweepInterval, []string{
		queue.TypeReminderSweep,
		queue.TypeEscalationSweep,
		queue.TypeComplianceAnomaly,
	}, a.logger)
}

func runServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.pool.Close()

	// Broker-less development runs the consumers inside the API process.
	if a.cfg.QueueMode == "memory" {
		go func() {
			if err := a.queue.Run(ctx, a.registry()); err != nil {
				a.logger.Error().Err(err).Msg("in-process queue stopped")
			}
		}()
		go a.scheduler().Run(ctx)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Recovery(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType,
			middleware.PurposeHeader, consents.SignatureHeader},
	}))

	e.GET("/health", db.HealthHandler(a.pool))

	api := e.Group("/v1")
	if a.cfg.IsDev() {
		api.Use(auth.DevMiddleware())
	} else {
		api.Use(auth.Middleware([]byte(a.cfg.JWTSecret)))
	}

	claims.NewHandler(a.claimsSvc).RegisterRoutes(api)
	compliance.NewHandler(a.complianceSvc).RegisterRoutes(api)
	eligibility.NewHandler(a.eligibilitySvc).RegisterRoutes(api)
	tasks.NewHandler(a.tasksSvc).RegisterRoutes(api)
	surveys.NewHandler(a.surveysSvc).RegisterRoutes(api)
	appointments.NewHandler(a.appointmentSvc).RegisterRoutes(api)
	consents.NewHandler(a.consentsSvc).RegisterRoutes(api)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			a.logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	a.logger.Info().Str("port", a.cfg.Port).Str("env", a.cfg.Env).
		Str("queue_mode", a.cfg.QueueMode).Msg("starting api server")
	if err := e.Start(":" + a.cfg.Port); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runWorker() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.pool.Close()

	reg := a.registry()
	go a.scheduler().Run(ctx)

	a.logger.Info().Strs("job_types", reg.Types()).
		Int("concurrency", a.cfg.WorkerConcurrency).
		Dur("sweep_interval", a.cfg.SweepInterval).Msg("starting workers")
	return a.queue.Run(ctx, reg)
}
