package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Zack-y11/clinica-dental-system/internal/config"
	"github.com/Zack-y11/clinica-dental-system/internal/domain/scheduling"
	"github.com/Zack-y11/clinica-dental-system/internal/platform/db"
	"github.com/Zack-y11/clinica-dental-system/internal/platform/logging"
	"github.com/Zack-y11/clinica-dental-system/internal/platform/middleware"
	"github.com/Zack-y11/clinica-dental-system/internal/platform/telemetry"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Dental clinic appointment scheduling server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		Console: cfg.IsDev(),
		File:    cfg.LogFile,
	})
	return cfg, logger, nil
}

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	loc, _ := cfg.Location()

	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    "clinic-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		SampleRate:     cfg.TracingSampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	schedMetrics := scheduling.NewMetrics(reg)
	repo := scheduling.NewAppointmentRepoPG(pool)
	store := scheduling.NewBreakerStore(repo, scheduling.BreakerSettings{
		MaxFailures: cfg.BreakerMaxFails,
		OpenTimeout: cfg.BreakerOpenFor,
		Metrics:     schedMetrics,
	}, logger)
	validator := scheduling.NewValidator(store,
		scheduling.WithLocation(loc),
		scheduling.WithMetrics(schedMetrics),
		scheduling.WithLogger(logger),
	)
	svc := scheduling.NewService(repo, validator, scheduling.ServiceConfig{
		LockWrites: cfg.DoctorLockEnabled,
		Metrics:    schedMetrics,
		Logger:     logger,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(telemetry.Middleware(tp))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics(middleware.NewHTTPMetrics(reg, "clinic")))
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	apiV1 := e.Group("/api/v1")
	scheduling.NewHandler(svc, logger).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func withMigrator(fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator, err := db.NewMigrator(pool)
	if err != nil {
		return err
	}
	defer migrator.Close()
	return fn(ctx, migrator)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Fprintln(out, strings.Repeat("-", 10)+" "+strings.Repeat("-", 40)+" "+strings.Repeat("-", 10)+" "+strings.Repeat("-", 20))
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				if err := m.Down(ctx); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				v, err := m.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rolled back; schema is now at version %d.\n", v)
				return nil
			})
		},
	})

	return cmd
}

// checkCmd runs the conflict validator against the configured database
// without writing anything. It exits non-zero when the slot is taken.
func checkCmd() *cobra.Command {
	var (
		doctorID  int64
		patientID int64
		excludeID int64
		at        string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether an appointment slot is free",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			loc, _ := cfg.Location()

			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			c := scheduling.Candidate{DoctorID: doctorID, ScheduledAt: at}
			if patientID > 0 {
				c.PatientID = &patientID
			}
			if excludeID > 0 {
				c.ExcludeID = &excludeID
			}

			v := scheduling.NewValidator(scheduling.NewAppointmentRepoPG(pool),
				scheduling.WithLocation(loc),
				scheduling.WithLogger(logger),
			)
			if err := v.Validate(ctx, c); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "available")
			return nil
		},
	}
	cmd.Flags().Int64Var(&doctorID, "doctor", 0, "Doctor ID")
	cmd.Flags().Int64Var(&patientID, "patient", 0, "Patient ID (enables the one-per-day check)")
	cmd.Flags().Int64Var(&excludeID, "exclude", 0, "Appointment ID to ignore, for reschedules")
	cmd.Flags().StringVar(&at, "at", "", "Proposed start, RFC 3339 or clinic-local YYYY-MM-DDTHH:MM")
	_ = cmd.MarkFlagRequired("doctor")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}
