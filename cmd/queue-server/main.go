package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Nishal77/QueueManagement-sub000/internal/config"
	"github.com/Nishal77/QueueManagement-sub000/internal/domain/identity"
	"github.com/Nishal77/QueueManagement-sub000/internal/domain/scheduling"
	"github.com/Nishal77/QueueManagement-sub000/internal/platform/auth"
	"github.com/Nishal77/QueueManagement-sub000/internal/platform/cron"
	"github.com/Nishal77/QueueManagement-sub000/internal/platform/db"
	"github.com/Nishal77/QueueManagement-sub000/internal/platform/lock"
	"github.com/Nishal77/QueueManagement-sub000/internal/platform/middleware"
	"github.com/Nishal77/QueueManagement-sub000/internal/platform/notification"
	"github.com/Nishal77/QueueManagement-sub000/internal/platform/validate"
	"github.com/Nishal77/QueueManagement-sub000/internal/platform/websocket"
	"github.com/Nishal77/QueueManagement-sub000/migrations"
)

const version = "0.1.0"

// lockTTL bounds how long a crashed replica can hold a booking lock.
const lockTTL = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "queue-server",
		Short:        "Hospital queue and appointment booking API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(sweepCmd())
	return rootCmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withPool(cmd.Context(), cfg, func(ctx context.Context, pool *pgxpool.Pool) error {
				count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
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
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withPool(cmd.Context(), cfg, func(ctx context.Context, pool *pgxpool.Pool) error {
				statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
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
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a doctor or admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			subject, _ := cmd.Flags().GetString("subject")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, exp, err := issueToken(newIssuer(cfg), role, subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("role", auth.RoleDoctor, "Role to grant (doctor or admin)")
	cmd.Flags().String("subject", "", "Doctor id, or any identifier for admins")
	return cmd
}

func issueToken(issuer *auth.Issuer, role, subject string) (string, time.Time, error) {
	switch role {
	case auth.RoleDoctor:
		if _, err := uuid.Parse(subject); err != nil {
			return "", time.Time{}, fmt.Errorf("--subject must be the doctor's id")
		}
	case auth.RoleAdmin:
		if subject == "" {
			return "", time.Time{}, fmt.Errorf("--subject is required")
		}
	default:
		return "", time.Time{}, fmt.Errorf("--role must be %q or %q; patients sign in by OTP", auth.RoleDoctor, auth.RoleAdmin)
	}
	return issuer.Issue(subject, role)
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate live queue entries from previous days",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			return withPool(cmd.Context(), cfg, func(ctx context.Context, pool *pgxpool.Pool) error {
				a, err := newApp(ctx, cfg, pool, logger)
				if err != nil {
					return err
				}
				defer a.close()
				n, err := a.scheduling.SweepStaleTrackers(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deactivated %d stale queue entries.\n", n)
				return nil
			})
		},
	}
}

func withPool(ctx context.Context, cfg *config.Config, fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}

func newIssuer(cfg *config.Config) *auth.Issuer {
	return auth.NewIssuer(jwtConfig(cfg))
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: []byte(cfg.JWTSigningKey),
		TTL:        cfg.TokenTTL,
	}
}

// app holds the wired services shared by serve and sweep.
type app struct {
	hub        *websocket.Hub
	identity   *identity.Service
	scheduling *scheduling.Service
	close      func()
}

func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	window, err := scheduling.ParseClinicWindow(cfg.ClinicStart, cfg.ClinicEnd, cfg.SlotIntervalMinutes)
	if err != nil {
		return nil, fmt.Errorf("clinic window: %w", err)
	}

	var locker lock.Locker = lock.NewLocal()
	closeFn := func() {}
	if cfg.RedisURL != "" {
		r, err := lock.NewRedisFromURL(ctx, cfg.RedisURL, lockTTL, logger)
		if err != nil {
			return nil, err
		}
		locker = r
		closeFn = func() { _ = r.Close() }
		logger.Info().Msg("using redis booking lock")
	}

	hub := websocket.NewHub(logger)
	dispatcher := notification.NewDispatcher(hub, logger)
	sms := notification.NewRetrySMSSender(notification.NewLogSMSSender(logger), 3, 500*time.Millisecond, logger)

	identitySvc := identity.NewService(
		identity.NewPatientRepoPG(pool),
		identity.NewOTPRepoPG(pool),
		identity.NewDoctorRepoPG(pool),
		sms,
		newIssuer(cfg),
		logger,
		identity.Options{OTPTTL: cfg.OTPTTL},
	)

	schedulingSvc := scheduling.NewService(
		scheduling.NewAppointmentRepoPG(pool),
		scheduling.NewTrackerRepoPG(pool),
		db.NewTxRunner(pool),
		locker,
		NewDirectoryAdapter(identitySvc),
		NewStatusPublisher(dispatcher),
		logger,
		scheduling.Options{
			Window:            window,
			Location:          loc,
			AvgServiceMinutes: cfg.AvgServiceMinutes,
			BookingWindowDays: cfg.BookingWindowDays,
		},
	)

	return &app{hub: hub, identity: identitySvc, scheduling: schedulingSvc, close: closeFn}, nil
}

func runServer() error {
	// Config
	cfg, err := loadConfig()
	if err != nil {
		bootLogger := newLogger(os.Getenv("ENV"))
		bootLogger.Error().Err(err).Msg("failed to load config")
		return err
	}
	logger := newLogger(cfg.Env)

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a, err := newApp(ctx, cfg, pool, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to wire services")
		return err
	}
	defer a.close()

	e := newEcho(cfg, logger, a, pool)

	// End-of-day cleanup
	loc, _ := cfg.Location()
	jobs := cron.New(loc, time.Minute, logger)
	if err := jobs.Daily("sweep-stale-trackers", cfg.SweepAt, true, func(ctx context.Context) error {
		n, err := a.scheduling.SweepStaleTrackers(ctx)
		if err == nil && n > 0 {
			logger.Info().Int64("deactivated", n).Msg("stale queue entries swept")
		}
		return err
	}); err != nil {
		return err
	}
	jobs.Start()
	defer jobs.Stop()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newEcho(cfg *config.Config, logger zerolog.Logger, a *app, pool *pgxpool.Pool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool, db.StatsOf(pool)))
	}

	// API groups
	public := e.Group("/api/v1")
	api := e.Group("/api/v1", auth.JWTMiddleware(jwtConfig(cfg)))

	otpLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})

	identity.NewHandler(a.identity).RegisterRoutes(public, api, otpLimit)
	scheduling.NewHandler(a.scheduling).RegisterRoutes(public, api)
	websocket.NewHandler(a.hub, cfg.CORSOrigins).RegisterRoutes(api)

	return e
}
