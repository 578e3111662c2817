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

	"github.com/informia/informia/internal/config"
	"github.com/informia/informia/internal/domain/billing"
	"github.com/informia/informia/internal/domain/export"
	"github.com/informia/informia/internal/domain/patient"
	"github.com/informia/informia/internal/domain/profile"
	"github.com/informia/informia/internal/domain/report"
	"github.com/informia/informia/internal/domain/session"
	"github.com/informia/informia/internal/domain/stats"
	"github.com/informia/informia/internal/platform/ai"
	"github.com/informia/informia/internal/platform/auth"
	"github.com/informia/informia/internal/platform/cache"
	"github.com/informia/informia/internal/platform/crypto"
	"github.com/informia/informia/internal/platform/db"
	"github.com/informia/informia/internal/platform/gdrive"
	"github.com/informia/informia/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "informia-server",
		Short: "iNFORiA practitioner API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(creditsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnIdleTime: 5 * time.Minute,
	})
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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
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
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
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
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// creditsCmd exposes the quota period rollover to operators.
func creditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and reset report credits",
	}

	withProfiles := func(fn func(ctx context.Context, svc *profile.Service) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := context.Background()
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, profile.NewService(profile.NewRepoPG(pool), newLogger(cfg.Env)))
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the credit usage of a practitioner",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("user")
			userID, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("--user must be a valid uuid")
			}
			return withProfiles(func(ctx context.Context, svc *profile.Service) error {
				u, err := svc.Usage(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Printf("plan=%s used=%d limit=%d remaining=%d status=%s period_start=%s\n",
					u.Plan, u.Used, u.Limit, u.Remaining, u.Status, u.PeriodStart.Format(time.RFC3339))
				return nil
			})
		},
	}
	showCmd.Flags().String("user", "", "Practitioner user id")
	cmd.AddCommand(showCmd)

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Start a new credit period for one or all practitioners",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("user")
			all, _ := cmd.Flags().GetBool("all")
			if (raw == "") == !all {
				return fmt.Errorf("exactly one of --user or --all is required")
			}
			return withProfiles(func(ctx context.Context, svc *profile.Service) error {
				if all {
					n, err := svc.ResetAllCredits(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("Reset credits of %d profile(s).\n", n)
					return nil
				}
				userID, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("--user must be a valid uuid")
				}
				if err := svc.ResetCredits(ctx, userID); err != nil {
					return err
				}
				fmt.Println("Credits reset.")
				return nil
			})
		},
	}
	resetCmd.Flags().String("user", "", "Practitioner user id")
	resetCmd.Flags().Bool("all", false, "Reset every profile")
	cmd.AddCommand(resetCmd)

	return cmd
}

// skipPublic runs mw on every route except the public ones.
func skipPublic(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		guarded := mw(next)
		return func(c echo.Context) error {
			if auth.AuthSkipper(c) {
				return next(c)
			}
			return guarded(c)
		}
	}
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	var verify echo.MiddlewareFunc
	if cfg.AuthJWTSecret != "" || cfg.AuthJWKSURL != "" {
		verify = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthJWTSecret),
		})
	}
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(verify)
	}
	return verify
}

// healthHandler reports which required environment variables are set.
func healthHandler(cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		env := cfg.RequiredEnvStatus()
		status := "ok"
		for _, set := range env {
			if !set {
				status = "degraded"
				break
			}
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    status,
			"env":       env,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func newCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) cache.Cache {
	if cfg.RedisURL == "" {
		return cache.NewMemory()
	}
	r, err := cache.NewRedis(ctx, cfg.RedisURL, "informia:")
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using in-memory cache")
		return cache.NewMemory()
	}
	logger.Info().Msg("connected to redis")
	return r
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	inTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.RunInTx(ctx, pool, fn)
	}

	cipher, err := crypto.NewFieldCipher(cfg.EncryptionKey, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise field encryption")
	}

	statsCache := newCache(ctx, cfg, logger)

	// AI providers. Transcription always goes through OpenAI.
	openai := ai.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	var writer ai.Writer = openai
	if cfg.AIProvider == "gemini" {
		gemini, err := ai.NewGemini(ctx, cfg.GeminiAPIKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create gemini client")
		}
		defer gemini.Close()
		writer = gemini
	}
	logger.Info().Str("provider", cfg.AIProvider).Msg("report writer configured")

	templates, err := report.LoadTemplates()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load report templates")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "Stripe-Signature"},
	}))
	e.Use(middleware.BodyLimit("1M", "25M"))
	e.Use(middleware.RequestTimeout(30*time.Second, 5*time.Minute, "/audio", "/generate"))

	// Auth middleware
	if mw := authMiddleware(cfg); mw != nil {
		e.Use(skipPublic(mw))
	}

	// API groups
	apiV1 := e.Group("/api/v1", auth.RequireRole("authenticated"))
	stripeGroup := e.Group("/api/stripe")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	stripeGroup.Use(middleware.RateLimit(rateLimitCfg))

	// Health checks
	e.GET("/api/health", healthHandler(cfg))
	e.GET("/health/db", db.HealthHandler(pool))

	// Profiles and quota
	profileSvc := profile.NewService(profile.NewRepoPG(pool), logger)
	profile.NewHandler(profileSvc).RegisterRoutes(apiV1)

	// Patients
	patientSvc := patient.NewService(patient.NewRepoPG(pool), logger)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	// Reports
	reportSvc := report.NewService(report.NewRepoPG(pool), cipher, logger)
	generator := report.NewGenerator(reportSvc, profileSvc, patientSvc, writer, templates, inTx, logger)
	report.NewHandler(reportSvc, generator).RegisterRoutes(apiV1)

	// Session drafts
	sessionSvc := session.NewService(session.NewRepoPG(pool), patientSvc, openai, generator, cipher, logger)
	session.NewHandler(sessionSvc).RegisterRoutes(apiV1)

	// Dashboard stats
	statsSvc := stats.NewService(patientSvc, reportSvc, profileSvc, statsCache, logger)
	profileSvc.SetChangeHook(statsSvc.Invalidate)
	patientSvc.SetChangeHook(statsSvc.Invalidate)
	reportSvc.SetChangeHook(statsSvc.Invalidate)
	stats.NewHandler(statsSvc).RegisterRoutes(apiV1)

	// Billing
	var billingSvc *billing.Service
	if cfg.StripeEnabled() {
		billingSvc = billing.NewService(
			billing.NewStripeGateway(cfg.StripeSecretKey),
			profileSvc,
			billing.NewEventLogPG(pool),
			inTx,
			billing.Config{
				Prices: billing.Prices{
					profile.PlanProfessional: cfg.StripePriceProfessional,
					profile.PlanClinic:       cfg.StripePriceClinic,
				},
				FrontendURL: cfg.FrontendURL,
			},
			logger,
		)
		logger.Info().Msg("stripe billing enabled")
	} else {
		logger.Warn().Msg("stripe billing disabled: STRIPE_SECRET_KEY is not set")
	}
	billing.NewHandler(billingSvc, cfg.StripeWebhookSecret, logger).RegisterRoutes(apiV1, stripeGroup)

	// Google export
	var exportSvc *export.Service
	if cfg.GoogleEnabled() {
		client, err := gdrive.New(ctx, cfg.GoogleCredentialsFile)
		if err != nil {
			logger.Error().Err(err).Msg("google export disabled: client setup failed")
		} else {
			exportSvc = export.NewService(client, reportSvc, patientSvc, sessionSvc, profileSvc, export.Config{
				RootFolderID: cfg.GoogleDriveRootFolder,
				SheetID:      cfg.GoogleSheetID,
			}, logger)
		}
	}
	export.NewHandler(exportSvc).RegisterRoutes(apiV1)

	// Graceful shutdown
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
