package main

import (
	"context"
	crypto_rand "crypto/rand"
	"errors"
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

	"github.com/healthadvocate/advocate/internal/config"
	"github.com/healthadvocate/advocate/internal/domain/claims"
	"github.com/healthadvocate/advocate/internal/domain/intake"
	"github.com/healthadvocate/advocate/internal/domain/profiles"
	"github.com/healthadvocate/advocate/internal/domain/report"
	"github.com/healthadvocate/advocate/internal/platform/auth"
	"github.com/healthadvocate/advocate/internal/platform/blobstore"
	"github.com/healthadvocate/advocate/internal/platform/db"
	"github.com/healthadvocate/advocate/internal/platform/logging"
	"github.com/healthadvocate/advocate/internal/platform/middleware"
	"github.com/healthadvocate/advocate/internal/platform/notification"
	"github.com/healthadvocate/advocate/internal/platform/telemetry"
	"github.com/healthadvocate/advocate/migrations"
)

const serviceName = "advocate-server"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Healthcare claim advocacy API server",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(identityCmd())
	root.AddCommand(reportCmd())
	return root
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
			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd, statuses)
			return nil
		},
	})

	return cmd
}

func printMigrationStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
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
}

// identityCmd prints the pseudo-identity intake would derive for a name, for
// support staff matching anonymous submissions to profiles.
func identityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Inspect derived patient identities",
	}

	derive := &cobra.Command{
		Use:   "derive <full name>",
		Short: "Print the identifier derived from a patient name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, _ := cmd.Flags().GetString("strategy")
			keyHex, _ := cmd.Flags().GetString("key")

			key, err := (&config.Config{IdentityKey: keyHex}).IdentityKeyBytes()
			if err != nil {
				return fmt.Errorf("invalid --key: %w", err)
			}
			resolver, err := intake.NewResolver(strategy, key)
			if err != nil {
				return err
			}
			id, err := resolver.Resolve(cmd.Context(), intake.PatientInformation{FullName: args[0]})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	derive.Flags().String("strategy", intake.StrategyNameHash, "Identity strategy: name-hash or keyed")
	derive.Flags().String("key", os.Getenv("IDENTITY_KEY"), "Hex key for the keyed strategy")
	cmd.AddCommand(derive)

	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Claim advocacy reports",
	}

	render := &cobra.Command{
		Use:   "render",
		Short: "Render a claim report to a PDF file",
		RunE: func(cmd *cobra.Command, args []string) error {
			claimArg, _ := cmd.Flags().GetString("claim")
			outPath, _ := cmd.Flags().GetString("out")

			claimID, err := uuid.Parse(claimArg)
			if err != nil {
				return fmt.Errorf("invalid --claim: %w", err)
			}

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			claimSvc := claims.NewService(claims.NewClaimRepo(pool), claims.NewDocumentRepo(pool),
				claims.NewHistoryRepo(pool), claims.NewArtifactRepo(pool), db.PoolTxRunner{Pool: pool})
			profileSvc := profiles.NewService(profiles.NewRepo(pool))
			svc := report.NewService(claimSvc, profileSvc, nil, "", zerolog.Nop())

			if outPath == "" {
				outPath = "claim-report-" + claimID.String()[:8] + ".pdf"
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if _, err := svc.Render(ctx, claimID, f); err != nil {
				f.Close()
				os.Remove(outPath)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outPath)
			return nil
		},
	}
	render.Flags().String("claim", "", "Claim id")
	render.Flags().String("out", "", "Output file (default claim-report-<id>.pdf)")
	render.MarkFlagRequired("claim")
	cmd.AddCommand(render)

	return cmd
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.ResolvedLogFormat(), os.Stdout, serviceName)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure object storage")
	}
	logger.Info().Str("backend", cfg.StorageBackend).Str("bucket", cfg.StorageBucket).Msg("object storage ready")

	signingKey, generated, err := resolveSigningKey(cfg.AuthSigningKey)
	if err != nil {
		return err
	}
	if generated {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set, using a random key; sessions end on restart")
	}

	tel := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{ServiceName: serviceName, Environment: cfg.Env})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger, "/health", "/metrics"))
	e.Use(tel.MetricsMiddleware("/metrics"))
	e.Use(middleware.SecurityHeaders("/storage/", "/api/v1/claims/"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit("1M", uploadBodyLimit(cfg)))
	e.Use(middleware.RequestTimeout(30*time.Second, "/api/v1/intake"))
	e.Use(auth.JWTMiddleware(auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: signingKey}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	e.GET("/metrics", tel.PrometheusHandler())
	blobstore.NewHandler(objects).RegisterRoutes(e.Group("/storage"))

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Storage
	profileRepo := profiles.NewRepo(pool)
	claimRepo := claims.NewClaimRepo(pool)
	documentRepo := claims.NewDocumentRepo(pool)
	historyRepo := claims.NewHistoryRepo(pool)

	mailer := notification.NewMailer(
		notification.NewLogEmailSender(logging.Component(logger, "mail")),
		notification.NewTemplateEngine(),
	)
	notification.NewOutboxHandler(mailer).RegisterRoutes(apiV1)

	// Profiles and accounts
	profileSvc := profiles.NewService(profileRepo)
	profiles.NewHandler(profileSvc).RegisterRoutes(apiV1)

	provider := auth.NewProvider(auth.ProviderConfig{
		Issuer:     cfg.AuthIssuer,
		SigningKey: signingKey,
		SessionTTL: cfg.SessionTTL,
		Hasher:     auth.DefaultHasher,
	}, auth.NewAccountStore(pool), profileSvc, mailer, logging.Component(logger, "auth"))
	auth.NewHandler(provider, cfg.AuthRedirectURL).RegisterRoutes(apiV1)

	// Dashboard and review workflow
	claimSvc := claims.NewService(claimRepo, documentRepo, historyRepo, claims.NewArtifactRepo(pool), db.PoolTxRunner{Pool: pool})
	claims.NewHandler(claimSvc, profileSvc).RegisterRoutes(apiV1)

	reportSvc := report.NewService(claimSvc, profileSvc, mailer, cfg.HREmail, logging.Component(logger, "report"))
	report.NewHandler(reportSvc, profileSvc).RegisterRoutes(apiV1)

	// Intake
	identityKey, err := cfg.IdentityKeyBytes()
	if err != nil {
		return err
	}
	resolver, err := intake.NewResolver(cfg.IdentityStrategy, identityKey)
	if err != nil {
		return err
	}
	intakeLogger := logging.Component(logger, "intake")
	sessions := intake.NewSessionStore(objects, intake.Limits{
		MaxFiles: cfg.UploadMaxFiles,
		MaxBytes: cfg.UploadMaxBytes(),
	}, cfg.IntakeSessionTTL, intakeLogger)
	sessions.SetUploadObserver(tel)
	submitter := intake.NewSubmitter(intake.SubmitterConfig{
		Identity:  resolver,
		Profiles:  profileRepo,
		Claims:    claimRepo,
		Documents: documentRepo,
		History:   historyRepo,
		Notifier:  notification.NewLogNotifier(intakeLogger),
		Observer:  tel,
		Logger:    intakeLogger,
	})
	intake.NewHandler(sessions, submitter).RegisterRoutes(apiV1)

	bg, stop := context.WithCancel(context.Background())
	defer stop()
	go sessions.Run(bg)
	go reportPoolStats(bg, pool, tel.HealthMetrics(), 15*time.Second)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newObjectStore(ctx context.Context, cfg *config.Config) (blobstore.ObjectStore, error) {
	switch cfg.StorageBackend {
	case "s3":
		client, err := blobstore.NewS3Client(ctx, cfg.AWSRegion, cfg.AWSEndpointURL)
		if err != nil {
			return nil, err
		}
		return blobstore.NewS3Store(client, cfg.StorageBucket, cfg.AWSRegion, cfg.StoragePublicURL), nil
	case "memory", "":
		return blobstore.NewMemoryStore(cfg.StoragePublicURL), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

// uploadBodyLimit allows a full batch of attachments plus form overhead.
func uploadBodyLimit(cfg *config.Config) string {
	return fmt.Sprintf("%dM", cfg.UploadMaxFiles*cfg.UploadMaxSizeMB+1)
}

// resolveSigningKey returns AUTH_SIGNING_KEY or generates a random 32-byte
// key. The second return value is true when a random key was generated.
func resolveSigningKey(value string) ([]byte, bool, error) {
	if value != "" {
		return []byte(value), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}

type poolGauge interface {
	SetDBPool(total, idle, acquired int32)
}

func reportPoolStats(ctx context.Context, pool *pgxpool.Pool, g poolGauge, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		stat := pool.Stat()
		g.SetDBPool(stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
