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
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/homecare/homecare/internal/config"
	"github.com/homecare/homecare/internal/domain/chat"
	"github.com/homecare/homecare/internal/domain/dispatch"
	"github.com/homecare/homecare/internal/domain/nurse"
	"github.com/homecare/homecare/internal/domain/panicalert"
	"github.com/homecare/homecare/internal/gateway"
	"github.com/homecare/homecare/internal/platform/auth"
	"github.com/homecare/homecare/internal/platform/db"
	"github.com/homecare/homecare/internal/platform/middleware"
	"github.com/homecare/homecare/internal/platform/notification"
	"github.com/homecare/homecare/internal/platform/realtime"
)

// chatRequestSource adapts the dispatch service to the chat room seeder,
// keeping the two domains decoupled at the package level.
type chatRequestSource struct {
	dispatch *dispatch.Service
}

func (a *chatRequestSource) RequestChatInfo(ctx context.Context, requestID uuid.UUID) (*chat.RequestChatInfo, error) {
	sr, err := a.dispatch.Lookup(ctx, requestID)
	if err != nil {
		return nil, err
	}

	info := &chat.RequestChatInfo{
		RequestID: sr.ID,
		Accepted:  sr.NurseID != nil,
		Terminal:  sr.Status.Terminal(),
	}
	info.Participants = append(info.Participants, chat.ParticipantSeed{
		ActorID:     sr.PatientID,
		Role:        "patient",
		DisplayName: "Paciente",
	})
	if sr.NurseID != nil {
		name := "Enfermera"
		if sr.NurseName != nil {
			name = *sr.NurseName
		}
		info.Participants = append(info.Participants, chat.ParticipantSeed{
			ActorID:     *sr.NurseID,
			Role:        "nurse",
			DisplayName: name,
		})
	}
	return info, nil
}

// logPushSender and logSMSSender stand in until a real push gateway and SMS
// provider are configured. Deliveries are logged, never dropped silently.
type logPushSender struct{ logger zerolog.Logger }

func (s *logPushSender) SendPush(_ context.Context, actorID, title, body string) error {
	s.logger.Info().Str("actor_id", actorID).Str("title", title).Str("body", body).Msg("push notification")
	return nil
}

type logSMSSender struct{ logger zerolog.Logger }

func (s *logSMSSender) SendSMS(_ context.Context, actorID, body string) error {
	s.logger.Info().Str("actor_id", actorID).Str("body", body).Msg("sms notification")
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "homecare-server",
		Short: "Home healthcare dispatch API server",
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

	// Realtime plumbing
	registry := realtime.NewRegistry()
	hub := realtime.NewHub(registry, logger)
	limiter := realtime.NewSendLimiter(cfg.ChatMaxMessages, cfg.ChatWindow())
	registry.OnOffline(func(actorID string, _ auth.Role) {
		limiter.Reset(actorID)
	})

	// Notifications
	notifier := notification.NewManager(
		&logPushSender{logger: logger},
		&logSMSSender{logger: logger},
		notification.NewTemplateEngine(),
		logger,
	)

	// Domain services
	nurseSvc := nurse.NewService(nurse.NewRepoPG(pool))
	dispatchSvc := dispatch.NewService(dispatch.NewRepoPG(pool), nurseSvc, hub, notifier, logger)
	chatSvc := chat.NewService(chat.NewRepoPG(pool), &chatRequestSource{dispatch: dispatchSvc}, hub, limiter, notifier, logger)
	dispatchSvc.SetRoomCloser(chatSvc)
	panicSvc := panicalert.NewService(panicalert.NewRepoPG(pool), nurseSvc, registry, hub, notifier, logger)

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
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	verifier := auth.NewVerifier(cfg.JWTSecret)
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(verifier))
	}

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health checks
	e.GET("/health", db.HealthHandler(pool))
	e.GET("/health/realtime", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]int{
			"connections":   registry.Size(),
			"online_actors": registry.OnlineActors(),
			"rooms":         hub.RoomCount(),
		})
	})

	// Domain routes
	nurse.NewHandler(nurseSvc).RegisterRoutes(apiV1)
	dispatch.NewHandler(dispatchSvc).RegisterRoutes(apiV1)
	chat.NewHandler(chatSvc).RegisterRoutes(apiV1)
	panicalert.NewHandler(panicSvc).RegisterRoutes(apiV1)

	adminGroup := apiV1.Group("", auth.RequireRole(auth.RoleAdmin))
	notification.NewHandler(notifier).RegisterRoutes(adminGroup)

	// WebSocket gateway
	gateway.New(hub, verifier, dispatchSvc, chatSvc, panicSvc, logger).RegisterRoutes(e)

	// Start server with graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
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
	notifier.Wait()
	return nil
}
