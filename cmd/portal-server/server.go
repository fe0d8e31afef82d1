package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/healthfirst/portal/internal/config"
	"github.com/healthfirst/portal/internal/domain/registration"
	"github.com/healthfirst/portal/internal/domain/scheduling"
	"github.com/healthfirst/portal/internal/platform/auth"
	"github.com/healthfirst/portal/internal/platform/db"
	"github.com/healthfirst/portal/internal/platform/kvstore"
	"github.com/healthfirst/portal/internal/platform/middleware"
	"github.com/healthfirst/portal/internal/platform/notification"
	"github.com/healthfirst/portal/internal/platform/websocket"
	"github.com/healthfirst/portal/internal/wizard"
)

const version = "0.1.0"

// portalFlows builds the four wizards served by the portal.
func portalFlows(now func() time.Time) []*wizard.Flow {
	return []*wizard.Flow{
		registration.PatientFlow(now),
		registration.ProviderFlow(),
		scheduling.AvailabilityFlow(),
		scheduling.AppointmentFlow(now),
	}
}

// app is a fully wired server plus what must be released on shutdown.
type app struct {
	echo        *echo.Echo
	sessions    *wizard.Manager
	revocations *auth.RevocationList
	closers     []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openStore returns the draft store named by cfg.DraftStore.
func openStore(cfg *config.Config, pool *pgxpool.Pool) (kvstore.Store, func(), error) {
	switch cfg.DraftStore {
	case config.StoreBolt:
		b, err := kvstore.OpenBolt(cfg.DraftBoltPath)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	case config.StorePostgres:
		return kvstore.NewPostgres(pool), func() {}, nil
	}
	return kvstore.NewMemory(), func() {}, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}

	// Database
	var pool *pgxpool.Pool
	if cfg.UsesPostgres() {
		var err error
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		logger.Info().Msg("connected to database")
	}

	store, closeStore, err := openStore(cfg, pool)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open draft store: %w", err)
	}
	a.closers = append(a.closers, closeStore)
	logger.Info().Str("backend", cfg.DraftStore).Msg("draft store ready")

	// Notifications and identity
	hub := websocket.NewHub(logger)
	center := notification.NewCenter(hub, logger)
	mailer := notification.NewMailer(notification.LogEmailSender{Logger: logger.With().Str("component", "mail").Logger()},
		notification.NewTemplateEngine())

	a.revocations = auth.NewRevocationList()
	identity := auth.NewIdentity(auth.IdentityConfig{
		Issuer:      cfg.JWTIssuer,
		SigningKey:  []byte(cfg.JWTSigningKey),
		TokenTTL:    cfg.TokenTTL,
		BcryptCost:  cfg.BcryptCost,
		ResetURL:    cfg.PasswordResetURL,
		Revocations: a.revocations,
	}, mailer, logger)
	if err := identity.SeedDemoAccounts(); err != nil {
		a.close()
		return nil, fmt.Errorf("seed demo accounts: %w", err)
	}

	// Domain services
	var (
		patients     registration.PatientRepository
		providers    registration.ProviderRepository
		availability scheduling.AvailabilityRepository
		appointments scheduling.AppointmentRepository
	)
	if pool != nil {
		patients, providers = registration.NewPatientRepo(pool), registration.NewProviderRepo(pool)
		availability, appointments = scheduling.NewAvailabilityRepo(pool), scheduling.NewAppointmentRepo(pool)
	} else {
		patients, providers = registration.NewPatientRepoMemory(), registration.NewProviderRepoMemory()
		availability, appointments = scheduling.NewAvailabilityRepoMemory(), scheduling.NewAppointmentRepoMemory()
	}
	regSvc := registration.NewService(patients, providers, identity, mailer, logger,
		registration.Config{Latency: cfg.SubmitLatency})
	schedSvc := scheduling.NewService(availability, appointments, mailer, logger,
		scheduling.Config{Latency: cfg.SubmitLatency})

	flows := wizard.NewRegistry()
	for _, f := range portalFlows(time.Now) {
		switch f.Name {
		case scheduling.FlowAvailability, scheduling.FlowAppointment:
			flows.Register(f, schedSvc)
		default:
			flows.Register(f, regSvc)
		}
	}
	a.sessions = wizard.NewManager(wizard.ManagerConfig{
		Flows:            flows,
		Store:            store,
		Notifier:         center,
		Logger:           logger,
		AutosaveInterval: cfg.AutosaveInterval,
		IdleTimeout:      cfg.SessionIdleTimeout,
	})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", wizard.ClientIDHeader},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	jwtCfg := identity.JWTConfig()
	jwtCfg.Skipper = auth.AuthSkipper

	// Sign-in endpoints
	authGroup := e.Group("/auth",
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			IdleTTL:           10 * time.Minute,
		}),
		auth.JWTMiddleware(jwtCfg),
	)
	auth.NewHandler(identity).RegisterRoutes(authGroup)

	// Registration wizards are public; the rest checks roles per route.
	optional := jwtCfg
	optional.Optional = true
	apiV1 := e.Group("/api/v1", auth.JWTMiddleware(optional))
	wizard.NewHandler(flows, a.sessions).RegisterRoutes(apiV1)
	notification.NewHandler(center, mailer).RegisterRoutes(apiV1)
	registration.NewHandler(regSvc).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1)

	// Live notifications
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e)

	a.echo = e
	return a, nil
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.close()

	go a.sessions.Run(ctx, time.Minute)
	go a.revocations.Run(ctx, time.Minute)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.echo,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	a.sessions.Shutdown(shutdownCtx)
	logger.Info().Msg("server stopped")
	return nil
}
