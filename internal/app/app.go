// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/incident-tracker/api/openapi"
	"github.com/bissquit/incident-tracker/internal/config"
	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/incidents"
	"github.com/bissquit/incident-tracker/internal/incidents/memory"
	incidentspostgres "github.com/bissquit/incident-tracker/internal/incidents/postgres"
	"github.com/bissquit/incident-tracker/internal/notifications"
	"github.com/bissquit/incident-tracker/internal/notifications/email"
	"github.com/bissquit/incident-tracker/internal/notifications/mattermost"
	"github.com/bissquit/incident-tracker/internal/notifications/webhook"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/bissquit/incident-tracker/internal/pkg/metrics"
	"github.com/bissquit/incident-tracker/internal/pkg/postgres"
	"github.com/bissquit/incident-tracker/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config             *config.Config
	logger             *slog.Logger
	db                 *pgxpool.Pool // nil with in-memory storage
	server             *http.Server
	metricsServer      *http.Server
	backgroundCancel   context.CancelFunc
	notificationWorker *notifications.Worker
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	app := &App{
		config: cfg,
		logger: logger,
	}

	repo, err := app.openRepository()
	if err != nil {
		return nil, err
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	app.backgroundCancel = backgroundCancel

	if app.db != nil {
		go app.collectDBMetrics(backgroundCtx)
	}

	notifier, err := app.setupNotifications(backgroundCtx)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("setup notifications: %w", err)
	}

	service := incidents.NewService(repo, notifier)
	router := app.setupRouter(incidents.NewHandler(service))

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

func (a *App) openRepository() (incidents.Repository, error) {
	a.logger.Info("configuring storage", "driver", a.config.Storage.Driver)

	if a.config.Storage.Driver != config.StoragePostgres {
		return memory.NewRepository(), nil
	}

	dbCfg := a.config.Database
	if dbCfg.MigrateOnStart {
		if err := postgres.Migrate(dbCfg.URL); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), dbCfg.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             dbCfg.URL,
		MaxOpenConns:    dbCfg.MaxOpenConns,
		MaxIdleConns:    dbCfg.MaxIdleConns,
		ConnMaxLifetime: dbCfg.ConnMaxLifetime,
		ConnectAttempts: dbCfg.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	a.db = db
	return incidentspostgres.NewRepository(db), nil
}

// setupNotifications starts the delivery worker and returns the notifier the
// incident service reports to. It returns a nil notifier when disabled.
func (a *App) setupNotifications(ctx context.Context) (incidents.EventNotifier, error) {
	cfg := a.config.Notifications

	a.logger.Info("notifications configured",
		"enabled", cfg.Enabled,
		"channels", len(cfg.Channels),
	)

	if !cfg.Enabled {
		return nil, nil
	}

	renderer, err := notifications.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	senders := []notifications.Sender{
		mattermost.NewSender(mattermost.Config{
			DefaultUsername: cfg.Mattermost.Username,
			DefaultIconURL:  cfg.Mattermost.IconURL,
			Timeout:         cfg.Mattermost.Timeout,
		}),
		webhook.NewSender(webhook.Config{
			Timeout:   cfg.Webhook.Timeout,
			RateLimit: cfg.Webhook.RateLimit,
			Burst:     cfg.Webhook.Burst,
			Headers:   cfg.Webhook.Headers,
		}),
	}
	if cfg.Email.SMTPHost != "" {
		emailSender, err := email.NewSender(email.Config{
			SMTPHost:     cfg.Email.SMTPHost,
			SMTPPort:     cfg.Email.SMTPPort,
			SMTPUser:     cfg.Email.SMTPUser,
			SMTPPassword: cfg.Email.SMTPPassword,
			FromAddress:  cfg.Email.FromAddress,
			BatchSize:    cfg.Email.BatchSize,
			DialTimeout:  cfg.Email.DialTimeout,
		})
		if err != nil {
			return nil, err
		}
		senders = append(senders, emailSender)
	}
	dispatcher := notifications.NewDispatcher(senders...)

	channels := make([]domain.NotificationChannel, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channelType := domain.ChannelType(ch.Type)
		if !dispatcher.Supports(channelType) {
			return nil, fmt.Errorf("channel %s: unsupported type %q", ch.Name, ch.Type)
		}
		channels = append(channels, domain.NotificationChannel{
			Name:   ch.Name,
			Type:   channelType,
			Target: ch.Target,
		})
	}

	queue := notifications.NewQueue(cfg.QueueCapacity)
	notifier := notifications.NewNotifier(notifications.NotifierConfig{
		Channels:    channels,
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseURL:     cfg.BaseURL,
	}, queue)

	a.notificationWorker = notifications.NewWorker(notifications.WorkerConfig{
		BatchSize:         cfg.Worker.BatchSize,
		PollInterval:      cfg.Worker.PollInterval,
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialBackoff:    cfg.Retry.InitialBackoff,
		MaxBackoff:        cfg.Retry.MaxBackoff,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		NumWorkers:        cfg.Worker.NumWorkers,
		SendTimeout:       cfg.Worker.SendTimeout,
	}, queue, dispatcher, renderer)
	a.notificationWorker.Start(ctx)

	return notifier, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	// In-flight requests are done, so nothing enqueues anymore.
	a.close()

	return errors.Join(errs...)
}

func (a *App) close() {
	if a.backgroundCancel != nil {
		a.backgroundCancel()
	}
	if a.notificationWorker != nil {
		a.notificationWorker.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// NotificationWorker returns the notification worker, or nil if notifications are disabled.
func (a *App) NotificationWorker() *notifications.Worker {
	return a.notificationWorker
}

func (a *App) setupRouter(incidentsHandler *incidents.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.config.Server.RequestTimeout))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		_, _ = w.Write(openapi.Spec)
	})

	r.Route("/api/v1", func(r chi.Router) {
		incidentsHandler.RegisterRoutes(r)
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		httputil.Text(w, http.StatusOK, "OK")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
