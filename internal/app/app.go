package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/miravex/cinerec/internal/auth"
	"github.com/miravex/cinerec/internal/config"
	"github.com/miravex/cinerec/internal/database"
	"github.com/miravex/cinerec/internal/handlers"
	"github.com/miravex/cinerec/internal/messaging"
	"github.com/miravex/cinerec/internal/metrics"
	"github.com/miravex/cinerec/internal/middleware"
	"github.com/miravex/cinerec/internal/pipeline"
	"github.com/miravex/cinerec/internal/rerank"
	"github.com/miravex/cinerec/internal/store"
	"github.com/miravex/cinerec/pkg/models"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	bus      *messaging.MessageBus
	auth     *auth.Service
	handlers *handlers.Handlers
	router   *gin.Engine

	consumerCancel context.CancelFunc
	consumerDone   chan struct{}
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	bus, err := messaging.NewMessageBus(&cfg.Kafka, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize message bus: %w", err)
	}
	app.bus = bus

	m := metrics.New()

	interactionStore := store.NewInteractionStore(db.PG, app.logger)
	catalog := store.NewCatalog(&cfg.Catalog, db.Redis, app.logger)

	fileSink, err := store.NewFileSink(cfg.Sink.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file sink: %w", err)
	}
	sink := store.NewTieredSink(store.NewRedisSink(db.Redis, cfg.Sink.RedisTTL), fileSink)

	reranker, err := rerank.NewReranker(&cfg.Rerank, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reranker: %w", err)
	}

	trainer := pipeline.New(&cfg.Algorithms, interactionStore, catalog, reranker, sink, m, app.logger)

	app.auth = auth.NewService(&cfg.Auth, app.logger, db.Redis)

	checks := []handlers.HealthCheck{
		{Name: "database", Check: func(ctx context.Context) error { return db.PG.Ping(ctx) }},
		{Name: "redis", Check: func(ctx context.Context) error { return db.Redis.Ping(ctx).Err() }},
	}

	app.handlers = handlers.New(app.logger, bus, sink, trainer, checks)

	app.setupRouter()
	app.startConsumer(interactionStore)

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// startConsumer drains the interaction topic into the database for the
// lifetime of the app.
func (a *App) startConsumer(interactionStore *store.InteractionStore) {
	ctx, cancel := context.WithCancel(context.Background())
	a.consumerCancel = cancel
	a.consumerDone = make(chan struct{})

	go func() {
		defer close(a.consumerDone)
		err := a.bus.ConsumeInteractions(ctx, func(ctx context.Context, event models.InteractionEvent) error {
			return interactionStore.AddInteraction(ctx, event.Interaction)
		})
		if err != nil && ctx.Err() == nil {
			a.logger.WithError(err).Error("Interaction consumer stopped")
		}
	}()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.consumerCancel != nil {
		a.consumerCancel()
		select {
		case <-a.consumerDone:
		case <-ctx.Done():
			a.logger.Warn("Timed out waiting for interaction consumer to stop")
		}
	}

	if err := a.bus.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing message bus")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(&a.config.Server.CORS))

	// Health and Prometheus endpoints skip auth
	router.GET("/health", a.handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.auth, a.logger))
		api.Use(middleware.RateLimit(a.db.Redis, &a.config.Auth.RateLimit, a.logger))

		api.POST("/interactions", a.handlers.Interaction.Record)
		api.GET("/recommendations/:userId", a.handlers.Recommendation.Get)

		api.POST("/train", a.handlers.Training.Trigger)
		api.GET("/train/status", a.handlers.Training.Status)
	}

	a.router = router
}
