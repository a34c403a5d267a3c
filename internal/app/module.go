package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"chat-core/internal/auth"
	"chat-core/internal/config"
	"chat-core/internal/db"
	"chat-core/internal/grpcserver"
	"chat-core/internal/handlers"
	"chat-core/internal/logging"
	"chat-core/internal/middleware"
	"chat-core/internal/observability"
	"chat-core/internal/presence"
	"chat-core/internal/rabbitmq"
	"chat-core/internal/reconcile"
	"chat-core/internal/repositories"
	"chat-core/internal/router"
	"chat-core/internal/telemetry"
	"chat-core/internal/ws"
)

const startupTimeout = 15 * time.Second

var (
	_ router.Hub         = (*ws.Hub)(nil)
	_ router.Presence    = (*presence.Registry)(nil)
	_ reconcile.Notifier = (*ws.Hub)(nil)
	_ ws.Lifecycle       = (*router.Router)(nil)
	_ router.Auditor     = (*telemetry.AuditEmitter)(nil)
	_ handlers.Auditor   = (*telemetry.AuditEmitter)(nil)

	_ handlers.ConversationService = (*router.Router)(nil)
	_ handlers.GroupService        = (*router.Router)(nil)
)

// Module composes every provider and lifecycle hook of the service.
func Module() fx.Option {
	return fx.Module("chat-core",
		fx.Provide(
			config.Load,
			provideLogger,
			provideDatabase,
			provideStore,
			providePresence,
			provideHub,
			provideReconciler,
			providePublisher,
			provideAudit,
			provideRouter,
			provideVerifier,
			provideWSHandler,
			provideEngine,
			provideGRPCServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogLevel, cfg.Environment, cfg.ServiceName)
}

func provideDatabase(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	database, err := db.Connect(ctx, cfg.Database.DSN, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return database.Close()
		},
	})
	return database, nil
}

func provideStore(database *sqlx.DB) repositories.Store {
	return repositories.NewSQLStore(database)
}

func providePresence(store repositories.Store, logger *zap.Logger) *presence.Registry {
	return presence.NewRegistry(store.Users(), logger)
}

func provideHub(registry *presence.Registry, store repositories.Store, logger *zap.Logger) *ws.Hub {
	return ws.NewHub(registry, store.Conversations(), logger)
}

func provideReconciler(store repositories.Store, hub *ws.Hub, registry *presence.Registry, logger *zap.Logger) *reconcile.Reconciler {
	return reconcile.New(store, hub, registry, logger)
}

func providePublisher(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) rabbitmq.Publisher {
	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	observability.SetPublisher(publisher)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			observability.SetPublisher(nil)
			return publisher.Close()
		},
	})
	return publisher
}

func provideAudit(publisher rabbitmq.Publisher, cfg config.Config, logger *zap.Logger) *telemetry.AuditEmitter {
	return telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRoutingKey, cfg.ServiceName, cfg.Environment, logger)
}

func provideRouter(store repositories.Store, hub *ws.Hub, registry *presence.Registry, reconciler *reconcile.Reconciler, audit *telemetry.AuditEmitter, logger *zap.Logger) *router.Router {
	return router.New(store, hub, registry, reconciler, audit, logger)
}

func provideVerifier(cfg config.Config, store repositories.Store) auth.Verifier {
	return auth.NewJWTVerifier(cfg.Auth.JWTSecret, store.Users())
}

func provideWSHandler(hub *ws.Hub, verifier auth.Verifier, r *router.Router, cfg config.Config, logger *zap.Logger) *ws.Handler {
	return ws.NewHandler(hub, verifier, r, cfg.WSSettings(), logger)
}

func provideEngine(cfg config.Config, database *sqlx.DB, hub *ws.Hub, verifier auth.Verifier, r *router.Router, wsHandler *ws.Handler, audit *telemetry.AuditEmitter) *gin.Engine {
	if cfg.Environment != "local" && cfg.Environment != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware(cfg.ServiceName), observability.HTTPMetricsMiddleware())

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", healthz(database, hub))
	engine.GET("/ws", wsHandler.Handle)
	handlers.RegisterDebugRoutes(engine, audit, r, cfg.DebugRoutes)

	api := engine.Group("/api", middleware.AuthMiddleware(verifier))
	handlers.NewConversationHandler(r).Register(api)
	handlers.NewGroupHandler(r, audit).Register(api)
	return engine
}

func healthz(database *sqlx.DB, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := database.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.ClientCount()})
	}
}

func provideGRPCServer(cfg config.Config, logger *zap.Logger) (*grpcserver.Server, error) {
	return grpcserver.NewServer(":"+cfg.GRPC.Port, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg config.Config, engine *gin.Engine, grpcSrv *grpcserver.Server, logger *zap.Logger) {
	httpSrv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	var shutdownTracer func(context.Context) error

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			shutdown, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.Environment, cfg.Tracing.Endpoint)
			if err != nil {
				return err
			}
			shutdownTracer = shutdown

			listener, err := net.Listen("tcp", httpSrv.Addr)
			if err != nil {
				return err
			}
			go func() {
				if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()
			go func() {
				if err := grpcSrv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			logger.Info("chat-core started", zap.String("http_addr", httpSrv.Addr), zap.String("grpc_addr", grpcSrv.Addr()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			grpcSrv.Stop(ctx)
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout.Duration)
			defer cancel()
			err := httpSrv.Shutdown(shutdownCtx)
			if shutdownTracer != nil {
				err = errors.Join(err, shutdownTracer(ctx))
			}
			logger.Info("chat-core stopped")
			_ = logger.Sync()
			return err
		},
	})
}
