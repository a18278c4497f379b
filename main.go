package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"studygroup-chat/internal/config"
	"studygroup-chat/internal/db"
	"studygroup-chat/internal/handlers"
	"studygroup-chat/internal/middleware"
	"studygroup-chat/internal/models"
	"studygroup-chat/internal/observability"
	"studygroup-chat/internal/rabbitmq"
	"studygroup-chat/internal/repositories"
	"studygroup-chat/internal/restclient"
	"studygroup-chat/internal/session"
	"studygroup-chat/internal/telemetry"
	"studygroup-chat/internal/ws"
)

const serviceName = "studygroup-chat"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, serviceName, cfg.AppEnv)
	if err != nil {
		logger.Warnw("tracing disabled", "error", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	logger.Infow("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "reason", rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, serviceName, cfg.AppEnv, logger)

	var (
		sessionRepo  repositories.SessionRepository  = repositories.NewMemorySessionRepo()
		snapshotRepo repositories.SnapshotRepository = repositories.NewMemorySnapshotRepo()
	)
	if cfg.DBDSN != "" {
		database, err := db.Connect(cfg.DBDSN, logger)
		if err != nil {
			logger.Fatalw("failed to connect to db", "error", err)
		}
		defer database.Close()
		sessionRepo = repositories.NewSessionRepo(database)
		snapshotRepo = repositories.NewSnapshotRepo(database)
	}

	api := restclient.New(cfg.APIBaseURL, nil, logger)
	dialer := ws.NewStompDialer(cfg.BrokerURL, cfg.BrokerHost, cfg.StompHeartbeat, logger)
	sessionCfg := session.Config{
		ReconnectDelay:  cfg.ReconnectDelay,
		OutboxLimit:     cfg.OutboxLimit,
		ReconcileWindow: cfg.ReconcileWindow,
		TypingIdle:      cfg.TypingIdle,
		PeerTypingTTL:   cfg.PeerTypingTTL,
	}
	holder := session.NewHolder(func(ctx context.Context, identity models.Identity) (*session.Session, error) {
		return session.Start(ctx, identity, dialer, sessionCfg, audit, logger)
	})
	restoreSession(ctx, holder, sessionRepo, cfg.BootstrapIdentity(), logger)

	sessionHandler := handlers.NewSessionHandler(holder, sessionRepo, logger)
	groupHandler := handlers.NewGroupHandler(api, snapshotRepo, logger)
	chatHandler := handlers.NewChatHandler(api, logger)
	streamHandler := handlers.NewStreamHandler(logger)

	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName), observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/session", sessionHandler.Get)
	router.POST("/session", sessionHandler.Login)
	router.DELETE("/session", sessionHandler.Logout)

	requireSession := middleware.RequireSession(holder)
	router.GET("/groups", requireSession, groupHandler.ListGroups)
	router.POST("/groups/:group_id/subscription", requireSession, groupHandler.Subscribe)
	router.DELETE("/groups/:group_id/subscription", requireSession, groupHandler.Unsubscribe)
	router.GET("/groups/:group_id/messages", requireSession, groupHandler.Messages)
	router.POST("/groups/:group_id/messages", requireSession, chatHandler.PostMessage)
	router.POST("/groups/:group_id/files", requireSession, chatHandler.UploadFile)
	router.POST("/groups/:group_id/polls", requireSession, chatHandler.CreatePoll)
	router.POST("/groups/:group_id/polls/:poll_id/votes", requireSession, chatHandler.VotePoll)
	router.POST("/groups/:group_id/reactions", requireSession, chatHandler.React)
	router.POST("/groups/:group_id/read", requireSession, chatHandler.MarkRead)
	router.POST("/groups/:group_id/typing", requireSession, chatHandler.Typing)
	router.DELETE("/groups/:group_id/typing", requireSession, chatHandler.StopTyping)
	router.GET("/groups/:group_id/presence", requireSession, chatHandler.Presence)
	router.GET("/groups/:group_id/stream", requireSession, streamHandler.Handle)

	handlers.RegisterDebugRoutes(router, audit, holder, cfg.DebugRoutes)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		logger.Infow("listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("http shutdown failed", "error", err)
	}
	if _, err := holder.Logout(shutdownCtx); err != nil {
		logger.Warnw("session close failed", "error", err)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warnw("tracing shutdown failed", "error", err)
		}
	}
}

func newLogger(env string) *zap.SugaredLogger {
	var (
		base *zap.Logger
		err  error
	)
	if env == "dev" {
		base, err = zap.NewDevelopment()
	} else {
		base, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	return base.Sugar().Named(serviceName)
}

// restoreSession signs in with the environment identity, or with the one
// persisted by the previous run.
func restoreSession(ctx context.Context, holder *session.Holder, repo repositories.SessionRepository, bootstrap models.Identity, logger *zap.SugaredLogger) {
	identity := bootstrap
	if identity.Authenticated() {
		if err := repo.Save(ctx, identity); err != nil {
			logger.Warnw("persist identity failed", "error", err)
		}
	} else {
		stored, err := repo.Load(ctx)
		if err != nil {
			if !errors.Is(err, repositories.ErrSessionNotFound) {
				logger.Warnw("load identity failed", "error", err)
			}
			return
		}
		identity = stored
	}

	if _, err := holder.Login(ctx, identity); err != nil {
		logger.Warnw("session restore failed", "user_id", identity.UserID, "error", err)
	}
}
