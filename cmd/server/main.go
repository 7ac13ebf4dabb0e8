package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/application"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/auth"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/config"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/dispatcher"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/kafka"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/outbox"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/presence"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/reconciler"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/repository"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/repository/memory"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/repository/postgres"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/server"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/store"
	grpctransport "github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/transport/grpc"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/tx"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/websocket"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet.
		observability.InitLogger("chat-service", "info")
		observability.Log.Fatal("invalid configuration", zap.Error(err))
	}

	// Observability
	observability.InitLogger(cfg.ServiceName, cfg.LogLevel)
	log := observability.Log
	defer log.Sync()

	if cfg.TracingEnabled {
		tp, err := observability.InitTracer(cfg.ServiceName, cfg.JaegerURL)
		if err != nil {
			log.Fatal("failed to initialize tracer", zap.Error(err))
		}
		defer tp.Shutdown(context.Background())
	}

	ctx, cancel := setupSignalHandler(log)
	defer cancel()

	instanceID := getOrGenerateInstanceID(cfg.InstanceID)
	ready := map[string]observability.Pinger{}

	// Storage
	repo, transactor, db := initStorage(ctx, cfg, log)
	if db != nil {
		defer db.Close()
		ready["postgres"] = db
	}
	st := store.New(repo, transactor, log)
	st.PageSize = cfg.SweepBatchSize

	// Presence
	reg := presence.NewRegistry()
	var mirror presence.Mirror = presence.NopMirror{}
	if cfg.RedisAddr != "" {
		client := initRedis(ctx, cfg.RedisAddr, log)
		defer client.Close()
		mirror = presence.NewRedisMirror(client, instanceID)
		ready["redis"] = redisPinger{client}
	}

	// Delivery
	disp := dispatcher.New(reg, log)
	svc := application.New(st, disp, log)

	rec := reconciler.New(st, disp, cfg.Schedule(), log)
	go rec.Run(ctx)

	// Outbox relay
	if db != nil && len(cfg.KafkaBrokers) > 0 {
		producer := initKafka(cfg, log)
		defer producer.Close()
		ready["kafka"] = producer

		w := &outbox.Worker{
			DB:         db,
			Publisher:  producer,
			BatchSize:  cfg.OutboxBatchSize,
			PollDelay:  cfg.OutboxPollDelay,
			MaxRetries: cfg.OutboxMaxRetries,
			Log:        log,
		}
		go w.Start(ctx)
	}

	verifier := auth.Verifier{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, trusting user_id query parameter")
	}
	wsHandler := verifier.Middleware(websocket.NewHandler(reg, mirror, svc, log))

	// Servers
	obsSrv := server.New("observability", cfg.ObsHTTPAddr, initObservabilityRouter(cfg, ready), log)
	wsSrv := server.New("main", cfg.HTTPAddr, initMainRouter(cfg, wsHandler), log)
	grpcSrv := grpctransport.New(cfg.ServiceName, log)

	startServers(cfg, obsSrv, wsSrv, grpcSrv, log)
	grpcSrv.SetServing(true)

	log.Info("chat service started",
		zap.String("instance_id", instanceID),
		zap.String("store", cfg.StoreDriver),
	)

	<-ctx.Done()
	performGracefulShutdown(obsSrv, wsSrv, grpcSrv, reg, log)
}

func setupSignalHandler(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, initiating shutdown", zap.String("signal", sig.String()))
		cancel()
	}()
	return ctx, cancel
}

func getOrGenerateInstanceID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func initStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Repository, tx.Transactor, *sql.DB) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using in-memory store, messages are lost on restart")
		return memory.New(), tx.Nop{}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	return &postgres.Repository{DB: db}, &tx.Manager{DB: db}, db
}

func initRedis(ctx context.Context, addr string, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	return client
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func initKafka(cfg *config.Config, log *zap.Logger) *kafka.Producer {
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		log.Fatal("failed to create kafka producer", zap.Error(err))
	}
	return producer
}

func initObservabilityRouter(cfg *config.Config, ready map[string]observability.Pinger) http.Handler {
	mux := chi.NewRouter()
	mux.Use(observability.MetricsMiddleware(cfg.ServiceName))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Get("/health/live", observability.HealthLiveHandler)
	mux.Get("/health/ready", observability.HealthReadyHandler(ready))
	return mux
}

func initMainRouter(cfg *config.Config, wsHandler http.Handler) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(observability.MetricsMiddleware(cfg.ServiceName))

	mux.With(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow)).
		Handle("/ws", otelhttp.NewHandler(wsHandler, "websocket.upgrade"))
	return mux
}

func startServers(cfg *config.Config, obsSrv, wsSrv *server.Server, grpcSrv *grpctransport.Server, log *zap.Logger) {
	go func() {
		if err := obsSrv.Start(); err != nil {
			log.Error("observability server error", zap.Error(err))
		}
	}()
	go func() {
		if err := wsSrv.Start(); err != nil {
			log.Fatal("server error", zap.Error(err))
		}
	}()
	go func() {
		if err := grpcSrv.Start(cfg.GRPCAddr); err != nil {
			log.Fatal("grpc server error", zap.Error(err))
		}
	}()
}

func performGracefulShutdown(obs, ws *server.Server, grpcSrv *grpctransport.Server, reg *presence.Registry, log *zap.Logger) {
	log.Info("shutting down...")
	grpcSrv.SetServing(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ws.Shutdown(ctx); err != nil {
		log.Error("error during main server shutdown", zap.Error(err))
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.Error("error during observability server shutdown", zap.Error(err))
	}
	grpcSrv.Stop()
	reg.CloseAll()
	log.Info("shutdown complete, exiting")
}
