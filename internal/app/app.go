package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AaryaPoriya/QuantumCoders/internal/auth"
	"github.com/AaryaPoriya/QuantumCoders/internal/cart"
	"github.com/AaryaPoriya/QuantumCoders/internal/config"
	"github.com/AaryaPoriya/QuantumCoders/internal/event"
	handler "github.com/AaryaPoriya/QuantumCoders/internal/handler/http"
	"github.com/AaryaPoriya/QuantumCoders/internal/ingest"
	pgrepo "github.com/AaryaPoriya/QuantumCoders/internal/repository/postgres"
	redisrepo "github.com/AaryaPoriya/QuantumCoders/internal/repository/redis"
	"github.com/AaryaPoriya/QuantumCoders/internal/routing"
	"github.com/AaryaPoriya/QuantumCoders/internal/session"
	"github.com/AaryaPoriya/QuantumCoders/pkg/database"
	"github.com/AaryaPoriya/QuantumCoders/pkg/health"
	"github.com/AaryaPoriya/QuantumCoders/pkg/httpclient"
	pkgkafka "github.com/AaryaPoriya/QuantumCoders/pkg/kafka"
	"github.com/AaryaPoriya/QuantumCoders/pkg/logger"
	"github.com/AaryaPoriya/QuantumCoders/pkg/tracing"
)

// App assembles the smartcart service: storage, the cart engine, the OTP
// authenticator, the route planner, the scan consumer and the HTTP surface.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool     *pgxpool.Pool
	redis    *goredis.Client
	producer *pkgkafka.Producer
	consumer *pkgkafka.Consumer
	server   *http.Server

	shutdownTracer func(context.Context) error
}

// New wires the service together. The store layout is loaded and validated
// here: a disconnected floor graph is a deployment error, not something to
// discover on the first route request.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.New(cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)

	shutdownTracer, err := tracing.InitTracer(ctx, tracing.DefaultConfig(cfg.ServiceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pgCfg := cfg.Postgres.PoolConfig()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.Redis.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	// Repositories.
	users := pgrepo.NewUserRepository(pool)
	catalog := pgrepo.NewCatalogRepository(pool)
	devices := pgrepo.NewDeviceRepository(pool)
	commandLog := pgrepo.NewCommandLogRepository(pool)
	layout := pgrepo.NewStoreLayoutRepository(pool)
	sessions := redisrepo.NewSessionRepository(redisClient)
	challenges := redisrepo.NewChallengeRepository(redisClient)
	carts := redisrepo.NewCartRepository(redisClient, cfg.Cart.TTL)
	bindings := redisrepo.NewBindingRepository(redisClient, cfg.Cart.TTL)

	// OTP delivery.
	var sender session.OTPSender
	if cfg.SMS.GatewayURL != "" {
		client := httpclient.New(httpclient.DefaultConfig())
		cb := httpclient.NewCircuitBreakerClient(client, httpclient.DefaultCircuitBreakerConfig("sms-gateway"), log)
		sender = session.NewSMSGatewaySender(cb, cfg.SMS.GatewayURL, cfg.SMS.Sender, log)
	} else {
		log.Warn("SMS_GATEWAY_URL not set, passcodes will be logged instead of sent")
		sender = session.NewLogSender(log)
	}

	authenticator := session.NewAuthenticator(
		sessions, challenges, users, sender,
		auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL),
		log,
		session.Config{
			OTPTTL:          cfg.Auth.OTPTTL,
			ProfileWindow:   cfg.Auth.ProfileWindow,
			SessionTTL:      cfg.Auth.SessionTTL,
			OTPRequestRate:  rate.Every(cfg.Auth.OTPRequestEvery),
			OTPRequestBurst: cfg.Auth.OTPRequestBurst,
		},
	)

	var (
		producer *pkgkafka.Producer
		events   cart.EventPublisher
	)
	if cfg.Kafka.Enabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.Kafka.Brokers), log)
		events = event.NewProducer(producer, log)
	}

	machine := cart.NewStateMachine(carts, commandLog, authenticator, events, log, cfg.Cart.ApplyTimeout)
	ingester := ingest.NewIngester(devices, bindings, catalog, machine, log)

	var consumer *pkgkafka.Consumer
	if cfg.Kafka.Enabled {
		consumer = pkgkafka.NewConsumer(
			pkgkafka.DefaultConsumerConfig(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.ScanTopic),
			ingest.ScanHandler(ingester, log),
			log,
		)
	}

	graph, err := loadGraph(ctx, layout)
	if err != nil {
		return nil, err
	}
	planner := routing.NewPlanner(graph, log)

	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	if cfg.Kafka.Enabled {
		brokers := cfg.Kafka.Brokers
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, brokers)
		})
	}

	router := handler.NewRouter(authenticator, machine, ingester, planner, graph, healthHandler, log)

	return &App{
		cfg:      cfg,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
		consumer: consumer,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTracer: shutdownTracer,
	}, nil
}

func loadGraph(ctx context.Context, layout *pgrepo.StoreLayoutRepository) (*routing.Graph, error) {
	nodes, err := layout.Nodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load store nodes: %w", err)
	}
	edges, err := layout.Edges(ctx)
	if err != nil {
		return nil, fmt.Errorf("load store edges: %w", err)
	}
	graph, err := routing.NewGraph(nodes, edges)
	if err != nil {
		return nil, fmt.Errorf("validate store layout: %w", err)
	}
	return graph, nil
}

// Run serves HTTP and consumes device scans until ctx is cancelled, then
// shuts everything down in order.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.consumer != nil {
		g.Go(func() error {
			if err := a.consumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("scan consumer: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http shutdown", slog.String("error", err.Error()))
		}
		return nil
	})

	err := g.Wait()
	a.close()
	return err
}

func (a *App) close() {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("close consumer", slog.String("error", err.Error()))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("close producer", slog.String("error", err.Error()))
		}
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Error("close redis", slog.String("error", err.Error()))
	}
	a.pool.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTracer(shutdownCtx); err != nil {
		a.logger.Error("shutdown tracer", slog.String("error", err.Error()))
	}
	a.logger.Info("shutdown complete")
}
