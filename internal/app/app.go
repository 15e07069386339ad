package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/alimikegami/point-of-sales/checkout-service/config"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/controller"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/backend"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/cache/redis"
	circuitbreaker "github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/circuit-breaker"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/database/postgres"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/mailer"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/message-queue/kafka"
	paymentgateway "github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/payment-gateway"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/tracing"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/lifecycle"
	localmiddleware "github.com/alimikegami/point-of-sales/checkout-service/internal/middleware"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/payment"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/repository"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/service"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/session"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/httpclient"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/response"
	"github.com/go-co-op/gocron/v2"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	oteltrace "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

type closer func() error

// App owns the service and every resource it was built from. Resources are
// released in reverse order of acquisition.
type App struct {
	conf      *config.Config
	echo      *echo.Echo
	metrics   *echo.Echo
	grpc      *grpc.Server
	health    *health.Server
	scheduler gocron.Scheduler
	lifecycle *lifecycle.Manager
	service   service.CheckoutService
	ledger    kafka.MessageReader
	closers   []closer
}

// InitLogger configures the global logger and makes it the fallback for
// log.Ctx on contexts that carry none.
func InitLogger(level string) {
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func Create(ctx context.Context, conf *config.Config) (*App, error) {
	a := &App{conf: conf}

	traceProvider, err := tracing.InitTracing(conf.TracingConfig.CollectorHost)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { return traceProvider.Shutdown(context.Background()) })

	repo, err := a.paymentRepository(conf.PostgreSQLConfig)
	if err != nil {
		a.Close()
		return nil, err
	}

	cache, err := a.balanceCache(ctx, conf.RedisConfig)
	if err != nil {
		a.Close()
		return nil, err
	}

	client := httpclient.CreateClient(conf.BackendConfig.Timeout, circuitbreaker.CreateCircuitBreaker(tracing.ServiceName))
	backendClient := backend.CreateBackendClient(conf.BackendConfig, client)

	midtrans := paymentgateway.CreateMidtransGateway(conf.MidtransConfig)
	var gateway payment.Gateway
	if conf.MidtransConfig.ServerKey != "" {
		gateway = midtrans
	} else {
		log.Warn().Str("component", "app").Msg("MIDTRANS_SERVER_KEY not set, payments will be refused")
	}

	a.lifecycle = lifecycle.CreateManager(backendClient, conf.CheckoutConfig.CleanupTimeout)

	a.service = service.CreateCheckoutService(service.Dependencies{
		Ledger:        backend.CreateCachedPointLedger(backendClient, cache),
		Coupons:       backendClient,
		Drafts:        backendClient,
		Payments:      payment.CreateOrchestrator(gateway, backendClient, backendClient, repo),
		Lifecycle:     a.lifecycle,
		Sessions:      session.CreateStore(),
		Notifications: midtrans,
		Events:        a.eventPublisher(conf.KafkaConfig),
		Mailer:        mailer.CreateMailer(conf.SMTPConfig),
		Balances:      cache,
	}, conf.CheckoutConfig)

	if conf.KafkaConfig.BrokerAddress != "" && conf.KafkaConfig.LedgerTopic != "" {
		reader := kafka.CreateKafkaReader(conf.KafkaConfig)
		a.ledger = reader
		a.closers = append(a.closers, reader.Close)
	}

	a.echo = a.httpServer(traceProvider.Tracer(tracing.ServiceName))
	a.metrics = echo.New()
	a.metrics.HideBanner = true
	a.metrics.GET("/metrics", echoprometheus.NewHandler())

	a.grpc = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	a.health = health.NewServer()
	healthpb.RegisterHealthServer(a.grpc, a.health)

	a.scheduler, err = gocron.NewScheduler()
	if err != nil {
		a.Close()
		return nil, err
	}

	_, err = a.scheduler.NewJob(
		gocron.DurationJob(conf.CheckoutConfig.SweepInterval),
		gocron.NewTask(func() {
			a.service.SweepExpiredSessions(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) paymentRepository(conf config.PostgreSQLConfig) (repository.PaymentRepository, error) {
	if conf.DBHost == "" {
		log.Warn().Str("component", "app").Msg("DB_HOST not set, payment attempts are kept in memory")
		return repository.CreateMemoryPaymentRepository(), nil
	}

	db, err := postgres.GetDBInstance(conf)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	return repository.CreatePaymentRepository(db), nil
}

type balanceCache interface {
	backend.BalanceCache
	service.BalanceInvalidator
}

func (a *App) balanceCache(ctx context.Context, conf config.RedisConfig) (balanceCache, error) {
	if conf.Addr == "" {
		return redis.NoopBalanceCache{}, nil
	}

	cache, err := redis.CreateBalanceCache(ctx, conf)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, cache.Close)

	return cache, nil
}

type discardPublisher struct{}

func (discardPublisher) Publish(ctx context.Context, eventType string, key string, data interface{}) error {
	log.Ctx(ctx).Debug().Str("component", "discardPublisher").Str("event_type", eventType).Str("key", key).Msg("")
	return nil
}

func (a *App) eventPublisher(conf config.KafkaConfig) service.EventPublisher {
	if conf.BrokerAddress == "" {
		return discardPublisher{}
	}

	writer := kafka.CreateKafkaWriter(conf)
	a.closers = append(a.closers, writer.Close)

	return kafka.CreatePublisher(writer)
}

func (a *App) httpServer(tracer oteltrace.Tracer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracer.Start(c.Request().Context(), fmt.Sprintf("[%s] %s", c.Request().Method, c.Path()))
			defer span.End()

			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	})
	// Unprefixed so the metrics aggregate across services.
	e.Use(echoprometheus.NewMiddleware(""))
	e.Use(localmiddleware.Logger)

	g := e.Group("/api/v1")
	g.GET("/ping", func(c echo.Context) error {
		return response.WriteSuccessResponse(c, "pong", nil)
	})

	controller.CreateCheckoutController(g, a.service, localmiddleware.IsLoggedIn(a.conf.JWTSecret))

	return e
}

// Run serves until ctx is cancelled or a server fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	serve := func(name string, fn func() error) {
		go func() {
			if err := fn(); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, grpc.ErrServerStopped) {
				log.Error().Err(err).Str("component", "Run").Str("server", name).Msg("")
				errCh <- err
			}
		}()
	}

	serve("http", func() error { return a.echo.Start(fmt.Sprintf(":%s", a.conf.ServicePort)) })
	serve("metrics", func() error { return a.metrics.Start(fmt.Sprintf(":%s", a.conf.MetricsPort)) })
	if a.conf.GRPCPort != "" {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", a.conf.GRPCPort))
		if err != nil {
			a.shutdown()
			return err
		}
		serve("grpc", func() error { return a.grpc.Serve(lis) })
	}
	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if a.ledger != nil {
		go func() {
			if err := kafka.ConsumeLedgerEvents(ctx, a.ledger, a.service.InvalidatePointBalance); err != nil {
				log.Error().Err(err).Str("component", "Run").Msg("ledger consumer stopped")
			}
		}()
	}

	a.scheduler.Start()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	a.shutdown()
	return err
}

func (a *App) shutdown() {
	a.health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Str("component", "shutdown").Msg("http server")
	}
	if err := a.metrics.Shutdown(ctx); err != nil {
		log.Error().Err(err).Str("component", "shutdown").Msg("metrics server")
	}
	a.grpc.GracefulStop()

	if err := a.scheduler.Shutdown(); err != nil {
		log.Error().Err(err).Str("component", "shutdown").Msg("scheduler")
	}

	// In-flight cleanups and confirmation mails finish before their
	// transports are closed.
	a.lifecycle.Wait()
	a.service.Wait()

	a.Close()
}

// Close releases every resource acquired by Create.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error().Err(err).Str("component", "Close").Msg("")
		}
	}
	a.closers = nil
}
