package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/imrishuroy/go-scoped-orderflow/internal/auth"
	"github.com/imrishuroy/go-scoped-orderflow/internal/aws"
	"github.com/imrishuroy/go-scoped-orderflow/internal/config"
	"github.com/imrishuroy/go-scoped-orderflow/internal/handlers"
	"github.com/imrishuroy/go-scoped-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-scoped-orderflow/internal/lifecycle"
	"github.com/imrishuroy/go-scoped-orderflow/internal/logging"
	"github.com/imrishuroy/go-scoped-orderflow/internal/orders"
	"github.com/imrishuroy/go-scoped-orderflow/internal/payments"
	"github.com/imrishuroy/go-scoped-orderflow/internal/telemetry"
	"github.com/imrishuroy/go-scoped-orderflow/internal/validation"
)

type routerDeps struct {
	serviceName string
	log         zerolog.Logger
	metrics     *telemetry.Metrics
	verifier    *auth.Verifier
	limiter     *handlers.RateLimiter
	handlers    handlers.HandlerConfig
}

func setupRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		otelgin.Middleware(d.serviceName),
		logging.Middleware(d.log),
		d.metrics.Middleware(),
	)

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	api := r.Group("/", auth.Authenticate(d.verifier), d.limiter.Middleware())
	handlers.Register(api, d.handlers)

	return r
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load("")
	if err != nil {
		bootLogger := logging.New("scoped-orderflow", "info", "json")
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	if err := cfg.RequireAuth(); err != nil {
		logger.Fatal().Err(err).Msg("auth is not configured")
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracer")
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown")
		}
	}()

	clients, err := aws.NewAWSClients(ctx, aws.Settings{
		Region:           cfg.AWS.Region,
		EndpointOverride: cfg.AWS.EndpointOverride,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init aws clients")
	}

	orderStore := orders.NewStore(clients.DynamoDB, cfg.Tables.Orders).
		WithCountryIndex(cfg.Tables.CountryIndex).
		WithIdempotencyTable(cfg.Tables.Idempotency)
	directory := payments.NewDirectory(payments.NewStore(clients.DynamoDB, cfg.Tables.PaymentMethods), logger)

	svc := lifecycle.NewService(orderStore, directory, logger).
		WithIdempotency(idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Tables.IdempotencyTTL))
	if cfg.Queue.OrdersURL != "" {
		svc.WithPublisher(aws.NewPublisher(clients.SQS, cfg.Queue.OrdersURL))
	} else {
		logger.Warn().Msg("ORDERS_QUEUE_URL not set, order events are not published")
	}

	metrics := telemetry.NewMetrics(cfg.Telemetry.MetricsNamespace)
	limiter := handlers.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	r := setupRouter(routerDeps{
		serviceName: cfg.ServiceName,
		log:         logger,
		metrics:     metrics,
		verifier:    auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		limiter:     limiter,
		handlers: handlers.HandlerConfig{
			Service:    svc,
			Payments:   directory,
			Validator:  validation.New(),
			Rejections: metrics,
		},
	})

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.RunLocal {
		runLocal(r, cfg.HTTPAddr, limiter, logger)
		return
	}

	go limiter.Run(ctx)

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

func runLocal(r *gin.Engine, addr string, limiter *handlers.RateLimiter, logger zerolog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go limiter.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", addr).Msg("running local server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to run local server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
