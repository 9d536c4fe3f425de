package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-scoped-orderflow/internal/aws"
	"github.com/imrishuroy/go-scoped-orderflow/internal/config"
	"github.com/imrishuroy/go-scoped-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-scoped-orderflow/internal/logging"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load("")
	if err != nil {
		bootLogger := logging.New("scoped-orderflow-worker", "info", "json")
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.ServiceName+"-worker", cfg.LogLevel, cfg.LogFormat)

	clients, err := aws.NewAWSClients(ctx, aws.Settings{
		Region:           cfg.AWS.Region,
		EndpointOverride: cfg.AWS.EndpointOverride,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init aws clients")
	}

	p := NewProcessor(
		idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Tables.IdempotencyTTL),
		aws.NewMetricsEmitter(clients.CloudWatch, cfg.Telemetry.MetricsNamespace),
		logger,
	)

	// If RUN_LOCAL=true, process a single simulated SQS message and exit.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"event_id":"local-event-1","type":"order.created","order_id":"local-order-1","country":"India","status":"draft","total":"0"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local", Body: body}},
		}
		if err := p.Handle(ctx, event); err != nil {
			logger.Fatal().Err(err).Msg("local handler error")
		}
		return
	}

	lambda.Start(p.Handle)
}
