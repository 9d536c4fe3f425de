package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-scoped-orderflow/internal/events"
)

// Metric names published per lifecycle event.
const (
	MetricOrdersCreated    = "OrdersCreated"
	MetricOrdersPlaced     = "OrdersPlaced"
	MetricOrdersCancelled  = "OrdersCancelled"
	MetricPlacedOrderValue = "PlacedOrderValue"
)

// MetricsEmitter writes business metrics for order events to CloudWatch.
type MetricsEmitter struct {
	CloudWatch CloudWatchAPI
	Namespace  string
}

// NewMetricsEmitter returns an emitter that publishes under namespace.
func NewMetricsEmitter(cw CloudWatchAPI, namespace string) *MetricsEmitter {
	return &MetricsEmitter{CloudWatch: cw, Namespace: namespace}
}

// RecordOrderEvent publishes a count for the event type, dimensioned by
// country. Placements also publish the order total.
func (m *MetricsEmitter) RecordOrderEvent(ctx context.Context, ev events.OrderEvent) error {
	var name string
	switch ev.Type {
	case events.TypeOrderCreated:
		name = MetricOrdersCreated
	case events.TypeOrderPlaced:
		name = MetricOrdersPlaced
	case events.TypeOrderCancelled:
		name = MetricOrdersCancelled
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}

	ts := ev.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}
	dims := []cwtypes.Dimension{{Name: awsString("Country"), Value: awsString(ev.Country)}}

	data := []cwtypes.MetricDatum{{
		MetricName: awsString(name),
		Dimensions: dims,
		Timestamp:  &ts,
		Unit:       cwtypes.StandardUnitCount,
		Value:      float64Ptr(1),
	}}
	if ev.Type == events.TypeOrderPlaced {
		total, _ := ev.Total.Float64()
		data = append(data, cwtypes.MetricDatum{
			MetricName: awsString(MetricPlacedOrderValue),
			Dimensions: dims,
			Timestamp:  &ts,
			Unit:       cwtypes.StandardUnitNone,
			Value:      &total,
		})
	}

	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &m.Namespace,
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

func float64Ptr(v float64) *float64 { return &v }
