package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics emits pipeline counters to CloudWatch.
type Metrics struct {
	CloudWatch CloudWatchAPI
	Namespace  string
}

// NewMetrics returns a Metrics publisher for namespace.
func NewMetrics(client CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{CloudWatch: client, Namespace: namespace}
}

// Count records value for the named counter.
func (m *Metrics) Count(ctx context.Context, name string, value int) error {
	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.Namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: sdkaws.String(name),
			Value:      sdkaws.Float64(float64(value)),
			Unit:       cwtypes.StandardUnitCount,
		}},
	})
	if err != nil {
		return fmt.Errorf("put metric %s: %w", name, err)
	}
	return nil
}
