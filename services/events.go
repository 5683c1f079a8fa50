package services

import (
	"context"
	"encoding/json"

	aws_pkg "storefront-service/pkg/aws"

	"go.uber.org/zap"
)

const EventOrderRecorded = "order_recorded"

// eventPublisher fans order events out to SNS when a topic is configured.
type eventPublisher struct {
	sns      aws_pkg.SNSPublisher
	topicArn string
	logger   *zap.Logger
}

// publish marshals an event and publishes it to SNS (non-fatal on error).
func (p eventPublisher) publish(ctx context.Context, event interface{}) {
	if p.sns == nil || p.topicArn == "" {
		p.logger.Debug("SNS not configured, skipping event publish")
		return
	}
	b, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal SNS event", zap.Error(err))
		return
	}
	if err := p.sns.Publish(ctx, p.topicArn, b); err != nil {
		p.logger.Error("Failed to publish SNS event", zap.Error(err))
		return
	}
	p.logger.Info("Published SNS event", zap.String("topic", p.topicArn))
}
