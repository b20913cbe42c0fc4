package service

import (
	"context"
	"fmt"

	"docrag-be/internal/pkg/logger"
	"docrag-be/pkg/events"
	"docrag-be/pkg/nats"
	"docrag-be/pkg/rag/pipeline"
)

type IConsumerService interface {
	// Consume starts the pipeline workers and the audit consumer. It returns
	// once everything is subscribed; work continues until ctx is cancelled.
	Consume(ctx context.Context) error
	// Wait blocks until the workers have stopped after cancellation.
	Wait()
}

type consumerService struct {
	pipeline  *pipeline.Pipeline
	audit     *nats.Subscriber
	durable   string
	statusLog logger.ILogger
	log       logger.ILogger
}

// NewConsumerService hosts the pipeline. audit may be nil when no NATS
// server is configured.
func NewConsumerService(p *pipeline.Pipeline, audit *nats.Subscriber, instanceID string, statusLog, log logger.ILogger) IConsumerService {
	return &consumerService{
		pipeline:  p,
		audit:     audit,
		durable:   "docrag-audit-" + instanceID,
		statusLog: statusLog,
		log:       log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	if err := cs.pipeline.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	if cs.audit != nil {
		if err := cs.audit.Subscribe(ctx, "events.document.>", cs.durable, cs.recordEvent); err != nil {
			return fmt.Errorf("subscribe audit consumer: %w", err)
		}
	}
	return nil
}

// recordEvent writes mirrored pipeline events of every instance to the status log.
func (cs *consumerService) recordEvent(ctx context.Context, event events.Event) error {
	details := map[string]interface{}{
		"type":        event.EventType(),
		"occurred_at": event.Timestamp(),
	}
	for k, v := range event.Payload() {
		details[k] = v
	}

	if event.EventType() == events.DocumentFailed {
		cs.statusLog.Warn("Audit", "Stage failed", details)
		return nil
	}
	cs.statusLog.Debug("Audit", "Pipeline event", details)
	return nil
}

func (cs *consumerService) Wait() {
	cs.pipeline.Wait()
	if cs.audit != nil {
		cs.audit.Close()
	}
}
