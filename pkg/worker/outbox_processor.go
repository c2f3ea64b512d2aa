package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/labnode/lims-api/internal/model"
	"github.com/labnode/lims-api/internal/repository"
	"github.com/labnode/lims-api/pkg/logger"
	"github.com/labnode/lims-api/pkg/messaging"
	"github.com/labnode/lims-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// OutboxProcessor drains pending workflow events and publishes them to the
// message broker. Events are written transactionally with the work they
// describe, so publication always trails a committed submission.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	tx      repository.TxRunner
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	tx repository.TxRunner,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}

	return &OutboxProcessor{
		repo:    repo,
		tx:      tx,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if err := p.processEvents(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// processEvents runs one batch inside a single transaction so the row locks
// taken by GetPendingWithLock are held until the batch is marked. Without
// that, a second worker could claim the same rows and double-publish.
func (p *OutboxProcessor) processEvents(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	return p.tx.WithTx(ctx, func(ctx context.Context) error {
		events, err := p.repo.GetPendingWithLock(ctx, p.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}

		for _, event := range events {
			if err := p.processEvent(ctx, event); err != nil {
				p.metrics.OutboxEventsFailed.Inc()
				p.logger.Error(err, "Failed to process event", "event_id", event.ID.String())
				if markErr := p.repo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
					p.logger.Error(markErr, "Failed to mark event as failed", "event_id", event.ID.String())
				}
				continue
			}

			if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
				p.logger.Error(err, "Failed to mark event as processed", "event_id", event.ID.String())
				return err
			}
			p.metrics.OutboxEventsProcessed.Inc()
		}

		return nil
	})
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	return retry(p.config.RetryAttempts, p.config.RetryDelay, func() error {
		return p.broker.Publish(ctx, event.EventType, messaging.Message{
			Type:    event.EventType,
			Payload: event.Payload,
		})
	})
}

// Helper retry function
func retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
