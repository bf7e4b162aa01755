package service

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Saaiiikrishna/msd-th-sub005/app/bus"
)

// OutboxPublisher drains the outbox table to the message bus. Rows are only
// marked processed after the broker confirms, so a crash between publish and
// mark re-sends the event; consumers must tolerate duplicates.
type OutboxPublisher struct {
	ledger    ledgerStore
	publisher bus.Publisher
	logger    logrus.FieldLogger

	pollInterval time.Duration
	batchSize    int32
}

func NewOutboxPublisher(ledger ledgerStore, publisher bus.Publisher, pollInterval time.Duration, batchSize int32, logger logrus.FieldLogger) *OutboxPublisher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxPublisher{
		ledger:       ledger,
		publisher:    publisher,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

// Run polls until ctx is cancelled. Batch errors are logged and the loop
// keeps going; an unreachable broker must not take the process down.
func (p *OutboxPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if err := p.PublishBatch(ctx); err != nil {
			p.logger.WithError(err).Error("Outbox batch publish failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PublishBatch publishes one batch of unprocessed events in insertion order.
// A failed publish leaves its row unprocessed for the next poll; later rows
// in the batch are still attempted and the first error is returned.
func (p *OutboxPublisher) PublishBatch(ctx context.Context) error {
	view := p.ledger.View()
	events, err := view.Outbox.ListUnprocessed(ctx, p.batchSize)
	if err != nil {
		return err
	}

	var firstErr error
	for _, event := range events {
		messageID := strconv.FormatUint(event.ID, 10)
		err := p.publisher.Publish(ctx, messageID, event.EventType, event.AggregateID, []byte(event.PayloadJSON))
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"outbox_id":  event.ID,
				"event_type": event.EventType,
			}).Warn("Outbox publish failed, will retry")
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		if err := view.Outbox.MarkProcessed(ctx, event.ID, time.Now().UTC()); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}
	return firstErr
}
