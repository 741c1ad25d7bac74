package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/banter-collective/banter/internal/content"
	"github.com/banter-collective/banter/internal/vote"
)

// Applier is the mutation surface the consumer drives. Implemented by
// vote.Aggregator.
type Applier interface {
	ApplyVote(ctx context.Context, voterID, itemID string, value int) (content.VoteAggregate, error)
	RetractVote(ctx context.Context, voterID, itemID string) (content.VoteAggregate, error)
}

// Consumer decodes vote event frames and applies them. Malformed
// frames and business-rule rejections are counted and skipped; only
// infrastructure failures propagate, forcing a reconnect.
type Consumer struct {
	applier Applier
	logger  *slog.Logger
	metrics *Metrics
}

// NewConsumer creates a consumer over the given applier. Metrics may
// be nil to disable instrumentation.
func NewConsumer(applier Applier, logger *slog.Logger, metrics *Metrics) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{applier: applier, logger: logger, metrics: metrics}
}

// HandleMessage is the MessageHandler fed to the stream client.
func (c *Consumer) HandleMessage(messageType int, payload []byte) error {
	start := time.Now()

	ev, err := DecodeEvent(payload)
	if err != nil {
		c.logger.Warn("dropping malformed vote event",
			slog.String("error", err.Error()))
		if c.metrics != nil {
			c.metrics.IncDecodeErrors()
		}
		return nil
	}

	ctx := context.Background()
	switch ev.Kind {
	case KindVote:
		_, err = c.applier.ApplyVote(ctx, ev.VoterID, ev.ItemID, ev.Value)
	case KindRetract:
		_, err = c.applier.RetractVote(ctx, ev.VoterID, ev.ItemID)
	}

	if err != nil {
		if rejected(err) {
			// The event is well-formed but not applicable; a replay
			// would fail identically, so log and move on.
			c.logger.Warn("vote event rejected",
				slog.String("event_id", ev.EventID),
				slog.String("kind", ev.Kind),
				slog.String("item_id", ev.ItemID),
				slog.String("error", err.Error()))
			if c.metrics != nil {
				c.metrics.IncEventsRejected()
			}
			return nil
		}
		if c.metrics != nil {
			c.metrics.IncEventsFailed()
		}
		return err
	}

	if c.metrics != nil {
		c.metrics.IncEventsApplied()
		c.metrics.ObserveApplyLatency(time.Since(start).Seconds())
	}
	return nil
}

// rejected reports whether the error is a deterministic business-rule
// rejection rather than a transient failure.
func rejected(err error) bool {
	return errors.Is(err, content.ErrNotFound) ||
		errors.Is(err, vote.ErrSelfVote) ||
		errors.Is(err, vote.ErrInvalidValue)
}
