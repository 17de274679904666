// Package worker reacts to attendance events after they commit.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"classroll/internal/attendance"
	"classroll/internal/metrics"
	"classroll/internal/queue"
)

// Summarizer computes a session summary without an ownership check.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID string) (attendance.Summary, error)
}

// Processor keeps the summary cache in step with the ledger.
type Processor struct {
	summaries Summarizer
	cache     attendance.SummaryCache
	log       *zap.Logger
	now       func() time.Time
}

// New creates a processor. cache may be nil, in which case events are only logged.
func New(summaries Summarizer, cache attendance.SummaryCache, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{summaries: summaries, cache: cache, log: logger, now: time.Now}
}

// Run handles messages until the channel closes.
func (p *Processor) Run(ctx context.Context, messages <-chan queue.Message) {
	p.log.Info("worker started, waiting for messages")
	for msg := range messages {
		if err := p.Handle(ctx, msg); err != nil {
			p.log.Warn("event handling failed", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	p.log.Info("worker stopped")
}

// Handle processes one message.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	evt, err := attendance.DecodeEvent(msg)
	if err != nil {
		return err
	}
	if !msg.PublishedAt.IsZero() {
		metrics.EventLag.WithLabelValues(evt.Type).Observe(p.now().Sub(msg.PublishedAt).Seconds())
	}
	log := p.log.With(zap.String("type", evt.Type), zap.String("session_id", evt.SessionID), zap.String("event_id", msg.ID))

	switch evt.Type {
	case attendance.EventSessionStarted:
		log.Info("session started", zap.String("class_id", evt.ClassID), zap.String("method", string(evt.Method)))
	case attendance.EventSessionEnded:
		if p.cache == nil {
			return nil
		}
		sum, err := p.summaries.Summarize(ctx, evt.SessionID)
		if err != nil {
			return err
		}
		if err := p.cache.Set(ctx, evt.SessionID, sum); err != nil {
			return err
		}
		log.Info("summary cached", zap.Int("present", sum.PresentCount), zap.Int("absent", sum.AbsentCount))
	case attendance.EventAttendanceMarked:
		if p.cache == nil || evt.Status != attendance.StatusEnded {
			return nil
		}
		return p.cache.Delete(ctx, evt.SessionID)
	default:
		log.Debug("ignoring unknown event")
	}
	return nil
}
