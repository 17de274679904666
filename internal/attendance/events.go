package attendance

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"classroll/internal/metrics"
	"classroll/internal/queue"
)

// Event types published after state changes commit.
const (
	EventSessionStarted   = "session.started"
	EventSessionEnded     = "session.ended"
	EventAttendanceMarked = "attendance.marked"
)

// Event is the body of a published message.
type Event struct {
	Type      string        `json:"type"`
	ClassID   string        `json:"class_id"`
	SessionID string        `json:"session_id"`
	StudentID string        `json:"student_id,omitempty"`
	Method    Method        `json:"method,omitempty"`
	Status    SessionStatus `json:"status,omitempty"`
	At        time.Time     `json:"at"`
}

// Publisher hands events to a transport. queue.Queue satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// DecodeEvent parses a message produced by the engine.
func DecodeEvent(msg queue.Message) (Event, error) {
	var evt Event
	err := json.Unmarshal(msg.Body, &evt)
	if evt.Type == "" {
		evt.Type = msg.Type
	}
	return evt, err
}

// publish never fails the caller: the state change has already committed.
func (s *Service) publish(ctx context.Context, evt Event) {
	if s.events == nil {
		return
	}
	body, err := json.Marshal(evt)
	if err != nil {
		s.log.Error("encode event", zap.String("type", evt.Type), zap.Error(err))
		return
	}
	if err := s.events.Publish(ctx, queue.Message{Type: evt.Type, Body: body}); err != nil {
		metrics.EventsPublished.WithLabelValues(evt.Type, "error").Inc()
		s.log.Warn("publish event failed", zap.String("type", evt.Type), zap.String("session_id", evt.SessionID), zap.Error(err))
		return
	}
	metrics.EventsPublished.WithLabelValues(evt.Type, "ok").Inc()
}
