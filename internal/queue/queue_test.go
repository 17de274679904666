package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestInMemoryPublishConsume(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "session.started", Body: []byte(`{"session_id":"s1"}`)}))
	require.NoError(t, q.Publish(ctx, Message{Type: "session.ended", Body: []byte(`{"session_id":"s1"}`)}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	first := <-msgs
	second := <-msgs
	assert.Equal(t, "session.started", first.Type)
	assert.Equal(t, "session.ended", second.Type)

	cancel()
	select {
	case _, ok := <-msgs:
		assert.False(t, ok, "channel should close after cancel")
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := q.Publish(ctx, Message{Type: "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublishStampsMessages(t *testing.T) {
	q := NewInMemory(2)
	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, Message{Type: "session.started"}))
	fixed := Message{ID: "evt-1", Type: "session.ended", PublishedAt: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)}
	require.NoError(t, q.Publish(ctx, fixed))

	first := <-q.ch
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.PublishedAt.IsZero())
	assert.Equal(t, fixed, <-q.ch, "publisher-set fields are kept")
}

func TestEnvelopeRoundTrip(t *testing.T) {
	msg := Message{
		ID:          "evt-1",
		Type:        "attendance.marked",
		PublishedAt: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC),
		Body:        []byte(`{"note":"a|b"}`),
	}
	raw, err := encode(msg)
	require.NoError(t, err)
	got, err := decode(raw)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.Type, got.Type)
	assert.True(t, msg.PublishedAt.Equal(got.PublishedAt))
	assert.JSONEq(t, string(msg.Body), string(got.Body))

	_, err = decode("session.ended|{}")
	assert.Error(t, err)

	_, err = encode(Message{Type: "x", Body: []byte("not json")})
	assert.Error(t, err, "bodies must be JSON")
}
