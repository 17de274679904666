package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"classroll/internal/attendance"
	"classroll/internal/auth"
	"classroll/internal/metrics"
	"classroll/internal/queue"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string]attendance.Summary
}

func (c *memCache) Get(_ context.Context, id string) (attendance.Summary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[id]
	return s, ok, nil
}

func (c *memCache) Set(_ context.Context, id string, s attendance.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = s
	return nil
}

func (c *memCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *memCache) get(id string) (attendance.Summary, bool) {
	s, ok, _ := c.Get(context.Background(), id)
	return s, ok
}

type stubSummarizer struct{ err error }

func (s stubSummarizer) Summarize(context.Context, string) (attendance.Summary, error) {
	return attendance.Summary{PresentCount: 3, AbsentCount: 1}, s.err
}

func message(t *testing.T, evt attendance.Event) queue.Message {
	t.Helper()
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	return queue.Message{Type: evt.Type, Body: body}
}

func TestHandleSessionEndedWarmsCache(t *testing.T) {
	cache := &memCache{entries: map[string]attendance.Summary{}}
	p := New(stubSummarizer{}, cache, zap.NewNop())

	err := p.Handle(context.Background(), message(t, attendance.Event{Type: attendance.EventSessionEnded, SessionID: "s1"}))
	require.NoError(t, err)
	sum, ok := cache.get("s1")
	require.True(t, ok)
	assert.Equal(t, 3, sum.PresentCount)

	err = p.Handle(context.Background(), message(t, attendance.Event{Type: attendance.EventAttendanceMarked, SessionID: "s1", Status: attendance.StatusActive}))
	require.NoError(t, err)
	_, ok = cache.get("s1")
	assert.True(t, ok, "marks during an active session leave the cache alone")

	err = p.Handle(context.Background(), message(t, attendance.Event{Type: attendance.EventAttendanceMarked, SessionID: "s1", Status: attendance.StatusEnded}))
	require.NoError(t, err)
	_, ok = cache.get("s1")
	assert.False(t, ok)
}

func TestHandleErrors(t *testing.T) {
	cache := &memCache{entries: map[string]attendance.Summary{}}
	p := New(stubSummarizer{err: errors.New("db down")}, cache, zap.NewNop())

	err := p.Handle(context.Background(), message(t, attendance.Event{Type: attendance.EventSessionEnded, SessionID: "s1"}))
	assert.Error(t, err)

	err = p.Handle(context.Background(), queue.Message{Type: "x", Body: []byte("not json")})
	assert.Error(t, err)

	assert.NoError(t, New(stubSummarizer{}, nil, nil).Handle(context.Background(),
		message(t, attendance.Event{Type: attendance.EventSessionEnded, SessionID: "s1"})))
}

func TestHandleObservesEventLag(t *testing.T) {
	published := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	p := New(stubSummarizer{}, nil, zap.NewNop())
	p.now = func() time.Time { return published.Add(2 * time.Second) }

	msg := message(t, attendance.Event{Type: attendance.EventSessionStarted, SessionID: "s1"})
	msg.ID, msg.PublishedAt = "evt-1", published
	require.NoError(t, p.Handle(context.Background(), msg))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(metrics.EventLag, "classroll_event_lag_seconds"), 1)
}

func TestRunEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := queue.NewInMemory(16)
	cache := &memCache{entries: map[string]attendance.Summary{}}
	svc := attendance.NewService(attendance.NewMemoryStore(), zap.NewNop(), attendance.WithPublisher(q))
	p := New(svc, cache, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, msgs)
	}()

	faculty := auth.Principal{ID: "fac", Role: auth.RoleFaculty}
	student := auth.Principal{ID: "stu", Role: auth.RoleStudent}
	c, err := svc.CreateClass(ctx, faculty, "Operating Systems")
	require.NoError(t, err)
	_, err = svc.JoinClass(ctx, student, c.JoinCode)
	require.NoError(t, err)
	sess, err := svc.StartSession(ctx, faculty, c.ID, attendance.MethodManual, attendance.SessionConfig{})
	require.NoError(t, err)
	_, err = svc.EndSession(ctx, faculty, sess.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := cache.get(sess.ID)
		return ok
	}, time.Second, 10*time.Millisecond)
	sum, _ := cache.get(sess.ID)
	assert.Equal(t, []string{student.ID}, sum.Absentees)

	cancel()
	<-done
}
