package attendance

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroll/internal/apperr"
)

type mapCache struct {
	mu      sync.Mutex
	entries map[string]Summary
	gets    int
}

func newMapCache() *mapCache { return &mapCache{entries: map[string]Summary{}} }

func (c *mapCache) Get(_ context.Context, id string) (Summary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	s, ok := c.entries[id]
	return s, ok, nil
}

func (c *mapCache) Set(_ context.Context, id string, s Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = s
	return nil
}

func (c *mapCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *mapCache) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

func TestSessionAttendanceSummary(t *testing.T) {
	f := newFixture(t, WithCodeGenerator(sequence("CLS001", "AB12CD")))
	ctx := context.Background()
	c := f.classWith(t, alice, bob, carol)
	sess := startCode(t, f, c)

	_, err := f.svc.MarkWithCode(ctx, carol, sess.ID, "AB12CD")
	require.NoError(t, err)
	_, err = f.svc.MarkWithCode(ctx, alice, sess.ID, "AB12CD")
	require.NoError(t, err)

	sum, err := f.svc.SessionAttendance(ctx, faculty, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.PresentCount)
	assert.Equal(t, 1, sum.AbsentCount)
	assert.Equal(t, []string{alice.ID, carol.ID}, sum.Presentees)
	assert.Equal(t, []string{bob.ID}, sum.Absentees)

	_, err = f.svc.SessionAttendance(ctx, other, sess.ID)
	assertKind(t, err, apperr.KindForbidden)
}

func TestSessionAttendanceEmptyRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.classWith(t)
	sess, err := f.svc.StartSession(ctx, faculty, c.ID, MethodManual, SessionConfig{})
	require.NoError(t, err)

	sum, err := f.svc.SessionAttendance(ctx, faculty, sess.ID)
	require.NoError(t, err)
	assert.Zero(t, sum.PresentCount)
	assert.NotNil(t, sum.Presentees)
	assert.NotNil(t, sum.Absentees)
}

func TestSessionAttendanceCachesEndedSessions(t *testing.T) {
	cache := newMapCache()
	f := newFixture(t, WithSummaryCache(cache))
	ctx := context.Background()
	c := f.classWith(t, alice, bob)
	sess, err := f.svc.StartSession(ctx, faculty, c.ID, MethodManual, SessionConfig{})
	require.NoError(t, err)

	_, err = f.svc.SessionAttendance(ctx, faculty, sess.ID)
	require.NoError(t, err)
	assert.False(t, cache.has(sess.ID), "active sessions are not cached")

	_, err = f.svc.EndSession(ctx, faculty, sess.ID)
	require.NoError(t, err)
	sum, err := f.svc.SessionAttendance(ctx, faculty, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.AbsentCount)
	assert.True(t, cache.has(sess.ID))

	// A late manual mark drops the stale entry.
	_, err = f.svc.MarkManual(ctx, faculty, sess.ID, []string{alice.ID})
	require.NoError(t, err)
	assert.False(t, cache.has(sess.ID))

	sum, err = f.svc.SessionAttendance(ctx, faculty, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.ID}, sum.Presentees)
}

func TestSessionAttendanceSameWithAndWithoutCache(t *testing.T) {
	for _, tt := range []struct {
		name  string
		cache *mapCache
	}{
		{name: "plain"},
		{name: "cached", cache: newMapCache()},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.cache != nil {
				opts = append(opts, WithSummaryCache(tt.cache))
			}
			f := newFixture(t, opts...)
			ctx := context.Background()
			c := f.classWith(t, alice)
			sess, err := f.svc.StartSession(ctx, faculty, c.ID, MethodManual, SessionConfig{})
			require.NoError(t, err)
			_, err = f.svc.EndSession(ctx, faculty, sess.ID)
			require.NoError(t, err)

			sum, err := f.svc.SessionAttendance(ctx, faculty, sess.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{alice.ID}, sum.Absentees)

			_, err = f.svc.JoinClass(ctx, bob, c.JoinCode)
			require.NoError(t, err)
			if tt.cache != nil {
				assert.False(t, tt.cache.has(sess.ID), "join must evict ended-session summaries")
			}

			sum, err = f.svc.SessionAttendance(ctx, faculty, sess.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{alice.ID, bob.ID}, sum.Absentees)
			assert.Equal(t, 2, sum.AbsentCount)
		})
	}
}

func TestClassAttendanceOn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.classWith(t, alice, bob, carol)

	morning, err := f.svc.StartSession(ctx, faculty, c.ID, MethodManual, SessionConfig{})
	require.NoError(t, err)
	_, err = f.svc.MarkManual(ctx, faculty, morning.ID, []string{alice.ID})
	require.NoError(t, err)
	_, err = f.svc.EndSession(ctx, faculty, morning.ID)
	require.NoError(t, err)

	f.advance(4 * time.Hour)
	afternoon, err := f.svc.StartSession(ctx, faculty, c.ID, MethodManual, SessionConfig{})
	require.NoError(t, err)
	_, err = f.svc.MarkManual(ctx, faculty, afternoon.ID, []string{alice.ID, bob.ID})
	require.NoError(t, err)
	_, err = f.svc.EndSession(ctx, faculty, afternoon.ID)
	require.NoError(t, err)

	f.advance(24 * time.Hour)
	nextDay, err := f.svc.StartSession(ctx, faculty, c.ID, MethodManual, SessionConfig{})
	require.NoError(t, err)
	_, err = f.svc.MarkManual(ctx, faculty, nextDay.ID, []string{carol.ID})
	require.NoError(t, err)

	sum, err := f.svc.ClassAttendanceOn(ctx, faculty, c.ID, epoch)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Sessions)
	assert.Equal(t, []string{alice.ID, bob.ID}, sum.Presentees)
	assert.Equal(t, []string{carol.ID}, sum.Absentees)

	empty, err := f.svc.ClassAttendanceOn(ctx, faculty, c.ID, epoch.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Zero(t, empty.Sessions)
	assert.Equal(t, 3, empty.AbsentCount)

	_, err = f.svc.ClassAttendanceOn(ctx, other, c.ID, epoch)
	assertKind(t, err, apperr.KindForbidden)
}

func TestStudentHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.classWith(t, alice, bob)
	sess, err := f.svc.StartSession(ctx, faculty, c.ID, MethodManual, SessionConfig{})
	require.NoError(t, err)
	_, err = f.svc.MarkManual(ctx, faculty, sess.ID, []string{alice.ID})
	require.NoError(t, err)

	history, err := f.svc.StudentHistory(ctx, alice)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, sess.ID, history[0].SessionID)

	history, err = f.svc.StudentHistory(ctx, bob)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)

	_, err = f.svc.StudentHistory(ctx, faculty)
	assertKind(t, err, apperr.KindForbidden)
}

func TestSummarizeWithoutOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.classWith(t, alice)
	sess, err := f.svc.StartSession(ctx, faculty, c.ID, MethodManual, SessionConfig{})
	require.NoError(t, err)

	sum, err := f.svc.Summarize(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.ID}, sum.Absentees)

	_, err = f.svc.Summarize(ctx, "missing")
	assertKind(t, err, apperr.KindNotFound)
}

func TestHaversine(t *testing.T) {
	cases := []struct {
		name string
		a, b Location
		want float64
	}{
		{"same point", Location{12.97, 77.59}, Location{12.97, 77.59}, 0},
		{"one degree of latitude", Location{0, 0}, Location{1, 0}, 111195},
		{"paris to london", Location{48.8566, 2.3522}, Location{51.5074, -0.1278}, 343500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Haversine(tc.a, tc.b), tc.want*0.005+0.01)
			assert.InDelta(t, Haversine(tc.a, tc.b), Haversine(tc.b, tc.a), 1e-6)
		})
	}
}

func TestLocationValidate(t *testing.T) {
	tests := []struct {
		name string
		loc  Location
		ok   bool
	}{
		{name: "origin", loc: Location{}, ok: true},
		{name: "poles and antimeridian", loc: Location{Latitude: -90, Longitude: 180}, ok: true},
		{name: "fractional", loc: Location{Latitude: 12.971599, Longitude: 77.594566}, ok: true},
		{name: "latitude too high", loc: Location{Latitude: 90.5}},
		{name: "longitude too low", loc: Location{Longitude: -180.01}},
		{name: "not a number", loc: Location{Latitude: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loc.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assertKind(t, err, apperr.KindValidation)
		})
	}
}
