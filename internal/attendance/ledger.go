package attendance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"classroll/internal/apperr"
	"classroll/internal/auth"
)

// SessionRecords returns the ledger rows of a session of an owned class.
func (s *Service) SessionRecords(ctx context.Context, p auth.Principal, sessionID string) ([]Record, error) {
	sess, _, err := s.ownedSession(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.RecordsBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// SessionAttendance returns the present/absent summary of a session of an
// owned class. Summaries of ended sessions are served from the cache when
// one is configured.
func (s *Service) SessionAttendance(ctx context.Context, p auth.Principal, sessionID string) (Summary, error) {
	sess, _, err := s.ownedSession(ctx, p, sessionID)
	if err != nil {
		return Summary{}, err
	}
	if s.cache != nil && !sess.Active() {
		sum, ok, err := s.cache.Get(ctx, sess.ID)
		if err != nil {
			s.log.Warn("read cached summary", zap.String("session_id", sess.ID), zap.Error(err))
		}
		if ok {
			return sum, nil
		}
	}
	sum, err := s.summarizeSession(ctx, sess)
	if err != nil {
		return Summary{}, err
	}
	if s.cache != nil && !sess.Active() {
		if err := s.cache.Set(ctx, sess.ID, sum); err != nil {
			s.log.Warn("cache summary", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	return sum, nil
}

// Summarize computes a session summary without an ownership check. It is
// used by background workers that act on committed events.
func (s *Service) Summarize(ctx context.Context, sessionID string) (Summary, error) {
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	return s.summarizeSession(ctx, sess)
}

func (s *Service) summarizeSession(ctx context.Context, sess Session) (Summary, error) {
	roster, err := s.roster(ctx, sess.ClassID)
	if err != nil {
		return Summary{}, err
	}
	recs, err := s.store.RecordsBySession(ctx, sess.ID)
	if err != nil {
		return Summary{}, err
	}
	present := make(map[string]bool, len(recs))
	for _, r := range recs {
		if r.Status == Present {
			present[r.StudentID] = true
		}
	}
	sum := summarize(roster, present)
	sum.Sessions = 1
	return sum, nil
}

// roster is empty for deleted classes. Summarize reaches it for the
// session.ended event that DeleteClass emits.
func (s *Service) roster(ctx context.Context, classID string) ([]string, error) {
	c, err := s.store.Class(ctx, classID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.StudentIDs, nil
}

// ClassAttendanceOn summarizes all sessions of an owned class that started on
// the given UTC calendar day. A student counts as present if any of those
// sessions recorded them.
func (s *Service) ClassAttendanceOn(ctx context.Context, p auth.Principal, classID string, day time.Time) (Summary, error) {
	c, err := s.ownedClass(ctx, p, classID)
	if err != nil {
		return Summary{}, err
	}
	day = day.UTC()
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	sessions, err := s.store.SessionsStartedBetween(ctx, c.ID, from, from.AddDate(0, 0, 1))
	if err != nil {
		return Summary{}, err
	}
	present := map[string]bool{}
	for _, sess := range sessions {
		recs, err := s.store.RecordsBySession(ctx, sess.ID)
		if err != nil {
			return Summary{}, err
		}
		for _, r := range recs {
			if r.Status == Present {
				present[r.StudentID] = true
			}
		}
	}
	sum := summarize(c.StudentIDs, present)
	sum.Sessions = len(sessions)
	return sum, nil
}

// StudentHistory returns every ledger row of the calling student.
func (s *Service) StudentHistory(ctx context.Context, p auth.Principal) ([]Record, error) {
	if err := auth.Require(p, auth.RoleStudent); err != nil {
		return nil, err
	}
	recs, err := s.store.RecordsByStudent(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}
