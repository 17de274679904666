package attendance

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classroll/internal/apperr"
	"classroll/internal/auth"
	"classroll/internal/metrics"
)

// Claim is the evidence a student submits with a presence claim.
type Claim struct {
	Code     string
	Location *Location
}

// Strategy checks a claim against a session's method-specific settings.
type Strategy interface {
	Method() Method
	Verify(sess Session, claim Claim) error
}

// CodeStrategy accepts a claim whose code equals the session code exactly.
type CodeStrategy struct{}

func (CodeStrategy) Method() Method { return MethodCode }

func (CodeStrategy) Verify(sess Session, claim Claim) error {
	if claim.Code == "" {
		return apperr.Validation("code is required")
	}
	if sess.Code == "" || claim.Code != sess.Code {
		return ErrCodeMismatch
	}
	return nil
}

// LocationStrategy accepts a claim within the session radius of its anchor.
// The boundary is inclusive.
type LocationStrategy struct {
	Distance func(a, b Location) float64
}

func (LocationStrategy) Method() Method { return MethodLocation }

func (l LocationStrategy) Verify(sess Session, claim Claim) error {
	if claim.Location == nil {
		return apperr.Validation("location is required")
	}
	if err := claim.Location.Validate(); err != nil {
		return err
	}
	if sess.Anchor == nil {
		return apperr.New(apperr.KindInternal, "location session has no anchor")
	}
	dist := l.Distance
	if dist == nil {
		dist = Haversine
	}
	radius := sess.RadiusM
	if radius <= 0 {
		radius = DefaultRadiusM
	}
	d := dist(*sess.Anchor, *claim.Location)
	metrics.ClaimDistance.Observe(d)
	if d > radius {
		return errTooFarAway(d, radius)
	}
	return nil
}

// MarkWithCode records the calling student present if code matches the
// session's attendance code.
func (s *Service) MarkWithCode(ctx context.Context, p auth.Principal, sessionID, code string) (Record, error) {
	return s.claim(ctx, p, sessionID, MethodCode, Claim{Code: strings.TrimSpace(code)})
}

// MarkWithLocation records the calling student present if loc lies within
// the session radius of the anchor.
func (s *Service) MarkWithLocation(ctx context.Context, p auth.Principal, sessionID string, loc Location) (Record, error) {
	return s.claim(ctx, p, sessionID, MethodLocation, Claim{Location: &loc})
}

func (s *Service) claim(ctx context.Context, p auth.Principal, sessionID string, method Method, claim Claim) (Record, error) {
	rec, err := s.verifyClaim(ctx, p, sessionID, method, claim)
	outcome := metrics.OutcomeAccepted
	if err != nil {
		outcome = strings.ToLower(string(apperr.KindOf(err)))
		s.log.Debug("attendance claim rejected",
			zap.String("session_id", sessionID),
			zap.String("student_id", p.ID),
			zap.String("method", string(method)),
			zap.Error(err))
	}
	metrics.Verifications.WithLabelValues(string(method), outcome).Inc()
	return rec, err
}

func (s *Service) verifyClaim(ctx context.Context, p auth.Principal, sessionID string, method Method, claim Claim) (Record, error) {
	if err := auth.Require(p, auth.RoleStudent); err != nil {
		return Record{}, err
	}
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if !sess.Active() {
		return Record{}, ErrSessionNotActive
	}
	if sess.Method != method {
		return Record{}, ErrWrongMethod
	}
	c, err := s.store.Class(ctx, sess.ClassID)
	if err != nil {
		return Record{}, err
	}
	if !c.HasStudent(p.ID) {
		return Record{}, ErrNotEnrolled
	}
	strategy, ok := s.strategies[method]
	if !ok {
		return Record{}, ErrWrongMethod
	}
	if err := strategy.Verify(sess, claim); err != nil {
		return Record{}, err
	}
	return s.record(ctx, sess, Record{
		StudentID: p.ID,
		Method:    method,
		Location:  claim.Location,
	})
}

// MarkManual records the given students present in a MANUAL session of an
// owned class. Every id must be enrolled or nothing is written. Students
// already recorded are skipped. The session does not need to be active.
func (s *Service) MarkManual(ctx context.Context, p auth.Principal, sessionID string, studentIDs []string) ([]Record, error) {
	sess, c, err := s.ownedSession(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Method != MethodManual {
		return nil, ErrWrongMethod
	}

	ids := make([]string, 0, len(studentIDs))
	for _, id := range studentIDs {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, apperr.Validation("student_ids must not be empty")
	}
	for _, id := range ids {
		if !c.HasStudent(id) {
			return nil, apperr.Wrap(apperr.KindNotEnrolled, "student "+id+" is not enrolled in this class", ErrNotEnrolled)
		}
	}

	marked := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.record(ctx, sess, Record{StudentID: id, Method: MethodManual})
		if apperr.Is(err, apperr.KindDuplicateAttendance) {
			continue
		}
		if err != nil {
			return marked, err
		}
		marked = append(marked, rec)
	}
	metrics.Verifications.WithLabelValues(string(MethodManual), metrics.OutcomeAccepted).Add(float64(len(marked)))
	s.log.Info("manual attendance marked",
		zap.String("session_id", sess.ID),
		zap.Int("requested", len(ids)),
		zap.Int("marked", len(marked)))
	return marked, nil
}

// record appends a PRESENT record to the ledger. The store's uniqueness
// constraint settles concurrent duplicates.
func (s *Service) record(ctx context.Context, sess Session, rec Record) (Record, error) {
	exists, err := s.store.HasRecord(ctx, sess.ID, rec.StudentID)
	if err != nil {
		return Record{}, err
	}
	if exists {
		return Record{}, ErrDuplicateAttendance
	}
	rec.ID = uuid.NewString()
	rec.SessionID = sess.ID
	rec.Status = Present
	rec.MarkedAt = s.clock()
	if err := s.store.InsertRecord(ctx, rec); err != nil {
		return Record{}, err
	}
	s.log.Info("attendance marked",
		zap.String("session_id", sess.ID),
		zap.String("student_id", rec.StudentID),
		zap.String("method", string(rec.Method)))
	s.publish(ctx, Event{
		Type:      EventAttendanceMarked,
		ClassID:   sess.ClassID,
		SessionID: sess.ID,
		StudentID: rec.StudentID,
		Method:    rec.Method,
		Status:    sess.Status,
		At:        rec.MarkedAt,
	})
	if s.cache != nil && !sess.Active() {
		if err := s.cache.Delete(ctx, sess.ID); err != nil {
			s.log.Warn("drop cached summary", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	return rec, nil
}
