package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classroll/internal/apperr"
	"classroll/internal/auth"
	"classroll/internal/metrics"
	"classroll/internal/validate"
)

// SummaryCache stores summaries of ended sessions.
type SummaryCache interface {
	Get(ctx context.Context, sessionID string) (Summary, bool, error)
	Set(ctx context.Context, sessionID string, sum Summary) error
	Delete(ctx context.Context, sessionID string) error
}

// Service is the class registry, session engine and ledger. All session and
// record mutation goes through it.
type Service struct {
	store      Store
	log        *zap.Logger
	now        func() time.Time
	codes      CodeGenerator
	events     Publisher
	cache      SummaryCache
	radiusM    float64
	strategies map[Method]Strategy
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithCodeGenerator overrides the join/attendance code source.
func WithCodeGenerator(gen CodeGenerator) Option { return func(s *Service) { s.codes = gen } }

// WithPublisher sends domain events to p.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

// WithSummaryCache caches ended-session summaries in c.
func WithSummaryCache(c SummaryCache) Option { return func(s *Service) { s.cache = c } }

// WithLocationRadius sets the default LOCATION radius in meters.
func WithLocationRadius(m float64) Option {
	return func(s *Service) {
		if m > 0 {
			s.radiusM = m
		}
	}
}

// WithStrategy replaces the verification strategy for its method.
func WithStrategy(st Strategy) Option { return func(s *Service) { s.strategies[st.Method()] = st } }

// NewService creates a service backed by a store.
func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:   store,
		log:     logger,
		now:     time.Now,
		codes:   RandomCode,
		radiusM: DefaultRadiusM,
		strategies: map[Method]Strategy{
			MethodCode:     CodeStrategy{},
			MethodLocation: LocationStrategy{Distance: Haversine},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC() }

type newClass struct {
	Name string `json:"name" validate:"notblank,max=200"`
}

// CreateClass creates a class owned by the calling faculty member with a
// join code unique among live classes.
func (s *Service) CreateClass(ctx context.Context, p auth.Principal, name string) (Class, error) {
	if err := auth.Require(p, auth.RoleFaculty); err != nil {
		return Class{}, err
	}
	name = strings.TrimSpace(name)
	if err := validate.Struct(newClass{Name: name}); err != nil {
		return Class{}, err
	}

	for attempt := 0; attempt < maxJoinCodeAttempts; attempt++ {
		code, err := s.codes(joinCodeLen)
		if err != nil {
			return Class{}, apperr.Wrap(apperr.KindInternal, "generate join code", err)
		}
		c := Class{
			ID:        uuid.NewString(),
			Name:      name,
			JoinCode:  code,
			FacultyID: p.ID,
			CreatedAt: s.clock(),
		}
		err = s.store.CreateClass(ctx, c)
		if errors.Is(err, ErrJoinCodeTaken) {
			s.log.Debug("join code collision", zap.String("code", code), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return Class{}, err
		}
		s.log.Info("class created", zap.String("class_id", c.ID), zap.String("faculty_id", p.ID))
		return c, nil
	}
	return Class{}, apperr.Newf(apperr.KindInternal, "could not allocate a unique join code after %d attempts", maxJoinCodeAttempts)
}

// JoinClass enrolls the calling student in the class using joinCode.
func (s *Service) JoinClass(ctx context.Context, p auth.Principal, joinCode string) (Class, error) {
	if err := auth.Require(p, auth.RoleStudent); err != nil {
		return Class{}, err
	}
	code := strings.ToUpper(strings.TrimSpace(joinCode))
	if code == "" {
		return Class{}, apperr.Validation("join code is required")
	}
	c, err := s.store.ClassByJoinCode(ctx, code)
	if err != nil {
		return Class{}, err
	}
	if c.HasStudent(p.ID) {
		return Class{}, ErrAlreadyEnrolled
	}
	if err := s.store.Enroll(ctx, c.ID, p.ID, s.clock()); err != nil {
		return Class{}, err
	}
	s.log.Info("student joined class", zap.String("class_id", c.ID), zap.String("student_id", p.ID))
	s.dropCachedSummaries(ctx, c.ID)
	return c.ForStudent(), nil
}

// dropCachedSummaries evicts the summaries of a class's ended sessions. Their
// absentees are derived from the current roster, so they go stale on join.
func (s *Service) dropCachedSummaries(ctx context.Context, classID string) {
	if s.cache == nil {
		return
	}
	sessions, err := s.store.SessionsByClass(ctx, classID)
	if err != nil {
		s.log.Warn("list sessions for cache eviction", zap.String("class_id", classID), zap.Error(err))
		return
	}
	for _, sess := range sessions {
		if sess.Active() {
			continue
		}
		if err := s.cache.Delete(ctx, sess.ID); err != nil {
			s.log.Warn("evict cached summary", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
}

// ListClasses returns the classes the caller owns (faculty) or attends (student).
func (s *Service) ListClasses(ctx context.Context, p auth.Principal) ([]Class, error) {
	switch p.Role {
	case auth.RoleFaculty:
		return s.ListClassesForFaculty(ctx, p)
	case auth.RoleStudent:
		return s.ListClassesForStudent(ctx, p)
	}
	return nil, apperr.Forbidden("unknown role")
}

func (s *Service) ListClassesForFaculty(ctx context.Context, p auth.Principal) ([]Class, error) {
	if err := auth.Require(p, auth.RoleFaculty); err != nil {
		return nil, err
	}
	return s.store.ClassesByFaculty(ctx, p.ID)
}

func (s *Service) ListClassesForStudent(ctx context.Context, p auth.Principal) ([]Class, error) {
	if err := auth.Require(p, auth.RoleStudent); err != nil {
		return nil, err
	}
	classes, err := s.store.ClassesByStudent(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	for i := range classes {
		classes[i] = classes[i].ForStudent()
	}
	return classes, nil
}

// GetClass returns the class to its owner, or a roster-less view to an enrolled student.
func (s *Service) GetClass(ctx context.Context, p auth.Principal, classID string) (Class, error) {
	c, err := s.store.Class(ctx, classID)
	if err != nil {
		return Class{}, err
	}
	switch {
	case p.Role == auth.RoleFaculty && c.FacultyID == p.ID:
		return c, nil
	case p.Role == auth.RoleStudent && c.HasStudent(p.ID):
		return c.ForStudent(), nil
	}
	return Class{}, ErrNotMember
}

// Roster returns the enrolled student ids of an owned class.
func (s *Service) Roster(ctx context.Context, p auth.Principal, classID string) ([]string, error) {
	c, err := s.ownedClass(ctx, p, classID)
	if err != nil {
		return nil, err
	}
	if c.StudentIDs == nil {
		return []string{}, nil
	}
	return c.StudentIDs, nil
}

// DeleteClass removes an owned class. An active session is ended first, in
// the same storage transaction.
func (s *Service) DeleteClass(ctx context.Context, p auth.Principal, classID string) error {
	if _, err := s.ownedClass(ctx, p, classID); err != nil {
		return err
	}
	ended, err := s.store.DeleteClass(ctx, classID, s.clock())
	if err != nil {
		return err
	}
	s.log.Info("class deleted", zap.String("class_id", classID), zap.Bool("ended_active_session", ended != nil))
	if ended != nil {
		s.sessionEnded(ctx, *ended, "class_deleted")
	}
	return nil
}

// StartSession opens a session for an owned class.
func (s *Service) StartSession(ctx context.Context, p auth.Principal, classID string, method Method, cfg SessionConfig) (Session, error) {
	if _, err := s.ownedClass(ctx, p, classID); err != nil {
		return Session{}, err
	}
	sess := Session{
		ID:        uuid.NewString(),
		ClassID:   classID,
		Method:    method,
		Status:    StatusActive,
		StartedAt: s.clock(),
	}
	switch method {
	case MethodCode:
		code, err := s.codes(sessionCodeLen)
		if err != nil {
			return Session{}, apperr.Wrap(apperr.KindInternal, "generate attendance code", err)
		}
		sess.Code = code
	case MethodLocation:
		if cfg.Anchor == nil {
			return Session{}, apperr.Validation("location sessions require an anchor location")
		}
		if err := cfg.Anchor.Validate(); err != nil {
			return Session{}, err
		}
		if cfg.RadiusM < 0 {
			return Session{}, apperr.Validation("radius must be positive")
		}
		anchor := *cfg.Anchor
		sess.Anchor = &anchor
		sess.RadiusM = cfg.RadiusM
		if sess.RadiusM == 0 {
			sess.RadiusM = s.radiusM
		}
	case MethodManual:
	default:
		return Session{}, apperr.Newf(apperr.KindValidation, "unknown verification method %q", method)
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return Session{}, err
	}
	metrics.SessionsStarted.WithLabelValues(string(method)).Inc()
	s.log.Info("attendance session started",
		zap.String("session_id", sess.ID),
		zap.String("class_id", classID),
		zap.String("method", string(method)))
	s.publish(ctx, Event{Type: EventSessionStarted, ClassID: classID, SessionID: sess.ID, Method: method, Status: StatusActive, At: sess.StartedAt})
	return sess, nil
}

// EndSession ends an active session of an owned class. Ending an already
// ended session fails with a NO_ACTIVE_SESSION error.
func (s *Service) EndSession(ctx context.Context, p auth.Principal, sessionID string) (Session, error) {
	sess, _, err := s.ownedSession(ctx, p, sessionID)
	if err != nil {
		return Session{}, err
	}
	if !sess.Active() {
		return Session{}, ErrSessionEnded
	}
	return s.end(ctx, sess.ID)
}

// EndActiveSession ends whichever session is active for an owned class.
func (s *Service) EndActiveSession(ctx context.Context, p auth.Principal, classID string) (Session, error) {
	if _, err := s.ownedClass(ctx, p, classID); err != nil {
		return Session{}, err
	}
	sess, err := s.store.ActiveSession(ctx, classID)
	if err != nil {
		return Session{}, err
	}
	return s.end(ctx, sess.ID)
}

func (s *Service) end(ctx context.Context, sessionID string) (Session, error) {
	sess, err := s.store.EndSession(ctx, sessionID, s.clock())
	if err != nil {
		return Session{}, err
	}
	s.sessionEnded(ctx, sess, "faculty")
	return sess, nil
}

func (s *Service) sessionEnded(ctx context.Context, sess Session, reason string) {
	metrics.SessionsEnded.WithLabelValues(reason).Inc()
	s.log.Info("attendance session ended",
		zap.String("session_id", sess.ID),
		zap.String("class_id", sess.ClassID),
		zap.String("reason", reason))
	at := s.clock()
	if sess.EndedAt != nil {
		at = *sess.EndedAt
	}
	s.publish(ctx, Event{Type: EventSessionEnded, ClassID: sess.ClassID, SessionID: sess.ID, Method: sess.Method, Status: StatusEnded, At: at})
}

// GetActiveSession returns the active session of a class to its owner or an
// enrolled student. Students do not see the attendance code.
func (s *Service) GetActiveSession(ctx context.Context, p auth.Principal, classID string) (Session, error) {
	c, err := s.GetClass(ctx, p, classID)
	if err != nil {
		return Session{}, err
	}
	sess, err := s.store.ActiveSession(ctx, c.ID)
	if err != nil {
		return Session{}, err
	}
	if p.Role != auth.RoleFaculty {
		return sess.ForStudent(), nil
	}
	return sess, nil
}

// GetSession returns a session of an owned class.
func (s *Service) GetSession(ctx context.Context, p auth.Principal, sessionID string) (Session, error) {
	sess, _, err := s.ownedSession(ctx, p, sessionID)
	return sess, err
}

// ListSessions returns the session history of an owned class, newest first.
func (s *Service) ListSessions(ctx context.Context, p auth.Principal, classID string) ([]Session, error) {
	if _, err := s.ownedClass(ctx, p, classID); err != nil {
		return nil, err
	}
	sessions, err := s.store.SessionsByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}

func (s *Service) ownedClass(ctx context.Context, p auth.Principal, classID string) (Class, error) {
	if err := auth.Require(p, auth.RoleFaculty); err != nil {
		return Class{}, err
	}
	c, err := s.store.Class(ctx, classID)
	if err != nil {
		return Class{}, err
	}
	if c.FacultyID != p.ID {
		return Class{}, ErrNotOwner
	}
	return c, nil
}

func (s *Service) ownedSession(ctx context.Context, p auth.Principal, sessionID string) (Session, Class, error) {
	if err := auth.Require(p, auth.RoleFaculty); err != nil {
		return Session{}, Class{}, err
	}
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return Session{}, Class{}, err
	}
	c, err := s.ownedClass(ctx, p, sess.ClassID)
	if err != nil {
		return Session{}, Class{}, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return sess, c, nil
}
