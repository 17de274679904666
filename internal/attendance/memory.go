package attendance

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded Store for dev/testing. Every method runs
// under one lock, which gives the atomicity the Store contract asks for.
type MemoryStore struct {
	mu       sync.Mutex
	classes  map[string]*Class
	deleted  map[string]bool
	sessions map[string]*Session
	order    []string
	records  []Record
	marked   map[[2]string]bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		classes:  map[string]*Class{},
		deleted:  map[string]bool{},
		sessions: map[string]*Session{},
		marked:   map[[2]string]bool{},
	}
}

func (m *MemoryStore) CreateClass(_ context.Context, c Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.classes {
		if !m.deleted[id] && existing.JoinCode == c.JoinCode {
			return ErrJoinCodeTaken
		}
	}
	c.StudentIDs = slices.Clone(c.StudentIDs)
	m.classes[c.ID] = &c
	return nil
}

func (m *MemoryStore) Class(_ context.Context, id string) (Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.liveClass(id)
	if !ok {
		return Class{}, ErrClassNotFound
	}
	return c, nil
}

func (m *MemoryStore) ClassByJoinCode(_ context.Context, code string) (Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.classes {
		if !m.deleted[id] && c.JoinCode == code {
			return copyClass(c), nil
		}
	}
	return Class{}, ErrClassNotFound
}

func (m *MemoryStore) ClassesByFaculty(_ context.Context, facultyID string) ([]Class, error) {
	return m.filterClasses(func(c *Class) bool { return c.FacultyID == facultyID }), nil
}

func (m *MemoryStore) ClassesByStudent(_ context.Context, studentID string) ([]Class, error) {
	return m.filterClasses(func(c *Class) bool { return slices.Contains(c.StudentIDs, studentID) }), nil
}

func (m *MemoryStore) Enroll(_ context.Context, classID, studentID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[classID]
	if !ok || m.deleted[classID] {
		return ErrClassNotFound
	}
	if slices.Contains(c.StudentIDs, studentID) {
		return ErrAlreadyEnrolled
	}
	c.StudentIDs = append(c.StudentIDs, studentID)
	return nil
}

func (m *MemoryStore) DeleteClass(_ context.Context, classID string, at time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.liveClass(classID); !ok {
		return nil, ErrClassNotFound
	}
	var ended *Session
	if s := m.activeLocked(classID); s != nil {
		markEnded(s, at)
		cp := *s
		ended = &cp
	}
	m.deleted[classID] = true
	return ended, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.liveClass(s.ClassID); !ok {
		return ErrClassNotFound
	}
	if m.activeLocked(s.ClassID) != nil {
		return ErrActiveSession
	}
	m.sessions[s.ID] = &s
	m.order = append(m.order, s.ID)
	return nil
}

func (m *MemoryStore) Session(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *s, nil
}

func (m *MemoryStore) ActiveSession(_ context.Context, classID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.activeLocked(classID); s != nil {
		return *s, nil
	}
	return Session{}, ErrNoActiveSession
}

func (m *MemoryStore) EndSession(_ context.Context, id string, at time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if !s.Active() {
		return Session{}, ErrSessionEnded
	}
	markEnded(s, at)
	return *s, nil
}

func (m *MemoryStore) SessionsByClass(_ context.Context, classID string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for i := len(m.order) - 1; i >= 0; i-- {
		if s := m.sessions[m.order[i]]; s.ClassID == classID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *MemoryStore) SessionsStartedBetween(_ context.Context, classID string, from, to time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, id := range m.order {
		s := m.sessions[id]
		if s.ClassID == classID && !s.StartedAt.Before(from) && s.StartedAt.Before(to) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *MemoryStore) InsertRecord(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{r.SessionID, r.StudentID}
	if m.marked[key] {
		return ErrDuplicateAttendance
	}
	m.marked[key] = true
	m.records = append(m.records, r)
	return nil
}

func (m *MemoryStore) HasRecord(_ context.Context, sessionID, studentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marked[[2]string{sessionID, studentID}], nil
}

func (m *MemoryStore) RecordsBySession(_ context.Context, sessionID string) ([]Record, error) {
	return m.filterRecords(func(r Record) bool { return r.SessionID == sessionID }), nil
}

func (m *MemoryStore) RecordsByStudent(_ context.Context, studentID string) ([]Record, error) {
	return m.filterRecords(func(r Record) bool { return r.StudentID == studentID }), nil
}

func (m *MemoryStore) liveClass(id string) (Class, bool) {
	c, ok := m.classes[id]
	if !ok || m.deleted[id] {
		return Class{}, false
	}
	return copyClass(c), true
}

func (m *MemoryStore) activeLocked(classID string) *Session {
	for _, s := range m.sessions {
		if s.ClassID == classID && s.Active() {
			return s
		}
	}
	return nil
}

func (m *MemoryStore) filterClasses(keep func(*Class) bool) []Class {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Class
	for id, c := range m.classes {
		if !m.deleted[id] && keep(c) {
			out = append(out, copyClass(c))
		}
	}
	slices.SortFunc(out, func(a, b Class) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.Name, b.Name), strings.Compare(a.ID, b.ID))
	})
	return out
}

func (m *MemoryStore) filterRecords(keep func(Record) bool) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func copyClass(c *Class) Class {
	cp := *c
	cp.StudentIDs = slices.Clone(c.StudentIDs)
	return cp
}

func markEnded(s *Session, at time.Time) {
	s.Status = StatusEnded
	s.EndedAt = &at
}
