package attendance

import (
	"slices"
	"strings"
	"time"
)

// Method is the policy that governs how a session accepts presence claims.
type Method string

const (
	MethodCode     Method = "CODE"
	MethodLocation Method = "LOCATION"
	MethodManual   Method = "MANUAL"
)

// ParseMethod normalizes a method name; ok is false for unknown methods.
func ParseMethod(s string) (Method, bool) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodCode, MethodLocation, MethodManual:
		return m, true
	}
	return "", false
}

// SessionStatus is the lifecycle state of a session row.
type SessionStatus string

const (
	StatusActive SessionStatus = "ACTIVE"
	StatusEnded  SessionStatus = "ENDED"
)

// RecordStatus is the outcome stored in the ledger.
type RecordStatus string

const (
	Present RecordStatus = "PRESENT"
	Absent  RecordStatus = "ABSENT"
)

// Location is a WGS84 coordinate pair in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// Class is a course owned by one faculty member.
type Class struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	JoinCode   string    `json:"join_code"`
	FacultyID  string    `json:"faculty_id"`
	StudentIDs []string  `json:"student_ids,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasStudent reports membership.
func (c Class) HasStudent(id string) bool {
	return slices.Contains(c.StudentIDs, id)
}

// ForStudent hides the roster from non-owners.
func (c Class) ForStudent() Class {
	c.StudentIDs = nil
	return c
}

// Session is one attendance-taking event for a class.
type Session struct {
	ID        string        `json:"id"`
	ClassID   string        `json:"class_id"`
	Method    Method        `json:"method"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at"`
	Code      string        `json:"code,omitempty"`
	Anchor    *Location     `json:"anchor,omitempty"`
	RadiusM   float64       `json:"radius_m,omitempty"`
}

// Active reports whether the session still accepts claims.
func (s Session) Active() bool { return s.Status == StatusActive }

// ForStudent hides the attendance code.
func (s Session) ForStudent() Session {
	s.Code = ""
	return s
}

// SessionConfig carries method-specific settings for StartSession.
type SessionConfig struct {
	Anchor  *Location
	RadiusM float64
}

// Record is one accepted attendance event.
type Record struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	StudentID string       `json:"student_id"`
	Status    RecordStatus `json:"status"`
	Method    Method       `json:"method"`
	MarkedAt  time.Time    `json:"marked_at"`
	Location  *Location    `json:"location,omitempty"`
}

// Summary aggregates a roster against ledger records.
type Summary struct {
	PresentCount int      `json:"present_count"`
	AbsentCount  int      `json:"absent_count"`
	Presentees   []string `json:"presentees"`
	Absentees    []string `json:"absentees"`
	Sessions     int      `json:"sessions,omitempty"`
}

func summarize(roster []string, present map[string]bool) Summary {
	sum := Summary{Presentees: []string{}, Absentees: []string{}}
	for id := range present {
		sum.Presentees = append(sum.Presentees, id)
	}
	for _, id := range roster {
		if !present[id] {
			sum.Absentees = append(sum.Absentees, id)
		}
	}
	slices.Sort(sum.Presentees)
	slices.Sort(sum.Absentees)
	sum.PresentCount = len(sum.Presentees)
	sum.AbsentCount = len(sum.Absentees)
	return sum
}
