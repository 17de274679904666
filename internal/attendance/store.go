package attendance

import (
	"context"
	"time"
)

// Store is the persistence contract of the engine. Implementations must make
// CreateSession, EndSession, Enroll and InsertRecord atomic: concurrent calls
// never produce two active sessions for a class or two records for one
// (session, student) pair.
type Store interface {
	// CreateClass fails with ErrJoinCodeTaken when a live class uses c.JoinCode.
	CreateClass(ctx context.Context, c Class) error
	Class(ctx context.Context, id string) (Class, error)
	ClassByJoinCode(ctx context.Context, code string) (Class, error)
	ClassesByFaculty(ctx context.Context, facultyID string) ([]Class, error)
	ClassesByStudent(ctx context.Context, studentID string) ([]Class, error)
	Enroll(ctx context.Context, classID, studentID string, at time.Time) error
	// DeleteClass ends the active session of the class, if any, and hides the
	// class. The ended session is returned.
	DeleteClass(ctx context.Context, classID string, at time.Time) (*Session, error)

	// CreateSession fails with ErrActiveSession when the class already has one.
	CreateSession(ctx context.Context, s Session) error
	Session(ctx context.Context, id string) (Session, error)
	ActiveSession(ctx context.Context, classID string) (Session, error)
	// EndSession moves an ACTIVE session to ENDED; ErrSessionEnded otherwise.
	EndSession(ctx context.Context, id string, at time.Time) (Session, error)
	SessionsByClass(ctx context.Context, classID string) ([]Session, error)
	SessionsStartedBetween(ctx context.Context, classID string, from, to time.Time) ([]Session, error)

	// InsertRecord fails with ErrDuplicateAttendance for an existing pair.
	InsertRecord(ctx context.Context, r Record) error
	HasRecord(ctx context.Context, sessionID, studentID string) (bool, error)
	RecordsBySession(ctx context.Context, sessionID string) ([]Record, error)
	RecordsByStudent(ctx context.Context, studentID string) ([]Record, error)
}
