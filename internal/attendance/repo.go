package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"classroll/internal/store"
)

// Repository persists classes, sessions and the ledger in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const classColumns = `
	c.id, c.name, c.join_code, c.faculty_id, c.created_at,
	COALESCE(string_agg(cs.student_id::text, ',' ORDER BY cs.joined_at), '')`

const classFrom = `
	FROM classes c
	LEFT JOIN class_students cs ON cs.class_id = c.id`

const sessionColumns = `id, class_id, method, status, code, anchor_lat, anchor_lng, radius_m, started_at, ended_at`

const recordColumns = `id, session_id, student_id, status, method, lat, lng, marked_at`

type scanner interface {
	Scan(dest ...any) error
}

// CreateClass inserts a class; the partial unique index on live join codes
// reports collisions.
func (r *Repository) CreateClass(ctx context.Context, c Class) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO classes (id, name, join_code, faculty_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Name, c.JoinCode, c.FacultyID, c.CreatedAt)
	if constraint, ok := store.UniqueViolation(err); ok && constraint == "classes_join_code_live_key" {
		return ErrJoinCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert class: %w", err)
	}
	return nil
}

// Class returns a live class with its roster.
func (r *Repository) Class(ctx context.Context, id string) (Class, error) {
	if !validID(id) {
		return Class{}, ErrClassNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT`+classColumns+classFrom+`
		WHERE c.id = $1 AND c.deleted_at IS NULL
		GROUP BY c.id`, id)
	c, err := scanClass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Class{}, ErrClassNotFound
	}
	return c, err
}

// ClassByJoinCode returns the live class using code.
func (r *Repository) ClassByJoinCode(ctx context.Context, code string) (Class, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+classColumns+classFrom+`
		WHERE c.join_code = $1 AND c.deleted_at IS NULL
		GROUP BY c.id`, code)
	c, err := scanClass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Class{}, ErrClassNotFound
	}
	return c, err
}

// ClassesByFaculty lists live classes owned by facultyID.
func (r *Repository) ClassesByFaculty(ctx context.Context, facultyID string) ([]Class, error) {
	if !validID(facultyID) {
		return nil, nil
	}
	return r.listClasses(ctx, `SELECT`+classColumns+classFrom+`
		WHERE c.faculty_id = $1 AND c.deleted_at IS NULL
		GROUP BY c.id
		ORDER BY c.created_at`, facultyID)
}

// ClassesByStudent lists live classes the student is enrolled in.
func (r *Repository) ClassesByStudent(ctx context.Context, studentID string) ([]Class, error) {
	if !validID(studentID) {
		return nil, nil
	}
	return r.listClasses(ctx, `SELECT`+classColumns+classFrom+`
		WHERE c.deleted_at IS NULL
		  AND c.id IN (SELECT class_id FROM class_students WHERE student_id = $1)
		GROUP BY c.id
		ORDER BY c.created_at`, studentID)
}

func (r *Repository) listClasses(ctx context.Context, query string, args ...any) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()
	var res []Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// Enroll adds a student; the primary key on (class_id, student_id) rejects repeats.
func (r *Repository) Enroll(ctx context.Context, classID, studentID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO class_students (class_id, student_id, joined_at)
		VALUES ($1, $2, $3)
	`, classID, studentID, at)
	if _, ok := store.UniqueViolation(err); ok {
		return ErrAlreadyEnrolled
	}
	if err != nil {
		return fmt.Errorf("enroll: %w", err)
	}
	return nil
}

// DeleteClass ends the active session and soft-deletes the class in one transaction.
func (r *Repository) DeleteClass(ctx context.Context, classID string, at time.Time) (*Session, error) {
	if !validID(classID) {
		return nil, ErrClassNotFound
	}
	var ended *Session
	err := store.InTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockClass(ctx, tx, classID); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `
			UPDATE attendance_sessions SET status = 'ENDED', ended_at = $2
			WHERE class_id = $1 AND status = 'ACTIVE'
			RETURNING `+sessionColumns, classID, at)
		s, err := scanSession(row)
		switch {
		case err == nil:
			ended = &s
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE classes SET deleted_at = $2 WHERE id = $1`, classID, at); err != nil {
			return fmt.Errorf("delete class: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ended, nil
}

// CreateSession locks the class row, checks for an active session and inserts.
// The partial unique index on active sessions backs the check.
func (r *Repository) CreateSession(ctx context.Context, s Session) error {
	return store.InTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockClass(ctx, tx, s.ClassID); err != nil {
			return err
		}
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM attendance_sessions WHERE class_id = $1 AND status = 'ACTIVE')
		`, s.ClassID).Scan(&exists); err != nil {
			return fmt.Errorf("check active session: %w", err)
		}
		if exists {
			return ErrActiveSession
		}

		var lat, lng, radius, code any
		if s.Anchor != nil {
			lat, lng, radius = s.Anchor.Latitude, s.Anchor.Longitude, s.RadiusM
		}
		if s.Code != "" {
			code = s.Code
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_sessions (id, class_id, method, status, code, anchor_lat, anchor_lng, radius_m, started_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, s.ID, s.ClassID, string(s.Method), string(s.Status), code, lat, lng, radius, s.StartedAt)
		if _, ok := store.UniqueViolation(err); ok {
			return ErrActiveSession
		}
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

func (r *Repository) Session(ctx context.Context, id string) (Session, error) {
	if !validID(id) {
		return Session{}, ErrSessionNotFound
	}
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

func (r *Repository) ActiveSession(ctx context.Context, classID string) (Session, error) {
	if !validID(classID) {
		return Session{}, ErrNoActiveSession
	}
	s, err := scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions
		WHERE class_id = $1 AND status = 'ACTIVE'
	`, classID))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoActiveSession
	}
	return s, err
}

// EndSession is a conditional update, so two concurrent ends cannot both succeed.
func (r *Repository) EndSession(ctx context.Context, id string, at time.Time) (Session, error) {
	if !validID(id) {
		return Session{}, ErrSessionNotFound
	}
	s, err := scanSession(r.db.QueryRowContext(ctx, `
		UPDATE attendance_sessions SET status = 'ENDED', ended_at = $2
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING `+sessionColumns, id, at))
	if errors.Is(err, sql.ErrNoRows) {
		if _, lookupErr := r.Session(ctx, id); lookupErr != nil {
			return Session{}, lookupErr
		}
		return Session{}, ErrSessionEnded
	}
	return s, err
}

func (r *Repository) SessionsByClass(ctx context.Context, classID string) ([]Session, error) {
	if !validID(classID) {
		return nil, nil
	}
	return r.listSessions(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions
		WHERE class_id = $1
		ORDER BY started_at DESC`, classID)
}

func (r *Repository) SessionsStartedBetween(ctx context.Context, classID string, from, to time.Time) ([]Session, error) {
	if !validID(classID) {
		return nil, nil
	}
	return r.listSessions(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions
		WHERE class_id = $1 AND started_at >= $2 AND started_at < $3
		ORDER BY started_at`, classID, from, to)
}

func (r *Repository) listSessions(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// InsertRecord relies on the (session_id, student_id) unique constraint.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) error {
	var lat, lng any
	if rec.Location != nil {
		lat, lng = rec.Location.Latitude, rec.Location.Longitude
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_id, status, method, lat, lng, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.SessionID, rec.StudentID, string(rec.Status), string(rec.Method), lat, lng, rec.MarkedAt)
	if constraint, ok := store.UniqueViolation(err); ok && constraint == "attendance_records_session_student_key" {
		return ErrDuplicateAttendance
	}
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (r *Repository) HasRecord(ctx context.Context, sessionID, studentID string) (bool, error) {
	if !validID(sessionID) || !validID(studentID) {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM attendance_records WHERE session_id = $1 AND student_id = $2)
	`, sessionID, studentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return exists, nil
}

func (r *Repository) RecordsBySession(ctx context.Context, sessionID string) ([]Record, error) {
	if !validID(sessionID) {
		return nil, nil
	}
	return r.listRecords(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE session_id = $1
		ORDER BY marked_at`, sessionID)
}

func (r *Repository) RecordsByStudent(ctx context.Context, studentID string) ([]Record, error) {
	if !validID(studentID) {
		return nil, nil
	}
	return r.listRecords(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE student_id = $1
		ORDER BY marked_at DESC`, studentID)
}

func (r *Repository) listRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var (
			rec      Record
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Status, &rec.Method, &lat, &lng, &rec.MarkedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if lat.Valid && lng.Valid {
			rec.Location = &Location{Latitude: lat.Float64, Longitude: lng.Float64}
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func lockClass(ctx context.Context, tx *sql.Tx, classID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM classes WHERE id = $1 AND deleted_at IS NULL FOR UPDATE
	`, classID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrClassNotFound
	}
	if err != nil {
		return fmt.Errorf("lock class: %w", err)
	}
	return nil
}

func scanClass(row scanner) (Class, error) {
	var (
		c        Class
		students string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.JoinCode, &c.FacultyID, &c.CreatedAt, &students); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Class{}, err
		}
		return Class{}, fmt.Errorf("scan class: %w", err)
	}
	if students != "" {
		c.StudentIDs = strings.Split(students, ",")
	}
	return c, nil
}

func scanSession(row scanner) (Session, error) {
	var (
		s                Session
		code             sql.NullString
		lat, lng, radius sql.NullFloat64
		endedAt          sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.ClassID, &s.Method, &s.Status, &code, &lat, &lng, &radius, &s.StartedAt, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	s.Code = code.String
	if lat.Valid && lng.Valid {
		s.Anchor = &Location{Latitude: lat.Float64, Longitude: lng.Float64}
		s.RadiusM = radius.Float64
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	return s, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
