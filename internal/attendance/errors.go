package attendance

import "classroll/internal/apperr"

var (
	ErrClassNotFound   = apperr.NotFound("class not found")
	ErrSessionNotFound = apperr.NotFound("session not found")
	ErrNotOwner        = apperr.Forbidden("class belongs to another faculty member")
	ErrNotMember       = apperr.Forbidden("not a member of this class")

	ErrJoinCodeTaken   = apperr.New(apperr.KindConflict, "join code already in use")
	ErrAlreadyEnrolled = apperr.New(apperr.KindAlreadyEnrolled, "already enrolled in this class")
	ErrNotEnrolled     = apperr.New(apperr.KindNotEnrolled, "student is not enrolled in this class")

	ErrActiveSession   = apperr.New(apperr.KindConflictActiveSession, "an active session already exists for this class")
	ErrNoActiveSession = apperr.New(apperr.KindNoActiveSession, "no active session")
	ErrSessionEnded    = apperr.New(apperr.KindNoActiveSession, "session already ended")

	ErrDuplicateAttendance = apperr.New(apperr.KindDuplicateAttendance, "attendance already marked")
	ErrSessionNotActive    = apperr.New(apperr.KindSessionNotActive, "session is not active")
	ErrWrongMethod         = apperr.New(apperr.KindWrongMethod, "session does not use this verification method")
	ErrCodeMismatch        = apperr.New(apperr.KindCodeMismatch, "invalid attendance code")
)

func errTooFarAway(distance, radius float64) error {
	err := apperr.Newf(apperr.KindTooFarAway, "too far from the class location (%.1fm, limit %.0fm)", distance, radius)
	err.Distance = distance
	return err
}
