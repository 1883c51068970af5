package tracker

import "errors"

var (
	// ErrNotSignedIn is returned by operations that need a user id when there is none.
	ErrNotSignedIn = errors.New("please sign in first")
	// ErrAlreadyStarted is returned when a tracker is started twice.
	ErrAlreadyStarted = errors.New("already started")
	// ErrNoShuttle is returned when a driver has no shuttle assigned.
	ErrNoShuttle = errors.New("no shuttle assigned to this driver")
)

// ValidationError rejects user input before any backend call is made.
// Message is suitable for showing to the user as is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
