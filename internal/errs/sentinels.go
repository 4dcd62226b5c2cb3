// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/service/cache layers.
var (
	// ErrNotFound indicates the requested entity does not exist for the caller.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates rejected user input (trip name/date rules, malformed keys).
	ErrValidation = errors.New("validation")

	// ErrSignedOut indicates an operation that needs a user was called without one.
	ErrSignedOut = errors.New("signed out")

	// ErrAlreadyExists indicates a primary key collision.
	ErrAlreadyExists = errors.New("already exists")
)

// Error carries a message suitable for direct display while still matching
// its sentinel kind with errors.Is.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// Validation returns a display error of kind ErrValidation.
func Validation(msg string) error { return &Error{Kind: ErrValidation, Msg: msg} }

// NotFound returns a display error of kind ErrNotFound.
func NotFound(msg string) error { return &Error{Kind: ErrNotFound, Msg: msg} }

// SignedOut returns a display error of kind ErrSignedOut.
func SignedOut(msg string) error { return &Error{Kind: ErrSignedOut, Msg: msg} }
