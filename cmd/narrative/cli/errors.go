package cli

import (
	"os"

	"github.com/charmbracelet/huh"
)

// SilentError wraps an error whose message has already been printed to the
// user (usually by a huh form or a styled failure message), so main.go's
// top-level error handler does not print it a second time.
type SilentError struct {
	err error
}

// NewSilentError wraps err as a SilentError.
func NewSilentError(err error) *SilentError {
	return &SilentError{err: err}
}

func (e *SilentError) Error() string { return e.err.Error() }
func (e *SilentError) Unwrap() error { return e.err }

// NewAccessibleForm builds a huh form from groups, switching to the
// simpler, screen-reader-friendly prompt style whenever ACCESSIBLE is set
// (see accessibilityHelp in root.go).
func NewAccessibleForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...)
	if os.Getenv("ACCESSIBLE") != "" {
		form = form.WithAccessible(true)
	}
	return form
}
