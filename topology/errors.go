package topology

import "fmt"

// A ValidationError reports a malformed topology description, such as a
// link referencing a port that does not exist or an identifier that is
// not a valid hostname-shaped token.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "topology: " + e.Reason
}

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// A NotFoundError reports a lookup of an unknown identifier.
type NotFoundError struct {
	Kind string // "node", "port", "link" or "shell"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("topology: %s %q not found", e.Kind, e.ID)
}
