// Package apperr defines the typed error kinds shared across the engine.
//
// Errors are sentinel values matched with errors.Is; call sites wrap them
// with fmt.Errorf("...: %w", ...) to add detail without losing the kind.
package apperr

import "errors"

var (
	// ErrPathValidation marks a rejected or malformed target path.
	ErrPathValidation = errors.New("path validation failed")
	// ErrLockTimeout marks a lock that could not be acquired in time.
	ErrLockTimeout = errors.New("lock acquisition timed out")
	// ErrDocumentLoad marks a package that could not be opened or parsed.
	ErrDocumentLoad = errors.New("document load failed")
	// ErrSlideNotFound marks a stale or out-of-range slide index.
	ErrSlideNotFound = errors.New("slide not found")
	// ErrShapeNotFound marks a stale or out-of-range shape index.
	ErrShapeNotFound = errors.New("shape not found")
	// ErrInvalidGeometry marks a position/size spec that cannot resolve
	// to positive absolute coordinates.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrPermission marks an approval-gate rejection.
	ErrPermission = errors.New("permission denied")
	// ErrInternalXML marks an unexpected package XML structure.
	ErrInternalXML = errors.New("unexpected xml structure")
	// ErrInvalidArgument marks an out-of-range or malformed parameter
	// rejected before any mutation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyExists marks an attempt to create a deck over an
	// existing file.
	ErrAlreadyExists = errors.New("already exists")
)

// Retryable reports whether the caller may usefully retry the whole
// operation. Only lock contention qualifies; everything else is either a
// caller mistake (validation, stale index) or a damaged document.
func Retryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
