package tool

import "errors"

// Domain errors for the tool system.
var (
	// ErrEmptyName indicates a tool was created with an empty name.
	ErrEmptyName = errors.New("tool name cannot be empty")

	// ErrNoHandler indicates a tool was created without a handler.
	ErrNoHandler = errors.New("tool has no handler")

	// ErrToolNotFound indicates the requested tool was not found.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolExists indicates a tool with the same name already exists.
	ErrToolExists = errors.New("tool already exists")

	// ErrNotReadOnly indicates a tool without the read-only annotation.
	ErrNotReadOnly = errors.New("tool is not read-only")

	// ErrInvalidInput indicates the input could not be decoded.
	ErrInvalidInput = errors.New("invalid tool input")
)

// InputError wraps a decoding failure of tool input.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return ErrInvalidInput.Error() + ": " + e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidInput.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}
