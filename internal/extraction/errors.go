package extraction

import (
	"errors"
	"fmt"
)

// Kind categorises a failure so that callers can react to it
// without inspecting error messages.
type Kind int

const (
	// KindUnexpected covers anything which could not be classified.
	KindUnexpected Kind = iota
	// KindValidation is a malformed or incomplete request.
	KindValidation
	// KindNoFormats means the engine succeeded but offered no encodings.
	KindNoFormats
	// KindExtraction is an engine reported failure to reach, parse or download the source.
	KindExtraction
	// KindFileMissing means the engine reported success, but the artifact is absent.
	KindFileMissing
)

func (kind Kind) String() string {
	switch kind {
	case KindValidation:
		return "validation"
	case KindNoFormats:
		return "no-formats"
	case KindExtraction:
		return "extraction"
	case KindFileMissing:
		return "file-missing"
	default:
		return "unexpected"
	}
}

// Error is the only error type returned by the Client. The Detail is
// safe to show to users, Err retains the underlying cause.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (err *Error) Error() string {
	if err.Detail == "" {
		return err.Kind.String()
	}
	return fmt.Sprintf("%s: %s", err.Kind, err.Detail)
}

func (err *Error) Unwrap() error { return err.Err }

func newError(kind Kind, cause error, detail string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(detail, args...), Err: cause}
}

// KindOf returns the Kind of the first *Error in the chain, or
// KindUnexpected if there is none.
func KindOf(err error) Kind {
	var extractionErr *Error
	if errors.As(err, &extractionErr) {
		return extractionErr.Kind
	}
	return KindUnexpected
}
