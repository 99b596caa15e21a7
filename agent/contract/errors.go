package contract

import "errors"

// ErrorKind is the closed error taxonomy carried across process boundaries.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindInternal   ErrorKind = "internal"
	KindTimeout    ErrorKind = "timeout"
	KindAmbiguous  ErrorKind = "ambiguous"
	KindConflict   ErrorKind = "conflict"
)

// ErrorDescriptor is the wire form of a failure: kind plus human message.
type ErrorDescriptor struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ErrorDescriptor) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Transient reports whether a bounded retry may help. Validation and
// not-found failures are terminal for the originating call.
func (e *ErrorDescriptor) Transient() bool {
	return e.Kind == KindInternal || e.Kind == KindTimeout
}

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrInternal     = errors.New("internal failure")
	ErrTimeout      = errors.New("timed out")
	ErrAmbiguous    = errors.New("classification ambiguous")
	ErrPlanConflict = errors.New("plan conflict")
)

// KindOf maps a sentinel-wrapped error to its wire kind. Unknown errors are
// reported as internal so raw transport detail never leaks to callers.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrAmbiguous):
		return KindAmbiguous
	case errors.Is(err, ErrPlanConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// Describe converts err into a descriptor, preserving an existing descriptor
// as-is.
func Describe(err error) ErrorDescriptor {
	var desc *ErrorDescriptor
	if errors.As(err, &desc) {
		return *desc
	}
	return ErrorDescriptor{Kind: KindOf(err), Message: err.Error()}
}
