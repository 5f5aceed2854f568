package pipeline

import "errors"

// BackendError wraps a failure returned by Backend.Complete or a terminal
// StreamItem.Err from Backend.Stream. This type does not distinguish
// timeout from other transport failures; Backend implementations that want
// to distinguish can wrap with their own sentinel and still satisfy
// errors.Is(err, ErrBackend) via Unwrap.
type BackendError struct {
	Cause error
}

func (e *BackendError) Error() string { return "pipeline: backend error: " + e.Cause.Error() }
func (e *BackendError) Unwrap() error { return e.Cause }

// ErrBackend is a sentinel for errors.Is matching against any BackendError.
var ErrBackend = errors.New("pipeline: backend error")

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// PolicyError wraps an error a policy hook returned unexpectedly —
// distinct from a PolicyViolation, which a policy signals by simply
// emitting its chosen replacement content rather than returning an error.
type PolicyError struct {
	Hook  string
	Cause error
}

func (e *PolicyError) Error() string {
	return "pipeline: policy hook " + e.Hook + " failed: " + e.Cause.Error()
}
func (e *PolicyError) Unwrap() error { return e.Cause }
