package irk

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig flags an invalid configuration: unknown method, malformed mesh or sizes.
	ErrConfig = errors.New("irk: invalid configuration")
	// ErrNumerical flags a NaN or Inf returned by a user function.
	ErrNumerical = errors.New("irk: NaN or Inf encountered")
	// ErrPrecondition flags a call made before the required initialization.
	ErrPrecondition = errors.New("irk: precondition not met")
)

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrConfig}, args...)...)
}

// PointError locates a failure at a discretization point.
type PointError struct {
	Kind     error
	Phase    string
	Function string // dynamics, cost or path
	Point    int
	Mesh     int
	Stage    int
	Variable string
	Value    float64
}

func (e *PointError) Error() string {
	return fmt.Sprintf("%s: phase %q %s function: %s=%v at point %d (mesh %d, stage %d)", e.Kind, e.Phase, e.Function, e.Variable, e.Value, e.Point, e.Mesh, e.Stage)
}

// Unwrap allows errors.Is against the error kinds.
func (e *PointError) Unwrap() error {
	return e.Kind
}
