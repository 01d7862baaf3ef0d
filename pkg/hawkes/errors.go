package hawkes

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrWeightsNotComputed   = errors.New("weights are not computed")
	ErrNoData               = errors.New("no realization was given")
	ErrNoNodes              = errors.New("model has no nodes")
	ErrNodeMismatch         = errors.New("realizations have different numbers of nodes")
	ErrNodeIndex            = errors.New("node index out of range")
	ErrSampleIndex          = errors.New("sample index out of range")
	ErrCoeffsLength         = errors.New("coefficient vector has the wrong length")
	ErrNonPositiveIntensity = errors.New("intensity is not positive at a jump")
	ErrSnapshotVersion      = errors.New("unsupported snapshot version")
	ErrSnapshotKind         = errors.New("snapshot belongs to another model")
)

// PreconditionError is raised through panic when an evaluation is called on
// a model that cannot serve it. These are programming errors: data problems
// are reported by SetData and friends as regular errors.
type PreconditionError struct {
	Err    error
	Detail string
}

func (e *PreconditionError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Detail)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

func fail(err error, format string, args ...interface{}) {
	panic(&PreconditionError{Err: err, Detail: fmt.Sprintf(format, args...)})
}

func checkCoeffs(coeffs []float64, expected int) {
	if len(coeffs) != expected {
		fail(ErrCoeffsLength, "got %d, expected %d", len(coeffs), expected)
	}
}

func checkNode(i, nodes int) {
	if i < 0 || i >= nodes {
		fail(ErrNodeIndex, "node %d of %d", i, nodes)
	}
}
