package kernel

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

var ErrInvalidDecay = errors.New("decays must be finite and strictly positive")

// Decays holds the shared decay rates of a sum-of-exponentials kernel.
// A single-element vector is the plain exponential kernel.
type Decays []float64

func (d Decays) Len() int {
	return len(d)
}

func (d Decays) Validate() error {
	if len(d) == 0 {
		return errors.Wrap(ErrInvalidDecay, "empty decay vector")
	}

	for u, beta := range d {
		if !(beta > 0) || math.IsInf(beta, 0) {
			return errors.Wrapf(ErrInvalidDecay, "decay #%d = %v", u, beta)
		}
	}

	return nil
}

func (d Decays) String() string {
	return fmt.Sprintf("%v", []float64(d))
}

// Value returns the kernel shape beta_u * e^{-beta_u t} for t >= 0.
func (d Decays) Value(t float64, u int) float64 {
	if t < 0 {
		return 0
	}
	return d[u] * math.Exp(-d[u]*t)
}
