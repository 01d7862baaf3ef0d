package kernel

import "math"

const (
	log2e = 1.4426950408889634
	ln2Hi = 6.93147180369123816490e-01
	ln2Lo = 1.90821492927058770002e-10
)

// ExpFunc evaluates e^x.
type ExpFunc func(x float64) float64

// ExpFor returns the exponential used at the given optimization level.
// Level 0 keeps math.Exp, any positive level switches to FastExp.
func ExpFor(optimizationLevel int) ExpFunc {
	if optimizationLevel > 0 {
		return FastExp
	}

	return math.Exp
}

// FastExp approximates e^x through range reduction on 2^k and a degree-9
// Taylor polynomial on the remainder. The relative error stays below 1e-9
// for every x <= 0, which is the only range the recurrences feed it.
func FastExp(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return x
	case x < -745:
		return 0
	case x > 709:
		return math.Inf(1)
	}

	k := math.Floor(x*log2e + 0.5)
	r := x - k*ln2Hi - k*ln2Lo

	// |r| <= ln(2)/2
	p := 1 + r*(1+r*(1.0/2+r*(1.0/6+r*(1.0/24+r*(1.0/120+r*(1.0/720+r*(1.0/5040+r*(1.0/40320+r*(1.0/362880)))))))))
	return math.Ldexp(p, int(k))
}
