package kernel

// Shape is the capability the weight caches need from a kernel family:
// how a decayed sum moves forward over a gap and how much of it is integrated
// along the way. Both the plain exponential and the sum-of-exponentials
// kernels are served by SumExp.
type Shape interface {
	NumDecays() int
	Decay(u int) float64

	// Recurrence returns e^{-beta_u dt} and (1 - e^{-beta_u dt}) / beta_u.
	Recurrence(dt float64, u int) (factor, integral float64)

	// CrossIntegral returns the integral over [0, dt] of
	// e^{-(beta_u + beta_v) s}.
	CrossIntegral(dt float64, u, v int) float64
}

type SumExp struct {
	decays Decays
	exp    ExpFunc
}

func NewSumExp(decays Decays, optimizationLevel int) (*SumExp, error) {
	if err := decays.Validate(); err != nil {
		return nil, err
	}

	copied := make(Decays, len(decays))
	copy(copied, decays)
	return &SumExp{decays: copied, exp: ExpFor(optimizationLevel)}, nil
}

func (k *SumExp) NumDecays() int {
	return len(k.decays)
}

func (k *SumExp) Decay(u int) float64 {
	return k.decays[u]
}

func (k *SumExp) Decays() Decays {
	return k.decays
}

func (k *SumExp) Recurrence(dt float64, u int) (factor, integral float64) {
	beta := k.decays[u]
	factor = k.exp(-beta * dt)
	integral = (1 - factor) / beta
	return factor, integral
}

func (k *SumExp) CrossIntegral(dt float64, u, v int) float64 {
	b := k.decays[u] + k.decays[v]
	return (1 - k.exp(-b*dt)) / b
}
