package hawkes

import "github.com/sirupsen/logrus"

var log = logrus.WithField("component", "hawkes")

const defaultMaxState = 1

type Options struct {
	// Threads is the number of workers used for weight computation and
	// evaluation. Zero or less uses every available CPU.
	Threads int `json:"threads" yaml:"threads" msgpack:"threads"`

	// OptimizationLevel 1 replaces math.Exp with the faster approximation.
	OptimizationLevel int `json:"optimizationLevel" yaml:"optimizationLevel" msgpack:"optimizationLevel"`

	// MaxState is the number of states of the observed state path. Models
	// with periodic baselines override it with the number of baselines.
	MaxState int `json:"maxState" yaml:"maxState" msgpack:"maxState"`
}

// SetDefaultValues applies default settings to unspecified fields
func (o *Options) SetDefaultValues() {
	if o.MaxState == 0 {
		o.MaxState = defaultMaxState
	}

	if o.OptimizationLevel < 0 {
		o.OptimizationLevel = 0
	}
}
