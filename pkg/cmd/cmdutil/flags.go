package cmdutil

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/c9s/qrhawkes/pkg/hawkes"
	"github.com/c9s/qrhawkes/pkg/kernel"
)

// ModelFlags defines the flags selecting a model and its data
func ModelFlags(flags *pflag.FlagSet) {
	flags.String("kind", hawkes.KindLeastSquares, "model kind: least_squares, log_likelihood or modulated_log_likelihood")
	flags.Float64Slice("decays", []float64{1}, "decays of the sum-of-exponentials kernel")
	flags.Int("max-state", 1, "number of states of the observed state path")
	flags.Int("baselines", 0, "number of periodic baselines (least squares only)")
	flags.Float64("period", 0, "length of the baseline period")
	flags.Int("optimization-level", 0, "1 uses the fast exponential approximation")

	flags.StringSlice("input", nil, "realization files, csv rows node,time[,state] or json")
	flags.Int("num-nodes", 0, "number of nodes, defaults to the largest node index in each file + 1")
	flags.Float64("end-time", 0, "end time of every realization, defaults to the last timestamp")
}

// DataFlags holds the values of the data flags defined by ModelFlags
type DataFlags struct {
	Inputs   []string
	NumNodes int
	EndTime  float64
}

// ParseModelFlags reads the flags defined by ModelFlags. threads comes
// from the persistent flag of the root command.
func ParseModelFlags(flags *pflag.FlagSet, threads int) (hawkes.ModelConfig, DataFlags, error) {
	var (
		c    hawkes.ModelConfig
		data DataFlags
		err  error
	)

	if c.Kind, err = flags.GetString("kind"); err != nil {
		return c, data, err
	}

	decays, err := flags.GetFloat64Slice("decays")
	if err != nil {
		return c, data, err
	}
	c.Decays = kernel.Decays(decays)

	if c.Options.MaxState, err = flags.GetInt("max-state"); err != nil {
		return c, data, err
	}

	if c.NumBaselines, err = flags.GetInt("baselines"); err != nil {
		return c, data, err
	}

	if c.Period, err = flags.GetFloat64("period"); err != nil {
		return c, data, err
	}

	if c.Options.OptimizationLevel, err = flags.GetInt("optimization-level"); err != nil {
		return c, data, err
	}
	c.Options.Threads = threads

	if data.Inputs, err = flags.GetStringSlice("input"); err != nil {
		return c, data, err
	}

	if data.NumNodes, err = flags.GetInt("num-nodes"); err != nil {
		return c, data, err
	}

	if data.EndTime, err = flags.GetFloat64("end-time"); err != nil {
		return c, data, err
	}

	if len(data.Inputs) == 0 {
		return c, data, errors.New("--input is required")
	}

	return c, data, nil
}

// StoreFlags defines the flags of the snapshot store
func StoreFlags(flags *pflag.FlagSet) {
	flags.String("store", "", "snapshot store backend: memory, sqlite or mysql")
	flags.String("store-path", "qrhawkes.db", "sqlite database path or mysql dsn")
	flags.String("snapshot", "", "snapshot name")
}
