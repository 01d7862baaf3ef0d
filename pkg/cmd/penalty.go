package cmd

import (
	"math"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/stat"

	"github.com/c9s/qrhawkes/pkg/cmd/cmdutil"
	"github.com/c9s/qrhawkes/pkg/hawkes"
	"github.com/c9s/qrhawkes/pkg/style"
)

func init() {
	cmdutil.ModelFlags(penaltyCmd.Flags())
	penaltyCmd.Flags().Float64("x", 0, "confidence level, defaults to log(end time)")
	penaltyCmd.Flags().Float64("baseline1", 1, "weight of the baseline variance term")
	penaltyCmd.Flags().Float64("baseline2", 0, "weight of the baseline bias term")
	penaltyCmd.Flags().Float64("kernel1", 1, "weight of the kernel variance term")
	penaltyCmd.Flags().Float64("kernel2", 0, "weight of the kernel bias term")
	penaltyCmd.Flags().Float64("normalization", 1, "kernel normalization")
	RootCmd.AddCommand(penaltyCmd)
}

func parsePenalizationFlags(flags *pflag.FlagSet) (p hawkes.PenalizationParams, err error) {
	for name, dst := range map[string]*float64{
		"x":             &p.X,
		"baseline1":     &p.Baseline1,
		"baseline2":     &p.Baseline2,
		"kernel1":       &p.Kernel1,
		"kernel2":       &p.Kernel2,
		"normalization": &p.Normalization,
	} {
		if *dst, err = flags.GetFloat64(name); err != nil {
			return p, err
		}
	}
	return p, nil
}

var penaltyCmd = &cobra.Command{
	Use:   "penalty",
	Short: "compute the data-driven penalization weights of the least-squares contrast",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		config, data, err := cmdutil.ParseModelFlags(cmd.Flags(), viper.GetInt("threads"))
		if err != nil {
			return err
		}

		if config.Kind != hawkes.KindLeastSquares {
			return errors.Errorf("penalization weights are defined for %s only", hawkes.KindLeastSquares)
		}

		params, err := parsePenalizationFlags(cmd.Flags())
		if err != nil {
			return err
		}

		model, err := loadModel(config, data.Inputs, data.NumNodes, data.EndTime)
		if err != nil {
			return err
		}

		ls := model.(*hawkes.LeastSquares)
		if params.X == 0 {
			params.X = defaultConfidence(ls.EndTimes())
		}

		baseline, kernelPen := ls.ComputePenalizationConstant(params)

		layout := ls.Layout()
		t := style.NewTable(os.Stdout, "penalization", viper.GetBool("plain"), "coefficient", "weight")
		for c, w := range append(baseline, kernelPen...) {
			t.AppendRow(table.Row{layout.Label(c), w})
		}
		t.Render()
		return nil
	},
}

// defaultConfidence is log of the average end time.
func defaultConfidence(endTimes []float64) float64 {
	return math.Log(stat.Mean(endTimes, nil))
}
