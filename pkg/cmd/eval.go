package cmd

import (
	"context"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/c9s/qrhawkes/pkg/cmd/cmdutil"
	"github.com/c9s/qrhawkes/pkg/hawkes"
	"github.com/c9s/qrhawkes/pkg/store"
	"github.com/c9s/qrhawkes/pkg/style"
)

func init() {
	cmdutil.ModelFlags(evalCmd.Flags())
	cmdutil.StoreFlags(evalCmd.Flags())
	evalCmd.Flags().String("coeffs", "", "comma separated coefficients, a single value is used for every coefficient")
	evalCmd.Flags().Bool("grad", false, "print the gradient")
	evalCmd.Flags().Bool("save", false, "save the model with its weights to the snapshot store")
	RootCmd.AddCommand(evalCmd)
}

// openModel restores the named snapshot when a store is selected and the
// snapshot exists, and builds the model from the input files otherwise.
func openModel(ctx context.Context, cmd *cobra.Command) (hawkes.Model, store.Store, string, error) {
	st, name, err := cmdutil.OpenStore(ctx, cmd.Flags())
	if err != nil {
		return nil, nil, "", err
	}

	if st != nil && name != "" {
		model, err := store.LoadModel(ctx, st, name)
		if err == nil {
			log.Infof("restored snapshot %q", name)
			if !model.WeightsComputed() {
				err = model.ComputeWeights()
			}
			return model, st, name, err
		}

		if !errors.Is(err, store.ErrNotFound) {
			return nil, st, name, err
		}
	}

	config, data, err := cmdutil.ParseModelFlags(cmd.Flags(), viper.GetInt("threads"))
	if err != nil {
		return nil, st, name, err
	}

	model, err := loadModel(config, data.Inputs, data.NumNodes, data.EndTime)
	return model, st, name, err
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "evaluate the loss and the gradient of a model",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		coeffsFlag, err := cmd.Flags().GetString("coeffs")
		if err != nil {
			return err
		}

		printGrad, err := cmd.Flags().GetBool("grad")
		if err != nil {
			return err
		}

		save, err := cmd.Flags().GetBool("save")
		if err != nil {
			return err
		}

		if coeffsFlag == "" {
			return errors.New("--coeffs is required")
		}

		model, st, name, err := openModel(ctx, cmd)
		if st != nil {
			defer st.Close()
		}

		if err != nil {
			return err
		}

		coeffs, err := parseCoeffs(coeffsFlag, model.NumCoeffs())
		if err != nil {
			return err
		}

		grad := make([]float64, model.NumCoeffs())
		loss, err := evaluate(model, coeffs, grad)
		if err != nil {
			return err
		}

		plain := viper.GetBool("plain")
		t := style.NewTable(os.Stdout, "evaluation", plain, "key", "value")
		t.AppendRows([]table.Row{
			{"nodes", model.NumNodes()},
			{"realizations", model.NumRealizations()},
			{"jumps", model.NumTotalJumps()},
			{"n_coeffs", model.NumCoeffs()},
			{"loss", loss},
		})
		t.Render()

		if printGrad {
			layout := model.Layout()
			gt := style.NewTable(os.Stdout, "gradient", plain, "coefficient", "value", "gradient")
			for c := range coeffs {
				gt.AppendRow(table.Row{layout.Label(c), coeffs[c], grad[c]})
			}
			gt.Render()
		}

		if save {
			if st == nil || name == "" {
				return errors.New("--save needs --store and --snapshot")
			}

			if _, err := store.SaveModel(ctx, st, name, model); err != nil {
				return err
			}
		}

		return nil
	},
}

// evaluate turns a non-positive intensity into an error.
func evaluate(model hawkes.Model, coeffs, grad []float64) (loss float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok || !errors.Is(e, hawkes.ErrNonPositiveIntensity) {
				panic(r)
			}
			err = e
		}
	}()

	return model.LossAndGrad(coeffs, grad), nil
}
