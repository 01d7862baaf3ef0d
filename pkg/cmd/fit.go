package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/optimize"

	"github.com/c9s/qrhawkes/pkg/config"
	"github.com/c9s/qrhawkes/pkg/hawkes"
	"github.com/c9s/qrhawkes/pkg/store"
	"github.com/c9s/qrhawkes/pkg/style"
)

func init() {
	fitCmd.Flags().String("fit-config", "fit.yaml", "fit config file")
	fitCmd.Flags().Bool("json", false, "print the fit report in json format")
	RootCmd.AddCommand(fitCmd)
}

type FitReport struct {
	Kind         string             `json:"kind"`
	Status       string             `json:"status"`
	Converged    bool               `json:"converged"`
	Loss         float64            `json:"loss"`
	Iterations   int                `json:"iterations"`
	Coeffs       map[string]float64 `json:"coeffs"`
	Penalization map[string]float64 `json:"penalization,omitempty"`
	SnapshotID   string             `json:"snapshotId,omitempty"`
}

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "fit a model with L-BFGS",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		configFile, err := cmd.Flags().GetString("fit-config")
		if err != nil {
			return err
		}

		printJsonFormat, err := cmd.Flags().GetBool("json")
		if err != nil {
			return err
		}

		fitConfig, err := config.LoadFitConfig(configFile)
		if err != nil {
			return err
		}

		if threads := viper.GetInt("threads"); threads > 0 {
			fitConfig.Model.Options.Threads = threads
		}

		if len(fitConfig.Data.Inputs) == 0 {
			return errors.New("data.inputs is required")
		}

		model, err := loadModel(fitConfig.Model, fitConfig.Data.Inputs, fitConfig.Data.NumNodes, fitConfig.Data.EndTime)
		if err != nil {
			return err
		}

		x0 := make([]float64, model.NumCoeffs())
		for c := range x0 {
			x0[c] = fitConfig.InitialCoeff
		}

		result, err := hawkes.Minimize(model, x0, fitConfig.Fit)
		if result == nil {
			return err
		}

		if err != nil {
			log.WithError(err).Warn("optimization did not converge")
		}

		report := buildFitReport(fitConfig.Model.Kind, model.Layout(), result, err == nil)

		if fitConfig.Penalization != nil {
			ls, ok := model.(*hawkes.LeastSquares)
			if !ok {
				return errors.Errorf("penalization weights are defined for %s only", hawkes.KindLeastSquares)
			}

			params := *fitConfig.Penalization
			if params.X == 0 {
				params.X = defaultConfidence(ls.EndTimes())
			}

			baseline, kernelPen := ls.ComputePenalizationConstant(params)
			report.Penalization = make(map[string]float64)
			for c, w := range append(baseline, kernelPen...) {
				report.Penalization[model.Layout().Label(c)] = w
			}
		}

		if fitConfig.Store != nil {
			st, err := store.NewStore(fitConfig.Store.Driver, fitConfig.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Init(ctx); err != nil {
				return err
			}

			snapshot, err := store.SaveModel(ctx, st, fitConfig.Store.Name, model)
			if err != nil {
				return err
			}
			report.SnapshotID = snapshot.ID
		}

		if printJsonFormat {
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		printFitReport(report, model.Layout(), result.X, viper.GetBool("plain"))
		return nil
	},
}

func buildFitReport(kind string, layout hawkes.Layout, result *optimize.Result, converged bool) *FitReport {
	report := &FitReport{
		Kind:       kind,
		Status:     result.Status.String(),
		Converged:  converged,
		Loss:       result.F,
		Iterations: result.MajorIterations,
		Coeffs:     make(map[string]float64, len(result.X)),
	}

	for c, v := range result.X {
		report.Coeffs[layout.Label(c)] = v
	}
	return report
}

func printFitReport(report *FitReport, layout hawkes.Layout, x []float64, plain bool) {
	status := report.Status
	if !plain {
		status = style.Status(report.Converged, status)
	}

	t := style.NewTable(os.Stdout, report.Kind, plain, "key", "value")
	t.AppendRows([]table.Row{
		{"status", status},
		{"loss", report.Loss},
		{"iterations", report.Iterations},
	})
	if report.SnapshotID != "" {
		t.AppendRow(table.Row{"snapshot", report.SnapshotID})
	}
	t.Render()

	header := []interface{}{"coefficient", "value"}
	if report.Penalization != nil {
		header = append(header, "penalization")
	}

	ct := style.NewTable(os.Stdout, "coefficients", plain, header...)
	for c, v := range x {
		label := layout.Label(c)
		row := table.Row{label, v}
		if report.Penalization != nil {
			row = append(row, report.Penalization[label])
		}
		ct.AppendRow(row)
	}
	ct.Render()
}
