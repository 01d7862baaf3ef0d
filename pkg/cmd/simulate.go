package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/c9s/qrhawkes/pkg/config"
	"github.com/c9s/qrhawkes/pkg/events"
	"github.com/c9s/qrhawkes/pkg/parallel"
	"github.com/c9s/qrhawkes/pkg/simulation"
	"github.com/c9s/qrhawkes/pkg/style"
)

func init() {
	simulateCmd.Flags().String("sim-config", "simulate.yaml", "simulation config file")
	simulateCmd.Flags().Int("realizations", 0, "number of realizations, overrides the config")
	simulateCmd.Flags().Int64("seed", 0, "seed of the first realization, overrides the config")
	simulateCmd.Flags().String("output", "", "output directory of the realization csv files, overrides the config")
	simulateCmd.Flags().Bool("chart", false, "also render the counting process of every realization as png into the output directory")
	RootCmd.AddCommand(simulateCmd)
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "simulate realizations of a state-modulated Hawkes process",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, err := cmd.Flags().GetString("sim-config")
		if err != nil {
			return err
		}

		simConfig, err := config.LoadSimulationConfig(configFile)
		if err != nil {
			return err
		}

		if n, _ := cmd.Flags().GetInt("realizations"); n > 0 {
			simConfig.Realizations = n
		}

		if cmd.Flags().Changed("seed") {
			simConfig.Seed, _ = cmd.Flags().GetInt64("seed")
		}

		if output, _ := cmd.Flags().GetString("output"); output != "" {
			simConfig.Output = output
		}

		drawChart, err := cmd.Flags().GetBool("chart")
		if err != nil {
			return err
		}

		if drawChart && simConfig.Output == "" {
			return errors.New("--chart needs an output directory")
		}

		if simConfig.Output != "" {
			if err := os.MkdirAll(simConfig.Output, 0755); err != nil {
				return err
			}
		}

		results := make([]*simulation.Result, simConfig.Realizations)

		bar := pb.Full.Start(simConfig.Realizations)
		bar.SetTemplateString(`{{ string . "log" | green}} | {{counters . }} {{bar . }} {{percent . }} {{etime . }} {{rtime . "ETA %s"}}`)

		var mu sync.Mutex
		var totalJumps int

		eg, ctx := errgroup.WithContext(context.Background())
		eg.SetLimit(parallel.Threads(viper.GetInt("threads")))
		for k := 0; k < simConfig.Realizations; k++ {
			k := k
			eg.Go(func() error {
				res, err := simConfig.Simulator.Simulate(ctx, simConfig.Seed+int64(k))
				if err != nil {
					return err
				}
				results[k] = res

				if simConfig.Output != "" {
					path := filepath.Join(simConfig.Output, fmt.Sprintf("realization-%03d.csv", k))
					if err := events.WriteFile(path, res.Realization); err != nil {
						return err
					}
				}

				if drawChart && res.Realization.NumJumps() > 0 {
					if err := writeChart(simConfig.Output, k, res, simConfig.Simulator.MaxState); err != nil {
						return err
					}
				}

				mu.Lock()
				totalJumps += res.Realization.NumJumps()
				bar.Set("log", fmt.Sprintf("jumps: %d", totalJumps))
				mu.Unlock()

				bar.Increment()
				return nil
			})
		}

		err = eg.Wait()
		bar.Finish()
		if err != nil {
			return err
		}

		printSimulationSummary(results, simConfig.Simulator.MaxState, viper.GetBool("plain"))

		if simConfig.Output != "" {
			log.Infof("wrote %d realizations to %s, end time %v", len(results), simConfig.Output, simConfig.Simulator.EndTime)
		}
		return nil
	},
}

func writeChart(dir string, k int, res *simulation.Result, maxState int) error {
	path := filepath.Join(dir, fmt.Sprintf("realization-%03d.png", k))
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := simulation.RenderPNG(f, fmt.Sprintf("realization %d", k), res.Realization, maxState); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "render %s", path)
	}

	return f.Close()
}

func printSimulationSummary(results []*simulation.Result, maxState int, plain bool) {
	header := []interface{}{"realization", "node", "jumps", "rate", "mean waiting", "std waiting"}
	t := style.NewTable(os.Stdout, "simulation", plain, header...)

	for k, res := range results {
		summary := simulation.Summarize(res.Realization, maxState)
		for _, ns := range summary.Nodes {
			t.AppendRow(table.Row{k, ns.Node, ns.Jumps, ns.Rate, ns.MeanWaiting, ns.StdDevWaiting})
		}

		if res.Terminated {
			log.Warnf("realization %d was terminated by the state policy", k)
		}

		if res.Truncated {
			log.Warnf("realization %d was truncated", k)
		}

		if summary.Occupation != nil {
			log.Infof("realization %d state occupation: %v", k, summary.Occupation)
		}
	}

	t.Render()
}
