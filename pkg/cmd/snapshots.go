package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/c9s/qrhawkes/pkg/cmd/cmdutil"
	"github.com/c9s/qrhawkes/pkg/store"
	"github.com/c9s/qrhawkes/pkg/style"
)

func init() {
	cmdutil.StoreFlags(snapshotsCmd.PersistentFlags())
	snapshotsListCmd.Flags().Bool("json", false, "print the snapshots in json format")
	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsDeleteCmd)
	RootCmd.AddCommand(snapshotsCmd)
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "manage the model snapshots of a store",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,
}

func openSnapshotStore(ctx context.Context, cmd *cobra.Command) (store.Store, error) {
	st, _, err := cmdutil.OpenStore(ctx, cmd.Flags())
	if err != nil {
		return nil, err
	}

	if st == nil {
		return nil, errors.New("--store is required")
	}
	return st, nil
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "list the snapshots in creation order",

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		printJsonFormat, err := cmd.Flags().GetBool("json")
		if err != nil {
			return err
		}

		st, err := openSnapshotStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		list, err := st.List(ctx)
		if err != nil {
			return err
		}

		if printJsonFormat {
			out, err := json.MarshalIndent(list, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		t := style.NewTable(os.Stdout, "snapshots", viper.GetBool("plain"), "id", "name", "kind", "created at")
		for _, s := range list {
			t.AppendRow(table.Row{s.ID, s.Name, s.Kind, s.CreatedAt.Format(time.RFC3339)})
		}
		t.Render()
		return nil
	},
}

var snapshotsDeleteCmd = &cobra.Command{
	Use:   "delete [id...]",
	Short: "delete snapshots by id",
	Args:  cobra.MinimumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		st, err := openSnapshotStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		for _, id := range args {
			if err := st.Delete(ctx, id); err != nil {
				return err
			}
		}
		return nil
	},
}
