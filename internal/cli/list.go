package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shuryanc/cloudsync/internal/model"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered sync root",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTATE\tENABLED\tLOCAL\tREMOTE\tLAST_ERROR")
		err = st.ForEach(func(cfg model.SyncConfig) error {
			state := "-"
			if cfg.Type == model.TypeBackup {
				state = cfg.BackupState.String()
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%s\t%s\t%s\n",
				cfg.BackupID, cfg.Type, state, cfg.Enabled, cfg.LocalPath, cfg.RemotePath, cfg.LastError)
			return nil
		})
		if err != nil {
			return err
		}
		return w.Flush()
	},
}
