package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var removeKeepCache bool

var removeCmd = &cobra.Command{
	Use:   "remove <backup-id>",
	Short: "Stop and forget a sync root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid backup id %q: %w", args[0], err)
		}

		_, st, engCtx, err := newContext()
		if err != nil {
			return err
		}
		defer st.Close()
		defer engCtx.Close()

		if err := engCtx.RemoveSync(id, removeKeepCache); err != nil {
			return err
		}
		fmt.Printf("removed sync %d\n", id)
		return nil
	},
}

func init() {
	removeCmd.Flags().BoolVar(&removeKeepCache, "keep-cache", false, "keep the shadow-tree cache for a later re-add")
}
