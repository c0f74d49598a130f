package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var driveOpenCmd = &cobra.Command{
	Use:   "drive-open <mount-path>",
	Short: "Revive every external backup bound to a removable drive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, engCtx, err := newContext()
		if err != nil {
			return err
		}
		defer st.Close()
		defer engCtx.Close()

		ids, err := engCtx.BackupOpenDrive(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("revived %d sync(s): %v\n", len(ids), ids)
		return nil
	},
}
