package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shuryanc/cloudsync/internal/config"
	"github.com/shuryanc/cloudsync/internal/model"
)

var (
	addLocalPath  string
	addRemotePath string
	addSyncType   string
	addConflict   string
	addDisabled   bool
	addDrivePath  string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new sync root",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addLocalPath == "" || addRemotePath == "" {
			return fmt.Errorf("--local and --remote are required")
		}
		conflict, err := config.ParseConflictPolicy(addConflict)
		if err != nil {
			return err
		}
		cfg := model.SyncConfig{
			LocalPath:  addLocalPath,
			RemotePath: addRemotePath,
			DrivePath:  addDrivePath,
			Type:       config.ParseSyncType(addSyncType),
			Conflict:   conflict,
			Enabled:    !addDisabled,
		}

		_, st, engCtx, err := newContext()
		if err != nil {
			return err
		}
		defer st.Close()
		defer engCtx.Close()

		id, err := engCtx.AddSync(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("added sync %d: %s <-> %s\n", id, addLocalPath, addRemotePath)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addLocalPath, "local", "", "local directory to sync")
	addCmd.Flags().StringVar(&addRemotePath, "remote", "", "remote directory to sync")
	addCmd.Flags().StringVar(&addSyncType, "type", "two_way", "sync type: two_way or backup")
	addCmd.Flags().StringVar(&addConflict, "conflict-policy", "debris", "debris, rename_local, rename_remote, force_upload, force_download")
	addCmd.Flags().StringVar(&addDrivePath, "drive-path", "", "removable drive mount point, for an external backup")
	addCmd.Flags().BoolVar(&addDisabled, "disabled", false, "register without starting")
}
