package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shuryanc/cloudsync/internal/syncerr"
)

var enableCmd = &cobra.Command{
	Use:   "enable <backup-id>",
	Short: "Re-arm a disabled sync root",
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

		if err := engCtx.EnableSync(id); err != nil {
			return err
		}
		fmt.Printf("enabled sync %d\n", id)
		return nil
	},
}

var disableReason string

var disableCmd = &cobra.Command{
	Use:   "disable <backup-id>",
	Short: "Stop a sync root without forgetting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid backup id %q: %w", args[0], err)
		}
		code := syncerr.NoSyncError
		if disableReason != "" {
			parsed, err := parseSyncErrCode(disableReason)
			if err != nil {
				return err
			}
			code = parsed
		}

		_, st, engCtx, err := newContext()
		if err != nil {
			return err
		}
		defer st.Close()
		defer engCtx.Close()

		if err := engCtx.DisableSync(id, code); err != nil {
			return err
		}
		fmt.Printf("disabled sync %d\n", id)
		return nil
	},
}

func init() {
	disableCmd.Flags().StringVar(&disableReason, "reason", "", "NO_SYNC_ERROR, BACKUP_MODIFIED, FS_ACCESS_LOST, REMOTE_PATH_GONE, LOCAL_PATH_GONE, QUOTA_EXCEEDED, INTERNAL_INCONSISTENCY")
}

func parseSyncErrCode(s string) (syncerr.Code, error) {
	codes := []syncerr.Code{
		syncerr.NoSyncError, syncerr.BackupModified, syncerr.FSAccessLost,
		syncerr.RemotePathGone, syncerr.LocalPathGone, syncerr.QuotaExceeded,
		syncerr.InternalInconsistency,
	}
	for _, c := range codes {
		if c.String() == s {
			return c, nil
		}
	}
	return syncerr.NoSyncError, fmt.Errorf("unknown reason %q", s)
}
