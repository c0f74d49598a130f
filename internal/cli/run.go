package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Restore every enabled sync and run until interrupted",
	Long: `run brings up a Sync for every enabled config in the store
(the same set Restore would re-arm after a crash) and blocks until
SIGINT or SIGTERM, mirroring the teacher's daemon main loop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, engCtx, err := newContext()
		if err != nil {
			return err
		}
		defer st.Close()
		defer engCtx.Close()

		if err := engCtx.Restore(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}
