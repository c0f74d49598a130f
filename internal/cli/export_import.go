package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Serialize every registered sync root to the wire envelope",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		blob, err := st.ExportAll()
		if err != nil {
			return err
		}
		if exportOut == "" || exportOut == "-" {
			_, err = os.Stdout.Write(blob)
			return err
		}
		return os.WriteFile(exportOut, blob, 0o600)
	},
}

var importIn string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Restore sync roots from an exported wire envelope, disabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		if importIn == "" {
			return fmt.Errorf("--in is required")
		}
		blob, err := os.ReadFile(importIn)
		if err != nil {
			return err
		}

		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ids, err := st.ImportAll(blob)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d sync(s): %v\n", len(ids), ids)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "-", "output file, or - for stdout")
	importCmd.Flags().StringVar(&importIn, "in", "", "exported wire envelope to import")
}
