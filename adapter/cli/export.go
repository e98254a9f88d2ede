package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Emit ICS of unmanaged scheduler rows",
	Long: `export walks the active manifest for unmanaged (scheduler-authored)
events and serializes them back to ICS, one VEVENT per sub-event —
useful for operators migrating rows they adopted away from gcs.

Examples:
  gcs export                  # write to stdout
  gcs export -o unmanaged.ics  # write to a file`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return errors.New("export requires a configured container")
		}

		out, err := app.Container.Export(cmd.Context())
		if err != nil {
			return err
		}

		if exportOutput == "" {
			_, err = os.Stdout.Write(out)
			return err
		}
		if err := os.WriteFile(exportOutput, out, 0o600); err != nil {
			return fmt.Errorf("writing export file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Exported to %s\n", exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}
