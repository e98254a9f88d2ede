package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var adoptCmd = &cobra.Command{
	Use:   "adopt",
	Short: "Import existing scheduler rows as unmanaged events",
	Long: `adopt reads the scheduler's current rows as-is and upserts each
into the active manifest as unmanaged, so a first reconcile doesn't
treat a scheduler that already has shows configured as having nothing
but orphans to delete.

Examples:
  gcs adopt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return errors.New("adopt requires a configured container")
		}

		manifest, err := app.Container.Adopt(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Adopted. Manifest now holds %d event(s).\n", len(manifest.Events))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adoptCmd)
}
