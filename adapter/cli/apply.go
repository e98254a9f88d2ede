package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Execute the pending reconcile actions",
	Long: `apply runs the same reconcile plan as "gcs plan" and then carries
out every executable action: calendar writes over CalDAV, a scheduler
rewrite of its flat row file, and persists the resulting manifest and
tombstones.

Examples:
  gcs apply`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return errors.New("apply requires a configured container")
		}

		result, err := app.Container.Apply(cmd.Context())
		if err != nil {
			return err
		}

		printWarnings(result.Warnings)
		printActions(result.Reconcile.Actions)
		fmt.Println("Applied.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
}
