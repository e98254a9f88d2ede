package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/reconcile"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute and print the pending reconcile actions",
	Long: `plan runs the full three-way reconcile between the calendar and
scheduler sides and prints the directional actions it decided on,
without writing anything back to either side.

Examples:
  gcs plan`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return errors.New("plan requires a configured container")
		}

		result, err := app.Container.Plan(cmd.Context())
		if err != nil {
			return err
		}

		printWarnings(result.Warnings)
		printActions(result.Reconcile.Actions)
		return nil
	},
}

func printActions(actions []reconcile.Action) {
	if len(actions) == 0 {
		fmt.Println("No actions.")
		return
	}
	for _, a := range actions {
		if a.Type == reconcile.ActionNoop {
			continue
		}
		fmt.Printf("%s %s target=%s reason=%s\n", a.Type, a.IdentityHash, a.Target, a.Reason)
	}
}

func printWarnings(warnings []gcserr.Warning) {
	for _, w := range warnings {
		fmt.Printf("warning: %s: %s\n", w.Code, w.Message)
	}
}

func init() {
	rootCmd.AddCommand(planCmd)
}
