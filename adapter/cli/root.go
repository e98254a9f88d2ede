package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gcssync/gcs/internal/core/gcserr"
)

var (
	cfgFile string
	verbose bool
	logger  *slog.Logger
)

type commandContext struct {
	correlationID uuid.UUID
	startedAt     time.Time
}

type commandContextKey struct{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gcs",
	Short: "GCS - calendar/scheduler reconciler",
	Long: `gcs reconciles an ICS calendar source against a show scheduler's
flat execution file, keeping calendar-authored entries and
scheduler-authored entries in sync without either side silently
clobbering the other.

	plan computes the pending actions, apply carries them out, adopt
	imports scheduler rows the tool doesn't manage yet, and export
	writes unmanaged rows back out as ICS.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = slog.Default()
		}
		ctx := cmd.Context()
		info := commandContext{
			correlationID: uuid.New(),
			startedAt:     time.Now(),
		}
		cmd.SetContext(context.WithValue(ctx, commandContextKey{}, info))
		logger.Info("command start",
			"command", cmd.CommandPath(),
			"correlation_id", info.correlationID.String(),
		)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = slog.Default()
		}
		info, ok := cmd.Context().Value(commandContextKey{}).(commandContext)
		if !ok {
			return
		}
		logger.Info("command end",
			"command", cmd.CommandPath(),
			"correlation_id", info.correlationID.String(),
			"duration_ms", time.Since(info.startedAt).Milliseconds(),
		)
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately, exiting with one of the stable codes assigned to each
// gcserr.Kind: 0 success, 2 invariant violation, 3 safety-stop, 4 I/O
// failure, 1 anything else (flag errors, source malformation left
// uncaught by a command's own warning handling).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var gerr *gcserr.Error
	if errors.As(err, &gerr) {
		switch gerr.Kind {
		case gcserr.KindInvariantViolation:
			return 2
		case gcserr.KindSafetyStop:
			return 3
		case gcserr.KindIOError:
			return 4
		}
	}
	return 1
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// SetLogger sets the CLI logger.
func SetLogger(l *slog.Logger) {
	logger = l
}
