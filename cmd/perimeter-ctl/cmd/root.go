package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/service/client"
	"github.com/oshokin/perimeter-alarm/internal/version"
)

var (
	// address of the controller's gRPC control API.
	address string
	// timeout bounds each call.
	timeout time.Duration
	// watchInterval polls status when positive.
	watchInterval time.Duration

	// rootCmd represents the base command of the operator CLI.
	rootCmd = &cobra.Command{
		Use:   "perimeter-ctl",
		Short: "Control a perimeter alarm controller.",
		Long: `Talks to a perimeter-controller over its gRPC control API.

Every call carries the local user and hostname so the controller can log who
armed, disarmed or reconfigured it.`,
	}

	armCmd = &cobra.Command{
		Use:   "arm",
		Short: "Start the arming countdown.",
		Args:  cobra.NoArgs,
		RunE:  runOperation(client.OperationArm),
	}

	disarmCmd = &cobra.Command{
		Use:   "disarm",
		Short: "Disarm, interrupting a running countdown.",
		Args:  cobra.NoArgs,
		RunE:  runOperation(client.OperationDisarm),
	}

	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Force the controller to disarmed and clear recorded triggers.",
		Args:  cobra.NoArgs,
		RunE:  runOperation(client.OperationReset),
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print mode, countdown and the last incident.",
		Args:  cobra.NoArgs,
		RunE:  runOperation(client.OperationStatus),
	}

	applyCmd = &cobra.Command{
		Use:   "apply <topology.yaml>",
		Short: "Validate and apply a new topology.",
		Long: `Sends a topology document to the controller.

The document has the same layout as the topology section of the controller's
settings file. An invalid document is rejected and the running topology stays
in place.`,
		Args: cobra.ExactArgs(1),
		RunE: runOperation(client.OperationApply),
	}
)

func runOperation(op client.Operation) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		options := &client.Options{
			Address:   address,
			Timeout:   timeout,
			Operation: op,
			Output:    cmd.OutOrStdout(),
		}

		if op == client.OperationApply {
			options.DocumentPath = args[0]
		}

		if op == client.OperationStatus {
			options.Watch = watchInterval
		}

		return client.Run(ctx, options)
	}
}

// Execute runs the perimeter-ctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&address, "address", "a", config.DefaultListenAddress, "controller gRPC address")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", config.DefaultTimeout, "per-call timeout")

	statusCmd.Flags().DurationVarP(&watchInterval, "watch", "w", 0, "poll status at this interval until interrupted")

	rootCmd.AddCommand(armCmd, disarmCmd, resetCmd, statusCmd, applyCmd)
}
