package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/service/controller"
	"github.com/oshokin/perimeter-alarm/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// listenAddress overrides the gRPC listen address.
	listenAddress string
	// dryRun logs camera and NVR commands instead of sending them.
	dryRun bool
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd represents the base command for running the controller.
	rootCmd = &cobra.Command{
		Use:   "perimeter-controller",
		Short: "Run the perimeter alarm controller.",
		Long: `Runs the arming state machine for one perimeter controller.

Sensor edges, the physical arm switch, the reset button and the auxiliary relay
are exchanged over MQTT when a broker is configured. Confirmed intrusions pulse
the cameras' alarm inputs; arming and disarming drive the NVR alarm relays and
the status beacon over HTTP.

Operators arm, disarm, reset, inspect and reconfigure the controller through its
gRPC control API, for example with perimeter-ctl.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return controller.Run(ctx, &controller.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				DryRun:        dryRun,
				LogLevel:      logLevel,
			})
		},
	}
)

// Execute runs the perimeter-controller CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&listenAddress, "listen", "l", "", "gRPC listen address, overrides listen_addr")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log camera and NVR commands instead of sending them")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}
