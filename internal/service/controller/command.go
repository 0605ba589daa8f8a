package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/oshokin/perimeter-alarm/internal/actuator"
	api "github.com/oshokin/perimeter-alarm/internal/api/grpc/perimeter"
	"github.com/oshokin/perimeter-alarm/internal/arming"
	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/dispatch"
	"github.com/oshokin/perimeter-alarm/internal/logger"
	"github.com/oshokin/perimeter-alarm/internal/transport/mqtt"
	"github.com/oshokin/perimeter-alarm/internal/version"
)

// Options controls the perimeter-controller process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ListenAddress overrides the gRPC listen address from the settings.
	ListenAddress string
	// DryRun logs camera and NVR commands instead of sending them.
	DryRun bool
	// LogLevel overrides the log level from the settings.
	LogLevel string
}

// shutdownTimeout bounds draining in-flight actuations on exit.
const shutdownTimeout = 10 * time.Second

// ErrUnknownLogLevel is returned for a log level zap does not know.
var ErrUnknownLogLevel = errors.New("unknown log level")

// Run starts the controller and blocks until ctx is canceled or the gRPC server stops.
//
//nolint:funlen // Process wiring reads best top to bottom.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "perimeter-controller")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = applyOverrides(cfg, opts); err != nil {
		return err
	}

	ctx = logger.WithKV(ctx, "controller_id", cfg.ControllerID)

	logger.InfoKV(
		ctx,
		"Starting controller",
		"version", version.Short(),
		"dry_run", cfg.DryRun,
		"policy", cfg.Topology.Policy,
		"countdown", cfg.Topology.CountdownDuration,
	)

	relay := new(relayOutput)

	disp := dispatch.New(
		ctx,
		actuator.NewClient(cfg.Credentials, cfg.Timeout),
		dispatch.WithDryRun(cfg.DryRun),
		dispatch.WithMaxConcurrent(cfg.MaxConcurrentActuations),
		dispatch.WithRelay(relay),
	)

	machine, err := arming.New(&cfg.Topology, disp)
	if err != nil {
		return fmt.Errorf("build arming machine: %w", err)
	}

	svc := newService(machine, opts.ConfigPath, cfg.PersistAppliedConfig)

	var (
		bridge *mqtt.Bridge
		link   linkCloser
	)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		shutdown(shutdownCtx, machine, disp, link)
	}()

	if cfg.MQTT.Broker == "" {
		logger.Warn(ctx, "No MQTT broker configured, only the gRPC control API is available")
		machine.Start(ctx, false)
	} else {
		bridge, err = mqtt.Dial(ctx, cfg.MQTT, cfg.ControllerID, cfg.Timeout, machine, svc.ApplyConfig)
		if err != nil {
			return fmt.Errorf("dial MQTT: %w", err)
		}

		link = bridge
		relay.set(bridge)

		closed, probeErr := bridge.ProbeSwitch(ctx, cfg.MQTT.SwitchProbeTimeout)
		if probeErr != nil {
			logger.WarnKV(ctx, "Failed to read arm switch, assuming open", "error", probeErr)
		}

		machine.Start(ctx, closed)

		if err = bridge.Subscribe(ctx); err != nil {
			return fmt.Errorf("subscribe to MQTT inputs: %w", err)
		}
	}

	return serve(ctx, cfg.ListenAddress, svc)
}

type machineCloser interface {
	Close()
}

type dispatchCloser interface {
	Close(ctx context.Context) error
	Stats() dispatch.Stats
}

type linkCloser interface {
	Close(ctx context.Context)
}

// shutdown stops input first and disconnects MQTT last: draining the dispatcher
// switches a pulsing relay off, which is published over the MQTT link.
func shutdown(ctx context.Context, machine machineCloser, disp dispatchCloser, link linkCloser) {
	machine.Close()

	if err := disp.Close(ctx); err != nil {
		logger.WarnKV(ctx, "Actuations still running at exit", "error", err)
	}

	if link != nil {
		link.Close(ctx)
	}

	stats := disp.Stats()
	logger.InfoKV(ctx, "Controller stopped",
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"abandoned", stats.Abandoned,
		"superseded", stats.Superseded,
	)
}

// applyOverrides merges command line options into the loaded settings.
func applyOverrides(cfg *config.Config, opts *Options) error {
	if opts.ListenAddress != "" {
		cfg.ListenAddress = opts.ListenAddress
	}

	if opts.DryRun {
		cfg.DryRun = true
	}

	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	if cfg.LogLevel == "" {
		return nil
	}

	level, ok := logger.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLogLevel, cfg.LogLevel)
	}

	logger.SetLevel(level)

	return nil
}

// serve runs the gRPC control API until ctx ends.
func serve(ctx context.Context, listenAddress string, svc api.Service) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(api.LoggingInterceptor(ctx)))
	api.RegisterControlServer(grpcServer, api.NewServer(svc))

	logger.InfoKV(ctx, "Control API listening", "listen_address", lis.Addr().String())

	// Closed after GracefulStop so Run returns only once the server has stopped.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()
		close(done)
	}()

	if err = grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}
