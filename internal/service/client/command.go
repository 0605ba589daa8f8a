package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	api "github.com/oshokin/perimeter-alarm/internal/api/grpc/perimeter"
	"github.com/oshokin/perimeter-alarm/internal/domain/alarm"
	"github.com/oshokin/perimeter-alarm/internal/logger"
	"github.com/oshokin/perimeter-alarm/internal/service/common"
)

// Operation names a control call.
type Operation string

// Supported operations.
const (
	OperationArm    Operation = "arm"
	OperationDisarm Operation = "disarm"
	OperationReset  Operation = "reset"
	OperationStatus Operation = "status"
	OperationApply  Operation = "apply"
)

// Options configures one perimeter-ctl invocation.
type Options struct {
	// Address is the controller's gRPC address.
	Address string
	// Timeout bounds each call.
	Timeout time.Duration
	// Operation selects the call.
	Operation Operation
	// DocumentPath is the topology file sent by apply.
	DocumentPath string
	// Watch polls status at this interval when positive.
	Watch time.Duration
	// Output receives the printed status, stdout when nil.
	Output io.Writer
}

var (
	// ErrUnknownOperation is returned for an operation the CLI does not know.
	ErrUnknownOperation = errors.New("unknown operation")
	// errDocumentPathRequired is returned when apply has no file.
	errDocumentPathRequired = errors.New("topology file path is required")
)

// Run performs the requested operation and prints the result.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "perimeter-ctl")

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var document []byte

	switch opts.Operation {
	case OperationArm, OperationDisarm, OperationReset, OperationStatus:
	case OperationApply:
		if opts.DocumentPath == "" {
			return errDocumentPathRequired
		}

		data, err := os.ReadFile(filepath.Clean(opts.DocumentPath))
		if err != nil {
			return fmt.Errorf("read topology: %w", err)
		}

		document = data
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperation, opts.Operation)
	}

	actor, err := common.DetectActor()
	if err != nil {
		return err
	}

	client, err := common.Dial(ctx, opts.Address, common.WithCallTimeout(opts.Timeout), common.WithActor(actor))
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	logger.DebugKV(ctx, "Calling controller", "address", opts.Address, "operation", opts.Operation, "actor", actor)

	if opts.Operation == OperationStatus && opts.Watch > 0 {
		return watch(ctx, client, opts.Watch, out)
	}

	var reply *api.Reply

	switch opts.Operation {
	case OperationArm:
		reply, err = client.Arm(ctx)
	case OperationDisarm:
		reply, err = client.Disarm(ctx)
	case OperationReset:
		reply, err = client.Reset(ctx)
	case OperationApply:
		reply, err = client.ApplyConfig(ctx, document)
	default:
		reply, err = client.Status(ctx)
	}

	if err != nil {
		return fmt.Errorf("%s: %w", opts.Operation, err)
	}

	_, err = fmt.Fprintln(out, formatReply(opts.Operation, reply))

	return err
}

// watch prints the status every interval until ctx ends.
// Failed polls are logged and retried on the next tick.
func watch(ctx context.Context, client *common.Client, interval time.Duration, out io.Writer) error {
	poll := func() {
		reply, err := client.Status(ctx)
		if err != nil {
			logger.ErrorKV(ctx, "Status failed", "error", err)
			return
		}

		_, _ = fmt.Fprintln(out, formatReply(OperationStatus, reply))
	}

	poll()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			poll()
		}
	}
}

// formatReply renders a reply on one line.
func formatReply(op Operation, reply *api.Reply) string {
	if reply == nil || reply.Status == nil {
		return "<no status>"
	}

	s := reply.Status

	var b strings.Builder

	switch op {
	case OperationArm, OperationDisarm:
		if !reply.Changed {
			b.WriteString("unchanged: ")
		}
	case OperationReset:
		if reply.PreviousMode != nil {
			fmt.Fprintf(&b, "reset from %s: ", reply.PreviousMode)
		}
	case OperationApply:
		b.WriteString("applied: ")
	case OperationStatus:
	}

	b.WriteString(s.Mode.String())

	if s.Mode == alarm.ModeArming {
		fmt.Fprintf(&b, " (%s left)", s.CountdownRemaining.Round(time.Second))
	}

	if !s.Since.IsZero() {
		fmt.Fprintf(&b, " since %s", s.Since.Format(time.RFC3339))
	}

	fmt.Fprintf(&b, ", policy %s, %d cameras, %d detectors, %d rules", s.Policy, s.Cameras, s.Detectors, s.Rules)

	if i := s.LastIncident; i != nil {
		fmt.Fprintf(
			&b,
			", last incident %s by %s at %s (cameras %s, detectors %s)",
			i.ID,
			i.Rule,
			i.ConfirmedAt.Format(time.RFC3339),
			strings.Join(i.Cameras, ","),
			strings.Join(i.Detectors, ","),
		)
	}

	return b.String()
}
