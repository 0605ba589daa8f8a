//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/oshokin/perimeter-alarm/internal/api/grpc/perimeter"
	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/domain/alarm"
)

// Client wraps the control API client with timeouts and caller identity.
type Client struct {
	// conn is the underlying gRPC connection to the controller.
	conn *grpc.ClientConn
	// api is the control service client.
	api *api.ControlClient

	// actor is sent as request metadata when set.
	actor *alarm.Actor
	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithActor identifies the caller on every request.
func WithActor(actor *alarm.Actor) Option {
	return func(c *Client) {
		c.actor = actor.Clone()
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errDocumentRequired is returned when ApplyConfig gets an empty document.
	errDocumentRequired = errors.New("topology document must be provided")
)

// Dial establishes a gRPC connection to the controller.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial controller: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         api.NewControlClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Arm requests the controller to start arming.
func (c *Client) Arm(ctx context.Context) (*api.Reply, error) {
	return c.call(ctx, "arm", c.api.Arm)
}

// Disarm requests the controller to disarm.
func (c *Client) Disarm(ctx context.Context) (*api.Reply, error) {
	return c.call(ctx, "disarm", c.api.Disarm)
}

// Reset forces the controller to DISARMED.
func (c *Client) Reset(ctx context.Context) (*api.Reply, error) {
	return c.call(ctx, "reset", c.api.Reset)
}

// Status retrieves the controller status.
func (c *Client) Status(ctx context.Context) (*api.Reply, error) {
	return c.call(ctx, "get status", c.api.GetStatus)
}

// ApplyConfig sends a YAML topology document.
func (c *Client) ApplyConfig(ctx context.Context, document []byte) (*api.Reply, error) {
	if len(document) == 0 {
		return nil, errDocumentRequired
	}

	return c.call(ctx, "apply config", func(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
		return c.api.ApplyConfig(ctx, string(document), opts...)
	})
}

func (c *Client) call(
	ctx context.Context,
	name string,
	invoke func(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error),
) (*api.Reply, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	out, err := invoke(callCtx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	reply, err := api.DecodeReply(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return reply, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline. The actor is
// attached as outgoing metadata.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.actor != nil {
		ctx = metadata.AppendToOutgoingContext(ctx,
			api.MetadataHostname, c.actor.Hostname,
			api.MetadataUsername, c.actor.Username,
		)
	}

	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
