package perimeter

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/domain/alarm"
	"github.com/oshokin/perimeter-alarm/internal/logger"
)

// Metadata keys identifying the caller.
const (
	MetadataHostname = "x-actor-hostname"
	MetadataUsername = "x-actor-username"
)

// Service abstracts the controller operations the transport depends on.
type Service interface {
	Arm(ctx context.Context) bool
	Disarm(ctx context.Context) bool
	Reset(ctx context.Context) alarm.Mode
	Status() *alarm.Status
	ApplyConfig(ctx context.Context, document []byte) error
}

// Server implements ControlServer.
type Server struct {
	service Service
}

var _ ControlServer = (*Server)(nil)

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{service: service}
}

// Arm requests DISARMED -> ARMING.
func (s *Server) Arm(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	changed := s.service.Arm(ctx)

	return s.reply(&Reply{Changed: changed})
}

// Disarm requests a return to DISARMED.
func (s *Server) Disarm(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	changed := s.service.Disarm(ctx)

	return s.reply(&Reply{Changed: changed})
}

// Reset forces DISARMED from any mode.
func (s *Server) Reset(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	previous := s.service.Reset(ctx)

	return s.reply(&Reply{Changed: previous != alarm.ModeDisarmed, PreviousMode: &previous})
}

// GetStatus returns the controller status.
func (s *Server) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return s.reply(new(Reply))
}

// ApplyConfig validates and applies a YAML topology document.
func (s *Server) ApplyConfig(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "topology document is required")
	}

	if err := s.service.ApplyConfig(ctx, []byte(req.GetValue())); err != nil {
		if errors.Is(err, config.ErrInvalidTopology) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}

		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}

	return s.reply(&Reply{Changed: true})
}

func (s *Server) reply(r *Reply) (*structpb.Struct, error) {
	r.Status = s.service.Status()

	out, err := encodeReply(r)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode status")
	}

	return out, nil
}

// ActorFromContext returns the caller identity sent in request metadata.
func ActorFromContext(ctx context.Context) *alarm.Actor {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}

	hostnames, usernames := md.Get(MetadataHostname), md.Get(MetadataUsername)
	if len(hostnames) == 0 && len(usernames) == 0 {
		return nil
	}

	actor := new(alarm.Actor)
	if len(hostnames) > 0 {
		actor.Hostname = hostnames[0]
	}

	if len(usernames) > 0 {
		actor.Username = usernames[0]
	}

	return actor
}

// LoggingInterceptor attaches the method and caller to the request logger
// and logs each call with its outcome.
func LoggingInterceptor(base context.Context) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = logger.ToContext(ctx, logger.FromContext(base))
		ctx = logger.WithFields(ctx, "method", info.FullMethod, "actor", ActorFromContext(ctx).String())

		started := time.Now()
		resp, err := handler(ctx, req)

		if err != nil {
			logger.WarnKV(ctx, "Request failed", "code", status.Code(err), "error", err, "elapsed", time.Since(started))
		} else {
			logger.DebugKV(ctx, "Request served", "elapsed", time.Since(started))
		}

		return resp, err
	}
}
