package visualiser

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Method names on the wire.
const (
	ServiceName    = "slamsim.Visualiser"
	FramesMethod   = "/" + ServiceName + "/Frames"
	StatsMethod    = "/" + ServiceName + "/Stats"
	framesStreamIx = 0
)

// VisualiserServer is the service implementation. Frames and their
// requests are structpb.Struct so no generated code is needed.
type VisualiserServer interface {
	Frames(req *structpb.Struct, stream FrameStream) error
	Stats(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// FrameStream is the server side of a Frames call.
type FrameStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

type frameStream struct{ grpc.ServerStream }

func (s frameStream) Send(m *structpb.Struct) error { return s.ServerStream.SendMsg(m) }

func framesHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(VisualiserServer).Frames(req, frameStream{stream})
}

func statsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VisualiserServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StatsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VisualiserServer).Stats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VisualiserServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Frames", Handler: framesHandler, ServerStreams: true},
	},
	Metadata: "slamsim/visualiser.proto",
}

// RegisterVisualiserServer registers srv on s.
func RegisterVisualiserServer(s grpc.ServiceRegistrar, srv VisualiserServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Server implements VisualiserServer on top of a Publisher.
type Server struct {
	publisher *Publisher
	stop      <-chan struct{}
}

var _ VisualiserServer = (*Server)(nil)

// NewServer creates a new gRPC service backed by publisher.
func NewServer(publisher *Publisher) *Server {
	return &Server{publisher: publisher}
}

// Frames streams every published frame, filtered by the request options,
// until the client goes away or the server stops.
func (s *Server) Frames(req *structpb.Struct, stream FrameStream) error {
	opts := ParseStreamOptions(req)
	sub, err := s.publisher.subscribe()
	if err != nil {
		if errors.Is(err, ErrTooManyClients) {
			return status.Error(codes.ResourceExhausted, err.Error())
		}
		return status.Error(codes.Internal, err.Error())
	}
	defer s.publisher.unsubscribe(sub.id)

	ctx := stream.Context()
	var n uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case f := <-sub.frames:
			n++
			if opts.Every > 1 && (n-1)%uint64(opts.Every) != 0 {
				continue
			}
			msg, err := FrameToStruct(f, opts)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// Stats reports the publisher counters.
func (s *Server) Stats(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := s.publisher.Stats()
	return structpb.NewStruct(map[string]interface{}{
		"frames":  float64(st.Frames),
		"dropped": float64(st.Dropped),
		"clients": float64(st.Clients),
	})
}

// Client is a thin client for the Visualiser service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// FrameReceiver yields streamed frames.
type FrameReceiver interface {
	Recv() (*structpb.Struct, error)
}

type frameReceiver struct{ grpc.ClientStream }

func (r frameReceiver) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := r.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Frames opens a frame stream with the given options.
func (c *Client) Frames(ctx context.Context, opts StreamOptions, callOpts ...grpc.CallOption) (FrameReceiver, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[framesStreamIx], FramesMethod, callOpts...)
	if err != nil {
		return nil, err
	}
	req, err := opts.Struct()
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return frameReceiver{stream}, nil
}

// Stats fetches the publisher counters.
func (c *Client) Stats(ctx context.Context, callOpts ...grpc.CallOption) (PublisherStats, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, StatsMethod, &emptypb.Empty{}, out, callOpts...); err != nil {
		return PublisherStats{}, err
	}
	m := out.AsMap()
	num := func(k string) float64 {
		v, _ := m[k].(float64)
		return v
	}
	return PublisherStats{
		Frames:  uint64(num("frames")),
		Dropped: uint64(num("dropped")),
		Clients: int(num("clients")),
	}, nil
}
