package control

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/xsync"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type GRPCServer struct {
	GRPCServer *grpc.Server
	Recorder   screenrecorder.Recorder
	IsStarted  bool

	BeltLocker xsync.Mutex
	Belt       *belt.Belt
}

var _ ControlServer = (*GRPCServer)(nil)

func NewServer(recorder screenrecorder.Recorder) *GRPCServer {
	srv := &GRPCServer{
		GRPCServer: grpc.NewServer(),
		Recorder:   recorder,
	}
	RegisterControlServer(srv.GRPCServer, srv)
	return srv
}

func (srv *GRPCServer) Serve(
	ctx context.Context,
	listener net.Listener,
) error {
	if srv.IsStarted {
		panic("this GRPC server was already started at least once")
	}
	srv.IsStarted = true
	srv.BeltLocker.Do(ctx, func() {
		srv.Belt = belt.CtxBelt(ctx)
	})
	logger.Debugf(ctx, "serving the control API at %s", listener.Addr())
	return srv.GRPCServer.Serve(listener)
}

// ctx propagates the server's logger into the request contexts.
func (srv *GRPCServer) ctx(ctx context.Context) context.Context {
	b := xsync.DoR1(xsync.WithNoLogging(ctx, true), &srv.BeltLocker, func() *belt.Belt {
		return srv.Belt
	})
	if b == nil {
		return ctx
	}
	return belt.CtxWithBelt(ctx, b)
}

func (srv *GRPCServer) Start(
	ctx context.Context,
	in *structpb.Struct,
) (_ *emptypb.Empty, _err error) {
	ctx = srv.ctx(ctx)
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()

	req, err := startRequestFromProtobuf(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "unable to parse the request: %v", err)
	}

	err = srv.Recorder.Start(ctx, req)
	switch {
	case err == nil:
		return &emptypb.Empty{}, nil
	case errors.Is(err, screenrecorder.ErrSessionActive):
		return nil, status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, screenrecorder.ErrInvalidRequest):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	default:
		return nil, status.Error(codes.Internal, err.Error())
	}
}

func (srv *GRPCServer) Stop(
	ctx context.Context,
	_ *emptypb.Empty,
) (*emptypb.Empty, error) {
	srv.Recorder.Stop(srv.ctx(ctx))
	return &emptypb.Empty{}, nil
}

func (srv *GRPCServer) IsRecording(
	ctx context.Context,
	_ *emptypb.Empty,
) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(srv.Recorder.IsRecording()), nil
}

func (srv *GRPCServer) GetStats(
	ctx context.Context,
	_ *emptypb.Empty,
) (*structpb.Struct, error) {
	stats, err := srv.Recorder.GetStats(srv.ctx(ctx))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return statsToProtobuf(stats), nil
}

func (srv *GRPCServer) WaitForRecordingEnd(
	_ *emptypb.Empty,
	stream grpc.ServerStream,
) (_err error) {
	ctx := srv.ctx(stream.Context())
	logger.Debugf(ctx, "WaitForRecordingEnd")
	defer func() { logger.Debugf(ctx, "/WaitForRecordingEnd: %v", _err) }()

	err := srv.Recorder.WaitForRecordingEnd(ctx)
	if ctx.Err() != nil {
		return status.FromContextError(ctx.Err()).Err()
	}
	if err != nil {
		return status.Error(codes.Aborted, fmt.Sprintf("the recording ended with an error: %v", err))
	}
	return stream.SendMsg(&emptypb.Empty{})
}
