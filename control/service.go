// Package control exposes a screenrecorder.Recorder over gRPC.
//
// The messages are protobuf well-known types, so no generated code is
// needed: the start request is a Struct (see the field* constants),
// the replies are Empty, BoolValue or Struct.
package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "screenrecorder.Control"

const (
	methodStart               = "/" + serviceName + "/Start"
	methodStop                = "/" + serviceName + "/Stop"
	methodIsRecording         = "/" + serviceName + "/IsRecording"
	methodGetStats            = "/" + serviceName + "/GetStats"
	methodWaitForRecordingEnd = "/" + serviceName + "/WaitForRecordingEnd"
)

// ControlServer is the server side of the control service.
type ControlServer interface {
	Start(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Stop(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	IsRecording(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WaitForRecordingEnd(*emptypb.Empty, grpc.ServerStream) error
}

func unaryHandler[REQ any, REPLY any](
	fullMethod string,
	call func(ControlServer, context.Context, *REQ) (REPLY, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(
		srv any,
		ctx context.Context,
		dec func(any) error,
		interceptor grpc.UnaryServerInterceptor,
	) (any, error) {
		in := new(REQ)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(ControlServer), ctx, req.(*REQ))
		})
	}
}

var waitForRecordingEndStreamDesc = grpc.StreamDesc{
	StreamName:    "WaitForRecordingEnd",
	ServerStreams: true,
	Handler: func(srv any, stream grpc.ServerStream) error {
		in := new(emptypb.Empty)
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		return srv.(ControlServer).WaitForRecordingEnd(in, stream)
	},
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Start",
			Handler:    unaryHandler(methodStart, ControlServer.Start),
		},
		{
			MethodName: "Stop",
			Handler:    unaryHandler(methodStop, ControlServer.Stop),
		},
		{
			MethodName: "IsRecording",
			Handler:    unaryHandler(methodIsRecording, ControlServer.IsRecording),
		},
		{
			MethodName: "GetStats",
			Handler:    unaryHandler(methodGetStats, ControlServer.GetStats),
		},
	},
	Streams:  []grpc.StreamDesc{waitForRecordingEndStreamDesc},
	Metadata: "screenrecorder/control",
}

func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&serviceDesc, srv)
}
