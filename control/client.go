package control

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screenrecorder"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Client struct {
	Target string
}

func NewClient(target string) *Client {
	return &Client{Target: target}
}

func (c *Client) grpcClient() (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		c.Target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a gRPC client: %w", err)
	}
	return conn, nil
}

func (c *Client) invoke(
	ctx context.Context,
	method string,
	in, out any,
) error {
	conn, err := c.grpcClient()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Invoke(ctx, method, in, out); err != nil {
		return fmt.Errorf("query error: %w", err)
	}
	return nil
}

func (c *Client) Start(
	ctx context.Context,
	req screenrecorder.StartRequest,
) (_err error) {
	logger.Debugf(ctx, "Start(ctx, %#+v)", req)
	defer func() { logger.Debugf(ctx, "/Start(ctx, %#+v): %v", req, _err) }()
	return c.invoke(ctx, methodStart, startRequestToProtobuf(req), &emptypb.Empty{})
}

func (c *Client) Stop(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Stop")
	defer func() { logger.Debugf(ctx, "/Stop: %v", _err) }()
	return c.invoke(ctx, methodStop, &emptypb.Empty{}, &emptypb.Empty{})
}

func (c *Client) IsRecording(ctx context.Context) (bool, error) {
	reply := &wrapperspb.BoolValue{}
	if err := c.invoke(ctx, methodIsRecording, &emptypb.Empty{}, reply); err != nil {
		return false, err
	}
	return reply.GetValue(), nil
}

func (c *Client) GetStats(ctx context.Context) (*screenrecorder.Stats, error) {
	reply := &structpb.Struct{}
	if err := c.invoke(ctx, methodGetStats, &emptypb.Empty{}, reply); err != nil {
		return nil, err
	}
	return statsFromProtobuf(reply), nil
}

// WaitForRecordingEnd returns when the server reports the current
// recording is finished (immediately if nothing is being recorded).
func (c *Client) WaitForRecordingEnd(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "WaitForRecordingEnd")
	defer func() { logger.Debugf(ctx, "/WaitForRecordingEnd: %v", _err) }()

	conn, err := c.grpcClient()
	if err != nil {
		return err
	}
	defer conn.Close()

	stream, err := conn.NewStream(ctx, &waitForRecordingEndStreamDesc, methodWaitForRecordingEnd)
	if err != nil {
		return fmt.Errorf("unable to open the stream: %w", err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return fmt.Errorf("unable to send the request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("unable to close the sending side: %w", err)
	}
	if err := stream.RecvMsg(&emptypb.Empty{}); err != nil {
		return fmt.Errorf("the recording ended abnormally: %w", err)
	}
	return nil
}
