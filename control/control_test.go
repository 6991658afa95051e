package control

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/screenrecorder/controller"
	"github.com/xaionaro-go/screenrecorder/pipeline/mock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func startServer(t *testing.T) (*Client, *mock.Backend) {
	b := mock.NewBackend()
	cfg := screenrecorder.DefaultConfig()
	cfg.DequeueTimeout = 20 * time.Millisecond
	cfg.AudioJoinTimeout = 2 * time.Second
	srv := NewServer(controller.New(b, cfg))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(context.Background(), listener)
	t.Cleanup(srv.GRPCServer.Stop)

	return NewClient(listener.Addr().String()), b
}

func TestStartRequestConversion(t *testing.T) {
	req := screenrecorder.StartRequest{
		CaptureToken: screenrecorder.NewCaptureToken("tok"),
		OutputPath:   "/sdcard/out.mp4",
		Width:        720,
		Height:       1280,
		Rotation:     screenrecorder.Rotation270,
		Priority:     screenrecorder.PriorityNorm,
		MaxDuration:  90 * time.Second,
	}
	parsed, err := startRequestFromProtobuf(startRequestToProtobuf(req))
	require.NoError(t, err)
	require.Equal(t, req.CaptureToken.Get(), parsed.CaptureToken.Get())
	req.CaptureToken, parsed.CaptureToken = screenrecorder.CaptureToken{}, screenrecorder.CaptureToken{}
	require.Equal(t, req, parsed)

	s := startRequestToProtobuf(req)
	delete(s.Fields, fieldRotation)
	delete(s.Fields, fieldPriority)
	parsed, err = startRequestFromProtobuf(s)
	require.NoError(t, err)
	require.Equal(t, screenrecorder.RotationUnset, parsed.Rotation)
	require.Equal(t, screenrecorder.PriorityUndefined, parsed.Priority)
}

func TestControlRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, b := startServer(t)

	recording, err := client.IsRecording(ctx)
	require.NoError(t, err)
	require.False(t, recording)

	// nothing to wait for
	require.NoError(t, client.WaitForRecordingEnd(ctx))

	req := screenrecorder.StartRequest{
		CaptureToken: screenrecorder.NewCaptureToken("tok"),
		OutputPath:   filepath.Join(t.TempDir(), "out.mp4"),
		Width:        1080,
		Height:       1920,
		Rotation:     screenrecorder.Rotation0,
	}
	require.NoError(t, client.Start(ctx, req))

	err = client.Start(ctx, req)
	require.Error(t, err)
	require.Equal(t, codes.AlreadyExists, status.Code(unwrapAll(err)))

	recording, err = client.IsRecording(ctx)
	require.NoError(t, err)
	require.True(t, recording)

	require.Eventually(t, func() bool {
		stats, err := client.GetStats(ctx)
		require.NoError(t, err)
		return stats.VideoSamplesWritten > 0
	}, 5*time.Second, 5*time.Millisecond)

	waitErr := make(chan error, 1)
	go func() { waitErr <- client.WaitForRecordingEnd(ctx) }()

	require.NoError(t, client.Stop(ctx))
	require.NoError(t, <-waitErr)
	require.True(t, b.Writer().IsFinalized())

	recording, err = client.IsRecording(ctx)
	require.NoError(t, err)
	require.False(t, recording)
}

func TestControlInvalidArgument(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, _ := startServer(t)

	err := client.Start(ctx, screenrecorder.StartRequest{OutputPath: "out.txt"})
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(unwrapAll(err)))
}

func unwrapAll(err error) error {
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			return err
		}
		err = u.Unwrap()
	}
}
