package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/screenrecorder/control"
	"github.com/xaionaro-go/screenrecorder/controller"
	"github.com/xaionaro-go/screenrecorder/libav"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s --output <file.mp4> [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        %s --listen-addr <host:port> [options]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	backendCfg := libav.DefaultConfig()
	priority := screenrecorder.PriorityUndefined
	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	pflag.Var(&priority, "priority", "the scheduling priority of the capture threads: min, norm or max")
	configPath := pflag.String("config", "", "path to a YAML config file")
	listenAddr := pflag.String("listen-addr", "", "serve the control API at this address instead of recording right away")
	outputPath := pflag.String("output", "", "the MP4 file to record into")
	resolutionStr := pflag.String("resolution", "1080p", "the screen resolution: a preset name or '<width>x<height>'")
	rotationStr := pflag.String("rotation", "", "the rotation of the recording: 0, 90, 180 or 270")
	maxDuration := pflag.Duration("max-duration", 0, "stop the recording after this time (0 means the configured default)")
	captureToken := pflag.String("capture-token", "", "the capture grant (for the libav backend: the URL of the screen)")
	pflag.StringVar(&backendCfg.DisplayInputFormat, "display-format", backendCfg.DisplayInputFormat, "the libav input format grabbing the screen")
	pflag.StringVar(&backendCfg.DisplayURL, "display-url", backendCfg.DisplayURL, "the screen to grab if no capture token is given")
	pflag.StringVar(&backendCfg.AudioInputFormat, "audio-format", backendCfg.AudioInputFormat, "the libav input format grabbing the audio")
	pflag.StringVar(&backendCfg.AudioURL, "audio-url", backendCfg.AudioURL, "the audio device to record")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()
	if len(pflag.Args()) != 0 || (*outputPath == "") == (*listenAddr == "") {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelFn()
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	cfg := screenrecorder.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = screenrecorder.LoadConfig(*configPath)
		if err != nil {
			l.Fatal(err)
		}
	}

	backend, err := libav.NewBackend(ctx, backendCfg)
	if err != nil {
		l.Fatal(err)
	}
	recorder := controller.New(backend, cfg)

	if *listenAddr != "" {
		if err := serve(ctx, recorder, *listenAddr); err != nil {
			l.Fatal(err)
		}
		return
	}

	resolution, err := screenrecorder.ParseResolution(*resolutionStr)
	if err != nil {
		l.Fatal(err)
	}
	rotation, err := screenrecorder.ParseRotation(*rotationStr)
	if err != nil {
		l.Fatal(err)
	}
	width, height := screenrecorder.OrientDimensions(resolution.Width, resolution.Height, rotation)

	req := screenrecorder.StartRequest{
		CaptureToken: screenrecorder.NewCaptureToken(*captureToken),
		OutputPath:   *outputPath,
		Width:        width,
		Height:       height,
		Rotation:     rotation,
		Priority:     priority,
		MaxDuration:  *maxDuration,
	}
	if err := record(ctx, recorder, req); err != nil {
		l.Fatal(err)
	}
}

func record(
	ctx context.Context,
	recorder screenrecorder.Recorder,
	req screenrecorder.StartRequest,
) error {
	logger.Debugf(ctx, "starting the recording into '%s'...", req.OutputPath)
	if err := recorder.Start(ctx, req); err != nil {
		return fmt.Errorf("unable to start the recording: %w", err)
	}

	observability.Go(ctx, func(ctx context.Context) {
		<-ctx.Done()
		logger.Infof(ctx, "stopping the recording...")
		recorder.Stop(context.WithoutCancel(ctx))
	})

	// the recording outlives the signal context until its teardown completes
	bgCtx := context.WithoutCancel(ctx)

	t := time.NewTicker(time.Second)
	defer t.Stop()
	endCh := make(chan error, 1)
	observability.Go(bgCtx, func(ctx context.Context) {
		endCh <- recorder.WaitForRecordingEnd(ctx)
	})
	for {
		select {
		case err := <-endCh:
			if err != nil {
				return fmt.Errorf("the recording ended with an error: %w", err)
			}
			stats, err := recorder.GetStats(bgCtx)
			if err == nil {
				fmt.Printf("done: video:%d audio:%d bytes:%d\n", stats.VideoSamplesWritten, stats.AudioSamplesWritten, stats.BytesWritten)
			}
			return nil
		case <-t.C:
			stats, err := recorder.GetStats(bgCtx)
			if err != nil {
				return fmt.Errorf("unable to get the statistics: %w", err)
			}
			fmt.Printf("video:%d audio:%d dropped:%d w:%d\n", stats.VideoSamplesWritten, stats.AudioSamplesWritten, stats.AudioSamplesDropped, stats.BytesWritten)
		}
	}
}

func serve(
	ctx context.Context,
	recorder screenrecorder.Recorder,
	listenAddr string,
) error {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("unable to listen at '%s': %w", listenAddr, err)
	}

	srv := control.NewServer(recorder)
	observability.Go(ctx, func(ctx context.Context) {
		<-ctx.Done()
		recorder.Stop(context.WithoutCancel(ctx))
		_ = recorder.WaitForRecordingEnd(context.WithoutCancel(ctx))
		srv.GRPCServer.GracefulStop()
	})

	logger.Infof(ctx, "listening at %s", listener.Addr())
	return srv.Serve(ctx, listener)
}
