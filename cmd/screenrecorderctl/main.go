package main

import (
	"context"
	"fmt"
	"os"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/goccy/go-yaml"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/screenrecorder/control"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [options] start|stop|status|stats|wait\n", os.Args[0])
		pflag.PrintDefaults()
	}

	priority := screenrecorder.PriorityUndefined
	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	pflag.Var(&priority, "priority", "the scheduling priority of the capture threads: min, norm or max")
	remoteAddr := pflag.String("remote-addr", "localhost:3601", "the address of the control API")
	outputPath := pflag.String("output", "", "the MP4 file to record into (start)")
	resolutionStr := pflag.String("resolution", "1080p", "the screen resolution: a preset name or '<width>x<height>' (start)")
	rotationStr := pflag.String("rotation", "", "the rotation of the recording: 0, 90, 180 or 270 (start)")
	maxDuration := pflag.Duration("max-duration", 0, "stop the recording after this time (start)")
	captureToken := pflag.String("capture-token", "", "the capture grant (start)")
	pflag.Parse()
	if len(pflag.Args()) != 1 {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	client := control.NewClient(*remoteAddr)
	switch cmd := pflag.Arg(0); cmd {
	case "start":
		resolution, err := screenrecorder.ParseResolution(*resolutionStr)
		if err != nil {
			l.Fatal(err)
		}
		rotation, err := screenrecorder.ParseRotation(*rotationStr)
		if err != nil {
			l.Fatal(err)
		}
		width, height := screenrecorder.OrientDimensions(resolution.Width, resolution.Height, rotation)
		err = client.Start(ctx, screenrecorder.StartRequest{
			CaptureToken: screenrecorder.NewCaptureToken(*captureToken),
			OutputPath:   *outputPath,
			Width:        width,
			Height:       height,
			Rotation:     rotation,
			Priority:     priority,
			MaxDuration:  *maxDuration,
		})
		if err != nil {
			l.Fatal(err)
		}
	case "stop":
		if err := client.Stop(ctx); err != nil {
			l.Fatal(err)
		}
	case "status":
		isRecording, err := client.IsRecording(ctx)
		if err != nil {
			l.Fatal(err)
		}
		if isRecording {
			fmt.Println("recording")
		} else {
			fmt.Println("idle")
		}
	case "stats":
		stats, err := client.GetStats(ctx)
		if err != nil {
			l.Fatal(err)
		}
		b, err := yaml.Marshal(stats)
		if err != nil {
			l.Fatal(err)
		}
		fmt.Print(string(b))
	case "wait":
		if err := client.WaitForRecordingEnd(ctx); err != nil {
			l.Fatal(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command '%s'\n", cmd)
		pflag.Usage()
		os.Exit(1)
	}
}
