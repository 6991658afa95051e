//go:build with_libav
// +build with_libav

package libav

import (
	"context"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screenrecorder/pipeline"
)

// Backend implements pipeline.Backend on top of libav: the screen and
// the audio are grabbed via libavdevice, encoded with libavcodec and
// muxed with libavformat.
type Backend struct {
	Config Config
}

var _ pipeline.Backend = (*Backend)(nil)

func NewBackend(
	ctx context.Context,
	cfg Config,
) (*Backend, error) {
	astiav.RegisterAllDevices()
	setLogger(ctx)
	return &Backend{
		Config: cfg,
	}, nil
}

func logLevelToAstiav(level logger.Level) astiav.LogLevel {
	switch level {
	case logger.LevelPanic:
		return astiav.LogLevelPanic
	case logger.LevelFatal:
		return astiav.LogLevelFatal
	case logger.LevelError:
		return astiav.LogLevelError
	case logger.LevelWarning:
		return astiav.LogLevelWarning
	case logger.LevelInfo:
		return astiav.LogLevelInfo
	case logger.LevelDebug:
		return astiav.LogLevelVerbose
	case logger.LevelTrace:
		return astiav.LogLevelDebug
	default:
		return astiav.LogLevelWarning
	}
}

// setLogger redirects the libav logs to the logger of the context.
func setLogger(ctx context.Context) {
	astiav.SetLogLevel(logLevelToAstiav(logger.FromCtx(ctx).Level()))
	astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, fmt, msg string) {
		var cs string
		if c != nil {
			if cl := c.Class(); cl != nil {
				cs = cl.String() + ": "
			}
		}
		msg = cs + strings.TrimSpace(msg)
		switch {
		case l <= astiav.LogLevelError:
			logger.Errorf(ctx, "libav: %s", msg)
		case l <= astiav.LogLevelWarning:
			logger.Warnf(ctx, "libav: %s", msg)
		case l <= astiav.LogLevelInfo:
			logger.Infof(ctx, "libav: %s", msg)
		case l <= astiav.LogLevelVerbose:
			logger.Debugf(ctx, "libav: %s", msg)
		default:
			logger.Tracef(ctx, "libav: %s", msg)
		}
	})
}
