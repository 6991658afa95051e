package libav

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screenrecorder"
)

func TestDisplayURLFor(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, ":0.0", cfg.DisplayURLFor(screenrecorder.CaptureToken{}))
	require.Equal(t, ":1.0+10,20", cfg.DisplayURLFor(screenrecorder.NewCaptureToken(":1.0+10,20")))
}

func TestDictionaryItemsFrom(t *testing.T) {
	items := dictionaryItemsFrom(screenrecorder.CustomOptions{
		DictionaryItem{Key: "preset", Value: "p4"},
		EncoderName("libx264"),
		DictionaryItems{{Key: "tune", Value: "ll"}, {Key: "rc", Value: "cbr"}},
	})
	require.Equal(t, DictionaryItems{
		{Key: "preset", Value: "p4"},
		{Key: "tune", Value: "ll"},
		{Key: "rc", Value: "cbr"},
	}, items)

	require.Empty(t, dictionaryItemsFrom(nil))
}

func TestOptimalVideoEncoder(t *testing.T) {
	switch runtime.GOOS {
	case "android":
		require.Equal(t, "h264_mediacodec", optimalVideoEncoder(screenrecorder.VideoCodecH264))
	default:
		require.Equal(t, "h264_nvenc", optimalVideoEncoder(screenrecorder.VideoCodecH264))
		require.Equal(t, "hevc_nvenc", optimalVideoEncoder(screenrecorder.VideoCodecHEVC))
	}
	require.Equal(t, "libopus", audioEncoder(screenrecorder.AudioCodecOpus))
	require.Equal(t, "", audioEncoder(screenrecorder.AudioCodecAAC))
}
