package libav

import (
	"runtime"

	"github.com/xaionaro-go/screenrecorder"
)

func optimalVideoEncoder(codec screenrecorder.VideoCodec) string {
	switch codec {
	case screenrecorder.VideoCodecH264:
		if runtime.GOOS == "android" {
			return "h264_mediacodec"
		} else {
			return "h264_nvenc"
		}
	case screenrecorder.VideoCodecHEVC:
		if runtime.GOOS == "android" {
			return "hevc_mediacodec"
		} else {
			return "hevc_nvenc"
		}
	default:
		return codec.String()
	}
}

func audioEncoder(codec screenrecorder.AudioCodec) string {
	switch codec {
	case screenrecorder.AudioCodecOpus:
		return "libopus"
	default:
		return ""
	}
}
