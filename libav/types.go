package libav

import (
	"errors"

	"github.com/xaionaro-go/screenrecorder"
)

var ErrNotCompiledWithLibav = errors.New("not compiled with libav support")

// DictionaryItem is an option passed to libav as is (for example
// "preset"="p4" for an encoder or "video_size"="1920x1080" for a grabber).
type DictionaryItem struct {
	Key   string
	Value string
}
type DictionaryItems []DictionaryItem

// EncoderName overrides the encoder picked for a codec (e.g. "libx264").
type EncoderName string

// HardwareDeviceName selects the device of the hardware encoder
// (for example "/dev/dri/renderD128").
type HardwareDeviceName string

// HardwareDeviceTypeName is the libav name of a hardware device type
// (e.g. "cuda" or "vaapi").
type HardwareDeviceTypeName string

type Config struct {
	// DisplayInputFormat is the libavdevice demuxer grabbing the screen.
	DisplayInputFormat string `json:"display_input_format,omitempty" yaml:"display_input_format,omitempty"`

	// DisplayURL is used if the capture token is not set.
	DisplayURL     string          `json:"display_url,omitempty" yaml:"display_url,omitempty"`
	DisplayOptions DictionaryItems `json:"display_options,omitempty" yaml:"display_options,omitempty"`

	AudioInputFormat string          `json:"audio_input_format,omitempty" yaml:"audio_input_format,omitempty"`
	AudioURL         string          `json:"audio_url,omitempty" yaml:"audio_url,omitempty"`
	AudioOptions     DictionaryItems `json:"audio_options,omitempty" yaml:"audio_options,omitempty"`

	// MuxerOptions are passed to the MP4 muxer on writing the header.
	MuxerOptions DictionaryItems `json:"muxer_options,omitempty" yaml:"muxer_options,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		DisplayInputFormat: "x11grab",
		DisplayURL:         ":0.0",
		AudioInputFormat:   "pulse",
		AudioURL:           "default",
	}
}

// DisplayURLFor returns the URL of the grabbed screen: the capture token
// addresses it if set.
func (cfg Config) DisplayURLFor(token screenrecorder.CaptureToken) string {
	if token.IsSet() {
		return token.Get()
	}
	return cfg.DisplayURL
}

func dictionaryItemsFrom(opts screenrecorder.CustomOptions) DictionaryItems {
	result := DictionaryItems(screenrecorder.GetCustomOptions[DictionaryItem](opts))
	for _, items := range screenrecorder.GetCustomOptions[DictionaryItems](opts) {
		result = append(result, items...)
	}
	return result
}
