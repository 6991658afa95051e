package screenrecorder

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xaionaro-go/xpath"
	"gopkg.in/yaml.v3"
)

const (
	DefaultVideoFrameRate                = 30
	DefaultVideoBitrateMultiplier        = 0.25
	DefaultVideoMaxWidth                 = 1080
	DefaultVideoMaxHeight                = 1920
	DefaultVideoIFrameInterval           = 5 * time.Second
	DefaultVideoRepeatPreviousFrameAfter = 1_000_000 * time.Microsecond
	DefaultVideoDensityDPI               = 240
	DefaultAudioSampleRate               = 44100
	DefaultAudioChannels                 = 1
	DefaultAudioBitrate                  = 64000
	DefaultDequeueTimeout                = 10 * time.Second
	DefaultAudioJoinTimeout              = 15 * time.Second
	DefaultMaxDuration                   = 15 * time.Minute
)

type Config struct {
	Video VideoConfig `json:"video,omitempty" yaml:"video,omitempty"`
	Audio AudioConfig `json:"audio,omitempty" yaml:"audio,omitempty"`

	// DequeueTimeout bounds every blocking wait on an encoder buffer.
	DequeueTimeout time.Duration `json:"dequeue_timeout,omitempty" yaml:"dequeue_timeout,omitempty"`

	// AudioJoinTimeout bounds how long the teardown waits for
	// the audio sampling routine to exit.
	AudioJoinTimeout time.Duration `json:"audio_join_timeout,omitempty" yaml:"audio_join_timeout,omitempty"`

	MaxDuration     time.Duration `json:"max_duration,omitempty" yaml:"max_duration,omitempty"`
	DefaultPriority Priority      `json:"default_priority,omitempty" yaml:"default_priority,omitempty"`
}

type VideoConfig struct {
	Codec                    VideoCodec    `json:"codec,omitempty" yaml:"codec,omitempty"`
	FrameRate                uint          `json:"frame_rate,omitempty" yaml:"frame_rate,omitempty"`
	BitrateMultiplier        float64       `json:"bitrate_multiplier,omitempty" yaml:"bitrate_multiplier,omitempty"`
	MaxWidth                 uint32        `json:"max_width,omitempty" yaml:"max_width,omitempty"`
	MaxHeight                uint32        `json:"max_height,omitempty" yaml:"max_height,omitempty"`
	IFrameInterval           time.Duration `json:"i_frame_interval,omitempty" yaml:"i_frame_interval,omitempty"`
	RepeatPreviousFrameAfter time.Duration `json:"repeat_previous_frame_after,omitempty" yaml:"repeat_previous_frame_after,omitempty"`
	BitrateFromClampedSize   bool          `json:"bitrate_from_clamped_size,omitempty" yaml:"bitrate_from_clamped_size,omitempty"`
	DensityDPI               uint          `json:"density_dpi,omitempty" yaml:"density_dpi,omitempty"`
	CustomOptions            CustomOptions `json:"-" yaml:"-"`
}

func (cfg VideoConfig) GetCustomOptions() CustomOptions {
	return cfg.CustomOptions
}

type AudioConfig struct {
	Codec         AudioCodec    `json:"codec,omitempty" yaml:"codec,omitempty"`
	SampleRate    uint          `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	Channels      uint          `json:"channels,omitempty" yaml:"channels,omitempty"`
	Bitrate       uint          `json:"bitrate,omitempty" yaml:"bitrate,omitempty"`
	CustomOptions CustomOptions `json:"-" yaml:"-"`
}

func (cfg AudioConfig) GetCustomOptions() CustomOptions {
	return cfg.CustomOptions
}

func DefaultConfig() Config {
	return Config{
		Video: VideoConfig{
			Codec:                    VideoCodecH264,
			FrameRate:                DefaultVideoFrameRate,
			BitrateMultiplier:        DefaultVideoBitrateMultiplier,
			MaxWidth:                 DefaultVideoMaxWidth,
			MaxHeight:                DefaultVideoMaxHeight,
			IFrameInterval:           DefaultVideoIFrameInterval,
			RepeatPreviousFrameAfter: DefaultVideoRepeatPreviousFrameAfter,
			DensityDPI:               DefaultVideoDensityDPI,
		},
		Audio: AudioConfig{
			Codec:      AudioCodecAAC,
			SampleRate: DefaultAudioSampleRate,
			Channels:   DefaultAudioChannels,
			Bitrate:    DefaultAudioBitrate,
		},
		DequeueTimeout:   DefaultDequeueTimeout,
		AudioJoinTimeout: DefaultAudioJoinTimeout,
		MaxDuration:      DefaultMaxDuration,
		DefaultPriority:  PriorityMax,
	}
}

// LoadConfig reads a YAML config; fields missing in the file keep
// their default values.
func LoadConfig(path string) (_ Config, _err error) {
	cfg := DefaultConfig()

	path, err := xpath.Expand(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to expand path '%s': %w", path, err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to read the config file '%s': %w", path, err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse the config file '%s': %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config '%s': %w", path, err)
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	switch {
	case cfg.Video.FrameRate == 0:
		return fmt.Errorf("video frame rate is zero")
	case cfg.Video.MaxWidth == 0 || cfg.Video.MaxHeight == 0:
		return fmt.Errorf("video max dimensions have a zero: %dx%d", cfg.Video.MaxWidth, cfg.Video.MaxHeight)
	case cfg.Video.BitrateMultiplier <= 0:
		return fmt.Errorf("video bitrate multiplier must be positive, got %f", cfg.Video.BitrateMultiplier)
	case cfg.Audio.SampleRate == 0 || cfg.Audio.Channels == 0:
		return fmt.Errorf("audio sample rate and channels must be non-zero")
	case cfg.DequeueTimeout <= 0:
		return fmt.Errorf("dequeue timeout must be positive, got %v", cfg.DequeueTimeout)
	case cfg.AudioJoinTimeout <= 0:
		return fmt.Errorf("audio join timeout must be positive, got %v", cfg.AudioJoinTimeout)
	}
	return nil
}

type AudioCodec uint

const (
	AudioCodecUndefined = AudioCodec(iota)
	AudioCodecAAC
	AudioCodecOpus
	EndOfAudioCodec
)

func (ac *AudioCodec) String() string {
	if ac == nil {
		return "null"
	}

	switch *ac {
	case AudioCodecUndefined:
		return "<undefined>"
	case AudioCodecAAC:
		return "aac"
	case AudioCodecOpus:
		return "opus"
	}
	return fmt.Sprintf("unexpected_audio_codec_id_%d", uint(*ac))
}

// MimeType returns the MIME type of the elementary stream.
func (ac AudioCodec) MimeType() string {
	switch ac {
	case AudioCodecAAC:
		return "audio/mp4a-latm"
	case AudioCodecOpus:
		return "audio/opus"
	}
	return ""
}

func (ac AudioCodec) MarshalJSON() ([]byte, error) {
	return json.Marshal(ac.String())
}

func (ac *AudioCodec) UnmarshalJSON(b []byte) error {
	return ac.UnmarshalText(b)
}

func (ac AudioCodec) MarshalText() ([]byte, error) {
	return []byte(ac.String()), nil
}

func (ac *AudioCodec) UnmarshalText(b []byte) error {
	if ac == nil {
		return fmt.Errorf("AudioCodec is nil")
	}
	s := strings.ToLower(strings.Trim(string(b), `"`))
	for cmp := AudioCodecUndefined; cmp < EndOfAudioCodec; cmp++ {
		if cmp.String() == s {
			*ac = cmp
			return nil
		}
	}
	return fmt.Errorf("unknown value of the AudioCodec: '%s'", s)
}

type VideoCodec uint

const (
	VideoCodecUndefined = VideoCodec(iota)
	VideoCodecH264
	VideoCodecHEVC
	EndOfVideoCodec
)

func (vc *VideoCodec) String() string {
	if vc == nil {
		return "null"
	}

	switch *vc {
	case VideoCodecUndefined:
		return "<undefined>"
	case VideoCodecH264:
		return "h264"
	case VideoCodecHEVC:
		return "hevc"
	}
	return fmt.Sprintf("unexpected_video_codec_id_%d", uint(*vc))
}

func (vc VideoCodec) MimeType() string {
	switch vc {
	case VideoCodecH264:
		return "video/avc"
	case VideoCodecHEVC:
		return "video/hevc"
	}
	return ""
}

func (vc VideoCodec) MarshalJSON() ([]byte, error) {
	return json.Marshal(vc.String())
}

func (vc *VideoCodec) UnmarshalJSON(b []byte) error {
	return vc.UnmarshalText(b)
}

func (vc VideoCodec) MarshalText() ([]byte, error) {
	return []byte(vc.String()), nil
}

func (vc *VideoCodec) UnmarshalText(b []byte) error {
	if vc == nil {
		return fmt.Errorf("VideoCodec is nil")
	}
	s := strings.ToLower(strings.Trim(string(b), `"`))
	for cmp := VideoCodecUndefined; cmp < EndOfVideoCodec; cmp++ {
		if cmp.String() == s {
			*vc = cmp
			return nil
		}
	}
	return fmt.Errorf("unknown value of the VideoCodec: '%s'", s)
}
