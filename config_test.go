package screenrecorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/require"
)

func TestConfigMarshalUnmarshal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audio.Codec = AudioCodecOpus
	cfg.Video.BitrateFromClampedSize = true
	cfg.DefaultPriority = PriorityNorm

	b, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	defer func() {
		r := recover()
		if r != nil {
			require.Nil(t, r, string(b))
		}
	}()

	var cfgDup Config
	err = yaml.Unmarshal(b, &cfgDup)
	require.NoError(t, err, string(b))

	require.Equal(t, cfg, cfgDup)
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
video:
  codec: hevc
  max_width: 720
dequeue_timeout: 3s
default_priority: min
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	expected := DefaultConfig()
	expected.Video.Codec = VideoCodecHEVC
	expected.Video.MaxWidth = 720
	expected.DequeueTimeout = 3 * time.Second
	expected.DefaultPriority = PriorityMin
	require.Equal(t, expected, cfg)
}

func TestLoadConfigRejectsUnknownCodec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio:\n  codec: mp3\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestVideoCodecJSON(t *testing.T) {
	vc := VideoCodecH264
	b, err := vc.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"h264"`, string(b))

	var parsed VideoCodec
	require.NoError(t, parsed.UnmarshalJSON(b))
	require.Equal(t, VideoCodecH264, parsed)
	require.Error(t, parsed.UnmarshalJSON([]byte(`"vp9"`)))
}
