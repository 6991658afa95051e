package screenrecorder

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validRequest() StartRequest {
	return StartRequest{
		CaptureToken: NewCaptureToken(":0.0"),
		OutputPath:   "/tmp/recordings/out.mp4",
		Width:        1080,
		Height:       2400,
		Rotation:     Rotation90,
	}
}

func TestStartRequestValidate(t *testing.T) {
	require.NoError(t, validRequest().Validate())

	req := validRequest()
	req.CaptureToken = CaptureToken{}
	req.Width = 0
	req.Rotation = Rotation(45)
	err := req.Validate()
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Contains(t, err.Error(), "capture token")
	require.Contains(t, err.Error(), "zero dimension")
	require.Contains(t, err.Error(), "rotation")
}

func TestStartRequestWithDefaults(t *testing.T) {
	cfg := DefaultConfig()

	req := validRequest().WithDefaults(cfg)
	require.Equal(t, PriorityMax, req.Priority)
	require.Equal(t, 15*time.Minute, req.MaxDuration)

	req = validRequest()
	req.Priority = PriorityMin
	req.MaxDuration = -time.Second
	req = req.WithDefaults(cfg)
	require.Equal(t, PriorityMin, req.Priority)
	require.Equal(t, 15*time.Minute, req.MaxDuration)
}

func TestValidateOutputFileName(t *testing.T) {
	for name, valid := range map[string]bool{
		"video.mp4":                       true,
		"":                                false,
		"video.mkv":                       false,
		"vi:deo.mp4":                      false,
		"vi?deo.mp4":                      false,
		"vi\x00deo.mp4":                   false,
		strings.Repeat("a", 251) + ".mp4": false,
		strings.Repeat("a", 250) + ".mp4": true,
	} {
		err := ValidateOutputFileName(name)
		if valid {
			require.NoError(t, err, name)
		} else {
			require.Error(t, err, name)
		}
	}
}

func TestOrientDimensions(t *testing.T) {
	type result struct{ w, h uint32 }
	for _, tc := range []struct {
		rotation Rotation
		w, h     uint32
		expected result
	}{
		{Rotation0, 1920, 1080, result{1920, 1080}},
		{Rotation90, 1920, 1080, result{1080, 1920}},
		{Rotation180, 1080, 1920, result{1080, 1920}},
		{Rotation270, 1080, 1920, result{1920, 1080}},
		{RotationUnset, 1920, 1080, result{1080, 1920}},
		{RotationUnset, 1080, 1920, result{1080, 1920}},
	} {
		w, h := OrientDimensions(tc.w, tc.h, tc.rotation)
		require.Equal(t, tc.expected, result{w, h}, "%v %dx%d", tc.rotation, tc.w, tc.h)
	}
}

func TestParseRotation(t *testing.T) {
	r, err := ParseRotation("270")
	require.NoError(t, err)
	require.Equal(t, Rotation270, r)

	r, err = ParseRotation("")
	require.NoError(t, err)
	require.Equal(t, RotationUnset, r)
	require.Equal(t, 0, r.Degrees())

	_, err = ParseRotation("45")
	require.Error(t, err)
}

func TestPriority(t *testing.T) {
	require.Equal(t, PriorityMin, PriorityFromLevel(0))
	require.Equal(t, PriorityNorm, PriorityFromLevel(1))
	require.Equal(t, PriorityMax, PriorityFromLevel(2))
	require.Equal(t, PriorityMax, PriorityFromLevel(7))

	var p Priority
	require.NoError(t, p.Set("norm"))
	require.Equal(t, PriorityNorm, p)
	require.Equal(t, 1, p.Level())
	require.Error(t, p.Set("urgent"))
}

func TestParseResolution(t *testing.T) {
	r, err := ParseResolution("720p")
	require.NoError(t, err)
	require.Equal(t, Resolution{Width: 1280, Height: 720}, r)

	r, err = ParseResolution("2400x1080")
	require.NoError(t, err)
	require.Equal(t, Resolution{Width: 2400, Height: 1080}, r)

	_, err = ParseResolution("0x10")
	require.Error(t, err)
	_, err = ParseResolution("wide")
	require.Error(t, err)
}

func TestCaptureTokenHidden(t *testing.T) {
	tok := NewCaptureToken("secret-display")
	require.True(t, tok.IsSet())
	require.Equal(t, "secret-display", tok.Get())
	require.Equal(t, "<hidden>", tok.String())
	require.False(t, CaptureToken{}.IsSet())
	require.Equal(t, "", CaptureToken{}.Get())
}
