package screenrecorder

import (
	"fmt"
	"strconv"
	"strings"
)

type Resolution struct {
	Width  uint32
	Height uint32
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ResolutionPresets are the commonly used recording sizes, landscape.
var ResolutionPresets = map[string]Resolution{
	"1080p": {Width: 1920, Height: 1080},
	"720p":  {Width: 1280, Height: 720},
	"480p":  {Width: 720, Height: 480},
	"qvga":  {Width: 320, Height: 240},
	"qcif":  {Width: 176, Height: 144},
}

// ParseResolution accepts either a preset name or "<width>x<height>".
func ParseResolution(s string) (Resolution, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if r, ok := ResolutionPresets[s]; ok {
		return r, nil
	}

	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return Resolution{}, fmt.Errorf("expected '<width>x<height>' or a preset name, got '%s'", s)
	}
	w, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return Resolution{}, fmt.Errorf("unable to parse the width '%s': %w", parts[0], err)
	}
	h, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Resolution{}, fmt.Errorf("unable to parse the height '%s': %w", parts[1], err)
	}
	if w == 0 || h == 0 {
		return Resolution{}, fmt.Errorf("the resolution must be non-zero, got '%s'", s)
	}
	return Resolution{Width: uint32(w), Height: uint32(h)}, nil
}
