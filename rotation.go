package screenrecorder

import (
	"fmt"
	"strconv"
	"strings"
)

// Rotation is a clockwise rotation in degrees.
type Rotation int

const (
	RotationUnset = Rotation(-1)
	Rotation0     = Rotation(0)
	Rotation90    = Rotation(90)
	Rotation180   = Rotation(180)
	Rotation270   = Rotation(270)
)

func (r Rotation) IsValid() bool {
	switch r {
	case RotationUnset, Rotation0, Rotation90, Rotation180, Rotation270:
		return true
	}
	return false
}

// Degrees returns the value to be written as the orientation hint
// of the output file. An unset rotation means portrait, which is 0.
func (r Rotation) Degrees() int {
	if r == RotationUnset {
		return 0
	}
	return int(r)
}

func (r Rotation) String() string {
	if r == RotationUnset {
		return "unset"
	}
	return strconv.Itoa(int(r))
}

func ParseRotation(s string) (Rotation, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "unset", "-1":
		return RotationUnset, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return RotationUnset, fmt.Errorf("unable to parse rotation '%s': %w", s, err)
	}
	r := Rotation(v)
	if !r.IsValid() {
		return RotationUnset, fmt.Errorf("rotation must be one of 0, 90, 180, 270 or unset, but got %d", v)
	}
	return r, nil
}

// OrientDimensions returns the dimensions of the frame to be recorded
// given the physical screen size and the requested rotation.
//
// With an unset rotation a landscape screen is recorded as portrait.
func OrientDimensions(
	screenWidth, screenHeight uint32,
	rotation Rotation,
) (uint32, uint32) {
	switch rotation {
	case Rotation90, Rotation270:
		return screenHeight, screenWidth
	case RotationUnset:
		if screenWidth > screenHeight {
			return screenHeight, screenWidth
		}
	}
	return screenWidth, screenHeight
}
