package screenrecorder

import (
	"github.com/xaionaro-go/secret"
)

// CaptureToken is the opaque permission grant allowing to capture
// the display and the audio output (on desktop systems it is the
// display/device identifier).
type CaptureToken struct {
	value secret.String
	isSet bool
}

func NewCaptureToken(token string) CaptureToken {
	return CaptureToken{
		value: secret.New(token),
		isSet: token != "",
	}
}

func (t CaptureToken) IsSet() bool {
	return t.isSet
}

func (t CaptureToken) Get() string {
	if !t.isSet {
		return ""
	}
	return t.value.Get()
}

func (t CaptureToken) String() string {
	if !t.isSet {
		return "<unset>"
	}
	return "<hidden>"
}

func (t CaptureToken) GoString() string {
	return t.String()
}
