package screenrecorder

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	outputFileExtension     = ".mp4"
	maxOutputFileNameLength = 255
	forbiddenFileNameChars  = "\"*/:<>?\\|\x00"
)

type StartRequest struct {
	CaptureToken CaptureToken
	OutputPath   string

	// Width and Height are the requested dimensions, already oriented
	// (see OrientDimensions).
	Width  uint32
	Height uint32

	Rotation Rotation

	// Priority is the scheduling priority of the audio sampling thread;
	// PriorityUndefined means Config.DefaultPriority.
	Priority Priority

	// MaxDuration stops the recording automatically; non-positive
	// means Config.MaxDuration.
	MaxDuration time.Duration
}

func (req StartRequest) Validate() error {
	var result *multierror.Error
	if !req.CaptureToken.IsSet() {
		result = multierror.Append(result, fmt.Errorf("the capture token is not set"))
	}
	if req.OutputPath == "" {
		result = multierror.Append(result, fmt.Errorf("the output path is empty"))
	} else if err := ValidateOutputFileName(filepath.Base(req.OutputPath)); err != nil {
		result = multierror.Append(result, err)
	}
	if req.Width == 0 || req.Height == 0 {
		result = multierror.Append(result, fmt.Errorf("the requested resolution %dx%d has a zero dimension", req.Width, req.Height))
	}
	if !req.Rotation.IsValid() {
		result = multierror.Append(result, fmt.Errorf("invalid rotation %d", int(req.Rotation)))
	}
	if req.Priority >= EndOfPriority {
		result = multierror.Append(result, fmt.Errorf("invalid priority %d", uint(req.Priority)))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// WithDefaults returns a copy of the request with the unset
// optional fields filled from the config.
func (req StartRequest) WithDefaults(cfg Config) StartRequest {
	if req.Priority == PriorityUndefined {
		req.Priority = cfg.DefaultPriority
	}
	if req.MaxDuration <= 0 {
		req.MaxDuration = cfg.MaxDuration
	}
	return req
}

// ValidateOutputFileName checks that the name is usable as the name
// of the resulting recording file.
func ValidateOutputFileName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("the file name is empty")
	case !strings.HasSuffix(name, outputFileExtension):
		return fmt.Errorf("the file name '%s' does not end with '%s'", name, outputFileExtension)
	case len(name) >= maxOutputFileNameLength:
		return fmt.Errorf("the file name is too long: %d >= %d", len(name), maxOutputFileNameLength)
	case strings.ContainsAny(name, forbiddenFileNameChars):
		return fmt.Errorf("the file name '%s' contains one of forbidden characters %q", name, forbiddenFileNameChars)
	}
	return nil
}
