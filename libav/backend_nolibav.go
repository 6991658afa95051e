//go:build !with_libav
// +build !with_libav

package libav

import (
	"context"

	"github.com/xaionaro-go/screenrecorder/pipeline"
)

type Backend struct {
	pipeline.Backend
	Config Config
}

func NewBackend(
	ctx context.Context,
	cfg Config,
) (*Backend, error) {
	return nil, ErrNotCompiledWithLibav
}
