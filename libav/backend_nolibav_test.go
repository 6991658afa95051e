//go:build !with_libav
// +build !with_libav

package libav

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBackendWithoutLibav(t *testing.T) {
	b, err := NewBackend(context.Background(), DefaultConfig())
	require.ErrorIs(t, err, ErrNotCompiledWithLibav)
	require.Nil(t, b)
}
