package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNegotiateVideoSizeBounds(t *testing.T) {
	caps := VideoCapabilities{
		Widths:  Range{Min: 64, Max: 4096},
		Heights: Range{Min: 64, Max: 4096},
	}
	for _, tc := range []struct {
		w, h uint32
	}{
		{1, 1}, {1080, 2400}, {2400, 1080}, {4000, 4000}, {720, 1280}, {100000, 5},
	} {
		w, h := NegotiateVideoSize(caps, tc.w, tc.h, 1080, 1920)
		require.GreaterOrEqual(t, w, caps.Widths.Min, "%v", tc)
		require.LessOrEqual(t, w, uint32(1080), "%v", tc)
		require.GreaterOrEqual(t, h, caps.Heights.Min, "%v", tc)
		require.LessOrEqual(t, h, uint32(1920), "%v", tc)
	}
}

func TestNegotiateVideoSizeRotatedScreen(t *testing.T) {
	caps := VideoCapabilities{
		Widths:  Range{Min: 2, Max: 4096},
		Heights: Range{Min: 2, Max: 2160},
	}
	w, h := NegotiateVideoSize(caps, 2400, 1080, 1080, 1920)
	require.Equal(t, uint32(1080), w)
	require.Equal(t, uint32(1080), h)

	w, h = NegotiateVideoSize(caps, 720, 1280, 1080, 1920)
	require.Equal(t, uint32(720), w)
	require.Equal(t, uint32(1280), h)
}

func TestNegotiateVideoSizeAlignment(t *testing.T) {
	caps := VideoCapabilities{
		Widths:    Range{Min: 16, Max: 4096},
		Heights:   Range{Min: 16, Max: 4096},
		Alignment: 16,
	}
	w, h := NegotiateVideoSize(caps, 1001, 17, 1080, 1920)
	require.Equal(t, uint32(992), w)
	require.Equal(t, uint32(16), h)

	caps.Widths.Min = 20
	w, _ = NegotiateVideoSize(caps, 21, 17, 1080, 1920)
	require.Equal(t, uint32(32), w)
}

func TestVideoBitrate(t *testing.T) {
	require.Equal(t, uint64(19_440_000), VideoBitrate(0.25, 30, 2400, 1080))
	require.Equal(t, uint64(0), VideoBitrate(0.25, 30, 0, 1080))
}

func TestNegotiateVideoSizeBoxBelowEncoderMinimum(t *testing.T) {
	caps := VideoCapabilities{
		Widths:    Range{Min: 64, Max: 4096},
		Heights:   Range{Min: 96, Max: 4096},
		Alignment: 16,
	}
	w, h := NegotiateVideoSize(caps, 1920, 1080, 32, 48)
	require.Equal(t, uint32(64), w)
	require.Equal(t, uint32(96), h)
}
