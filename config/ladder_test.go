package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitsPerSecondConversion(t *testing.T) {
	rung, ok := DefaultLadder.Rung("1080p")
	require.True(t, ok)

	bps, err := rung.BitsPerSecond()
	require.NoError(t, err)
	require.Equal(t, uint32(5_000_000), bps)

	bps, err = Rung{Label: "144p", VideoBitrate: "200k"}.BitsPerSecond()
	require.NoError(t, err)
	require.Equal(t, uint32(200_000), bps)

	_, err = Rung{Label: "bad", VideoBitrate: "fast"}.BitsPerSecond()
	require.Error(t, err)
}

func TestRungLookup(t *testing.T) {
	_, ok := DefaultLadder.Rung("1081p")
	require.False(t, ok)

	rung, ok := DefaultLadder.Rung("144p")
	require.True(t, ok)
	require.Equal(t, int64(256), rung.Width)
	require.Equal(t, int64(144), rung.Height)
}

func TestSortLabelsFollowsLadderOrder(t *testing.T) {
	sorted := DefaultLadder.SortLabels([]string{"360p", "1080p", "144p", "720p"})
	require.Equal(t, []string{"1080p", "720p", "360p", "144p"}, sorted)

	// unknown labels are dropped
	sorted = DefaultLadder.SortLabels([]string{"999p", "480p"})
	require.Equal(t, []string{"480p"}, sorted)

	require.Empty(t, DefaultLadder.SortLabels(nil))
}

func TestParseLadder(t *testing.T) {
	ladder, err := ParseLadder("1080p:1920x1080:5000k,720p:1280x720:2500k")
	require.NoError(t, err)
	require.Len(t, ladder, 2)
	require.Equal(t, "1080p", ladder[0].Label)
	require.Equal(t, int64(1920), ladder[0].Width)
	require.Equal(t, int64(1080), ladder[0].Height)
	require.Equal(t, "2500k", ladder[1].VideoBitrate)
	require.Equal(t, DefaultAudioBitrate, ladder[1].AudioBitrate)

	_, err = ParseLadder("1080p:1920:5000k")
	require.Error(t, err)

	_, err = ParseLadder("1080p:1920xABC:5000k")
	require.Error(t, err)

	_, err = ParseLadder("1080p:1920x1080:verybig")
	require.Error(t, err)
}
