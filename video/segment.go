package video

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/streamforge/vodflow/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	// Target segment duration in seconds.
	HLSSegmentDuration = 6
	// Segment filename pattern inside a rendition directory.
	HLSSegmentPattern = "segment_%04d.ts"
	// Media playlist filename inside a rendition directory.
	HLSPlaylistName = "playlist.m3u8"

	segmentHardTimeout = 10 * time.Minute
)

// SegmentToHLS remuxes an already-encoded rendition into HLS. The input keeps
// its codecs (-c copy); only the container changes. Returns the number of .ts
// segments written.
func (f FFmpeg) SegmentToHLS(videoID, sourcePath, outputDir string) (int, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, errors.TransientIO(fmt.Errorf("failed to create segment output dir %q: %w", outputDir, err))
	}

	playlistPath := filepath.Join(outputDir, HLSPlaylistName)
	ffmpegErr := bytes.Buffer{}

	err := ffmpeg.Input(sourcePath).
		Output(playlistPath, ffmpeg.KwArgs{
			"c":                    "copy",
			"f":                    "hls",
			"hls_time":             HLSSegmentDuration,
			"hls_list_size":        0,
			"hls_segment_filename": filepath.Join(outputDir, HLSSegmentPattern),
		}).
		OverWriteOutput().WithErrorOutput(&ffmpegErr).WithTimeout(segmentHardTimeout).Run()
	if err != nil {
		return 0, errors.ToolFailure("ffmpeg", fmt.Errorf("failed to segment %s [%s]: %w", sourcePath, ffmpegErr.String(), err))
	}

	return CountSegments(outputDir)
}

// CountSegments asserts the media playlist exists and returns the number of
// .ts files alongside it.
func CountSegments(outputDir string) (int, error) {
	if _, err := os.Stat(filepath.Join(outputDir, HLSPlaylistName)); err != nil {
		return 0, errors.ToolFailure("ffmpeg", fmt.Errorf("media playlist missing after segmenting %q: %w", outputDir, err))
	}

	segments, err := filepath.Glob(filepath.Join(outputDir, "*.ts"))
	if err != nil {
		return 0, fmt.Errorf("failed to list segments in %q: %w", outputDir, err)
	}
	if len(segments) == 0 {
		return 0, errors.ToolFailure("ffmpeg", fmt.Errorf("no segments produced in %q", outputDir))
	}
	return len(segments), nil
}
