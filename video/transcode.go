package video

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/streamforge/vodflow/config"
	"github.com/streamforge/vodflow/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Hard per-attempt limit for a single encode. The broker's visibility window
// is 60 minutes, so a run that exceeds this would be redelivered anyway.
const EncodeHardTimeout = 60 * time.Minute

// Encoder runs the external media tool. Stubbed out in pipeline tests.
type Encoder interface {
	Transcode(videoID, sourcePath, outputPath string, rung config.Rung, threads int) error
	SegmentToHLS(videoID, sourcePath, outputDir string) (int, error)
}

type FFmpeg struct{}

// Transcode encodes the source into a single rendition mp4 at the rung's
// resolution and bitrate.
func (f FFmpeg) Transcode(videoID, sourcePath, outputPath string, rung config.Rung, threads int) error {
	ffmpegErr := bytes.Buffer{}

	err := ffmpeg.Input(sourcePath).
		Output(outputPath, ffmpeg.KwArgs{
			"c:v":     "libx264",
			"preset":  "medium",
			"crf":     "23",
			"vf":      fmt.Sprintf("scale=%d:%d", rung.Width, rung.Height),
			"b:v":     rung.VideoBitrate,
			"c:a":     "aac",
			"b:a":     rung.AudioBitrate,
			"threads": threads,
		}).
		OverWriteOutput().WithErrorOutput(&ffmpegErr).WithTimeout(EncodeHardTimeout).Run()
	if err != nil {
		return errors.ToolFailure("ffmpeg", fmt.Errorf("failed to transcode %s to %s [%s]: %w", sourcePath, rung.Label, ffmpegErr.String(), err))
	}

	// An encode that exits zero but writes nothing is still a failure.
	stat, err := os.Stat(outputPath)
	if err != nil {
		return errors.ToolFailure("ffmpeg", fmt.Errorf("failed to stat transcoded file %q: %w", outputPath, err))
	}
	if stat.Size() == 0 {
		return errors.ToolFailure("ffmpeg", fmt.Errorf("transcoded file %q is empty", outputPath))
	}
	return nil
}
