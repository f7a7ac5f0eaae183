package video

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/streamforge/vodflow/errors"
	"gopkg.in/vansante/go-ffprobe.v2"
)

const probeTimeout = 30 * time.Second

// Prober extracts source metadata from a local media file.
type Prober interface {
	ProbeFile(videoID, path string) (SourceMetadata, error)
}

type Probe struct{}

// ProbeFile runs ffprobe (-v quiet -print_format json -show_format
// -show_streams) on the given path. A probe failure is fatal: the source is
// corrupt and retrying will not help.
func (p Probe) ProbeFile(videoID, path string) (SourceMetadata, error) {
	probeCtx, probeCancel := context.WithTimeout(context.Background(), probeTimeout)
	defer probeCancel()

	data, err := ffprobe.ProbeURL(probeCtx, path, "-v", "quiet")
	if err != nil {
		return SourceMetadata{}, errors.Unretriable(errors.ToolFailure("ffprobe", err))
	}
	return parseProbeOutput(data)
}

func parseProbeOutput(probeData *ffprobe.ProbeData) (SourceMetadata, error) {
	videoStream := probeData.FirstVideoStream()
	if videoStream == nil {
		return SourceMetadata{}, errors.CorruptSource("no video stream found in file")
	}
	if probeData.Format == nil {
		return SourceMetadata{}, errors.CorruptSource("format information missing from probe output")
	}
	if videoStream.Width == 0 || videoStream.Height == 0 {
		return SourceMetadata{}, errors.CorruptSource("video stream has no resolution")
	}

	// Duration and bitrate can live on the stream or on the format object
	// depending on the container. Prefer the stream value.
	duration, err := strconv.ParseFloat(videoStream.Duration, 64)
	if err != nil || duration == 0 {
		duration = probeData.Format.DurationSeconds
	}

	bitRateValue := videoStream.BitRate
	if bitRateValue == "" {
		bitRateValue = probeData.Format.BitRate
	}
	var bitrate int64
	if bitRateValue != "" {
		bitrate, err = strconv.ParseInt(bitRateValue, 10, 64)
		if err != nil {
			return SourceMetadata{}, errors.CorruptSource("error parsing bitrate from probed data: %s", err)
		}
	}

	fps, err := parseFps(videoStream.RFrameRate)
	if err != nil {
		// fall back to the average frame rate, which can be valid when the
		// real frame rate is not
		fps, err = parseFps(videoStream.AvgFrameRate)
		if err != nil {
			return SourceMetadata{}, errors.CorruptSource("error parsing frame rate from probed data: %s", err)
		}
	}

	var size int64
	if probeData.Format.Size != "" {
		size, err = strconv.ParseInt(probeData.Format.Size, 10, 64)
		if err != nil {
			return SourceMetadata{}, errors.CorruptSource("error parsing filesize from probed data: %s", err)
		}
	}

	md := SourceMetadata{
		DurationSeconds: duration,
		Width:           int64(videoStream.Width),
		Height:          int64(videoStream.Height),
		Codec:           videoStream.CodecName,
		Bitrate:         bitrate,
		FrameRate:       fps,
		FileSize:        size,
	}

	if audioStream := probeData.FirstAudioStream(); audioStream != nil {
		md.AudioCodec = audioStream.CodecName
		md.AudioBitrate, _ = strconv.ParseInt(audioStream.BitRate, 10, 64)
	}

	return md, nil
}

func parseFps(framerate string) (float64, error) {
	if framerate == "" {
		return 0, nil
	}
	parts := strings.SplitN(framerate, "/", 2)
	if len(parts) < 2 {
		fps, err := strconv.ParseFloat(framerate, 64)
		if err != nil {
			return 0, fmt.Errorf("error parsing framerate: %w", err)
		}
		return fps, nil
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("error parsing framerate numerator: %w", err)
	}
	den, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("error parsing framerate denominator: %w", err)
	}

	if den == 0 {
		// 0/0 can be valid for a video track i.e. mjpeg
		if num == 0 {
			return 0, nil
		}
		return 0, stderrors.New("invalid framerate denominator 0")
	}

	return float64(num) / float64(den), nil
}
