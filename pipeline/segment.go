package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/streamforge/vodflow/errors"
	"github.com/streamforge/vodflow/log"
	"github.com/streamforge/vodflow/store"
	"github.com/streamforge/vodflow/video"
)

// runSegment remuxes every surviving rendition into HLS. Retries are
// stage-level: a failed quality is tried again on the next attempt, and only
// when the budget is exhausted is it dropped from the output. Successes are
// kept across attempts.
func (c *Coordinator) runSegment(ctx context.Context, ji *JobInfo, prep *PrepareOutput, agg *AggregateOutput) (*SegmentOutput, error) {
	if err := c.transition(ctx, ji.VideoID, store.StatusAggregating, store.StatusSegmenting); err != nil {
		return nil, err
	}

	segmented := make(map[string]SegmentedRendition, len(agg.Qualities))
	remaining := agg.Qualities

	err := c.retryStage(ctx, ji, StageSegment, c.Retries.Segment, func(attempt int, final bool) error {
		var failed []string
		var lastErr error
		for _, quality := range remaining {
			rendition := agg.Renditions[quality]
			outputDir := prep.Workspace.RenditionSegmentsDir(quality)
			count, err := c.Encoder.SegmentToHLS(ji.VideoID, rendition.LocalPath, outputDir)
			if err != nil {
				log.LogError(ji.VideoID, "Failed to segment rendition", err, "quality", quality, "attempt", attempt)
				failed = append(failed, quality)
				lastErr = err
				continue
			}
			segmented[quality] = SegmentedRendition{
				PlaylistPath: filepath.Join(outputDir, video.HLSPlaylistName),
				SegmentsDir:  outputDir,
				SegmentCount: count,
			}
			log.Log(ji.VideoID, "Segmented rendition", "quality", quality, "segments", count)
		}
		remaining = failed

		if len(failed) == 0 {
			return nil
		}
		if final {
			// exhausted qualities are dropped, the workflow continues with
			// whatever segmented
			log.Log(ji.VideoID, "Dropping qualities that failed segmenting", "qualities", strings.Join(failed, ","))
			if len(segmented) == 0 {
				return errors.Unretriable(fmt.Errorf("all renditions failed segmenting: %w", lastErr))
			}
			return nil
		}
		return fmt.Errorf("%d renditions failed segmenting: %w", len(failed), lastErr)
	})
	if err != nil {
		return nil, err
	}

	qualities := make([]string, 0, len(segmented))
	for q := range segmented {
		qualities = append(qualities, q)
	}
	return &SegmentOutput{
		VideoID:     ji.VideoID,
		Renditions:  segmented,
		Qualities:   c.Ladder.SortLabels(qualities),
		SegmentsDir: prep.Workspace.SegmentsDir,
	}, nil
}
