package pipeline

import (
	"context"

	"github.com/streamforge/vodflow/log"
	"github.com/streamforge/vodflow/store"
	"github.com/streamforge/vodflow/video"
)

// runManifest writes the master playlist for the segmented qualities.
func (c *Coordinator) runManifest(ctx context.Context, ji *JobInfo, prep *PrepareOutput, seg *SegmentOutput) (*ManifestOutput, error) {
	if err := c.transition(ctx, ji.VideoID, store.StatusSegmenting, store.StatusCreatingManifest); err != nil {
		return nil, err
	}

	var manifestPath string
	err := c.retryStage(ctx, ji, StageManifest, c.Retries.Manifest, func(attempt int, final bool) error {
		var err error
		manifestPath, err = video.WriteMasterPlaylist(seg.SegmentsDir, seg.Qualities, c.Ladder)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Log(ji.VideoID, "Wrote master playlist", "path", manifestPath, "qualities", len(seg.Qualities))
	return &ManifestOutput{
		VideoID:            ji.VideoID,
		MasterPlaylistPath: manifestPath,
		SegmentsDir:        seg.SegmentsDir,
		AvailableQualities: seg.Qualities,
	}, nil
}
