package pipeline

import (
	"context"

	"github.com/streamforge/vodflow/log"
	"github.com/streamforge/vodflow/store"
)

// runFinalize completes the row in one commit and deletes the workspace.
// Workspace cleanup failure is logged only; the video is already processed.
func (c *Coordinator) runFinalize(ctx context.Context, ji *JobInfo, up *UploadOutput) error {
	if err := c.transition(ctx, ji.VideoID, store.StatusUploadingToStorage, store.StatusFinalizing); err != nil {
		return err
	}

	err := c.retryStage(ctx, ji, StageFinalize, c.Retries.Finalize, func(attempt int, final bool) error {
		return c.Store.Finalize(ctx, ji.VideoID, up.MasterURL, up.AvailableQualities)
	})
	if err != nil {
		return err
	}

	if ji.workspace != nil {
		if err := ji.workspace.Teardown(); err != nil {
			log.LogError(ji.VideoID, "Failed to clean up workspace", err)
		}
	}
	log.Log(ji.VideoID, "Finalized video", "manifest_url", up.MasterURL, "qualities", len(up.AvailableQualities))
	return nil
}
