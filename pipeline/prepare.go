package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/streamforge/vodflow/errors"
	"github.com/streamforge/vodflow/log"
	"github.com/streamforge/vodflow/workspace"
)

// runPrepare claims the queued row, downloads the source and probes it. The
// claim happens once, outside the retry loop: a video that is not queued is a
// fatal precondition failure, and a successful claim must not be repeated on
// a download retry.
func (c *Coordinator) runPrepare(ctx context.Context, ji *JobInfo) (*PrepareOutput, error) {
	if err := c.Store.Claim(ctx, ji.VideoID); err != nil {
		return nil, err
	}
	if err := c.Store.SetWorkflowHandle(ctx, ji.VideoID, ji.WorkflowHandle); err != nil {
		return nil, err
	}

	var out *PrepareOutput
	err := c.retryStage(ctx, ji, StagePrepare, c.Retries.Prepare, func(attempt int, final bool) error {
		var err error
		out, err = c.prepareAttempt(ctx, ji)
		return err
	})
	return out, err
}

func (c *Coordinator) prepareAttempt(ctx context.Context, ji *JobInfo) (*PrepareOutput, error) {
	ws, err := workspace.Create(c.TempDir, ji.VideoID)
	if err != nil {
		return nil, errors.TransientIO(err)
	}
	ji.mu.Lock()
	ji.workspace = ws
	ji.mu.Unlock()

	// keep the uploaded extension so the probe can sniff the container
	rawPath := ws.SourcePath(filepath.Ext(ji.RawSourceKey))
	n, err := c.ObjectStore.DownloadToFile(ctx, c.RawBucket, ji.RawSourceKey, rawPath)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.Validation("source object %q is empty", ji.RawSourceKey)
	}
	log.Log(ji.VideoID, "Downloaded source", "key", ji.RawSourceKey, "bytes", n)

	md, err := c.Prober.ProbeFile(ji.VideoID, rawPath)
	if err != nil {
		return nil, fmt.Errorf("probe of %q failed: %w", ji.RawSourceKey, err)
	}
	if err := c.Store.SaveMetadata(ctx, ji.VideoID, md); err != nil {
		return nil, err
	}
	log.Log(ji.VideoID, "Probed source",
		"duration", md.DurationSeconds, "width", md.Width, "height", md.Height,
		"codec", md.Codec, "frame_rate", md.FrameRate)

	return &PrepareOutput{
		VideoID:      ji.VideoID,
		RawLocalPath: rawPath,
		Workspace:    ws,
		Metadata:     md,
	}, nil
}
