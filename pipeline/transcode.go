package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/streamforge/vodflow/config"
	"github.com/streamforge/vodflow/errors"
	"github.com/streamforge/vodflow/log"
	"github.com/streamforge/vodflow/metrics"
	"github.com/streamforge/vodflow/store"
	"golang.org/x/sync/errgroup"
)

// runTranscodeFanOut encodes every ladder rung concurrently. Children never
// fail the group: each records its own Ok, Skipped or Failed result and the
// Aggregate stage decides what the subset means for the workflow.
func (c *Coordinator) runTranscodeFanOut(ctx context.Context, ji *JobInfo, prep *PrepareOutput) ([]RenditionResult, error) {
	if err := c.transition(ctx, ji.VideoID, store.StatusPreparing, store.StatusTranscoding); err != nil {
		return nil, err
	}
	ji.mu.Lock()
	ji.Stage = StageTranscode
	ji.mu.Unlock()

	results := make([]RenditionResult, len(c.Ladder))
	group, groupCtx := errgroup.WithContext(ctx)
	if c.Parallelism > 0 {
		group.SetLimit(c.Parallelism)
	}
	for i, rung := range c.Ladder {
		i, rung := i, rung
		group.Go(func() error {
			results[i] = c.transcodeRendition(groupCtx, ji, prep, rung)
			return nil
		})
	}
	// children only record results, the group error is always nil
	_ = group.Wait()

	for _, r := range results {
		switch {
		case r.Ok():
			metrics.Metrics.RenditionOutcome.WithLabelValues(r.Quality, "encoded").Inc()
		case r.Skipped:
			metrics.Metrics.RenditionOutcome.WithLabelValues(r.Quality, "skipped").Inc()
		default:
			metrics.Metrics.RenditionOutcome.WithLabelValues(r.Quality, "failed").Inc()
		}
	}
	return results, nil
}

// transcodeRendition is one fan-out child with its own retry budget.
func (c *Coordinator) transcodeRendition(ctx context.Context, ji *JobInfo, prep *PrepareOutput, rung config.Rung) RenditionResult {
	res := RenditionResult{Quality: rung.Label}

	stat, err := os.Stat(prep.RawLocalPath)
	if err != nil {
		res.Err = errors.Validation("source file %q is unreadable: %s", prep.RawLocalPath, err)
		return res
	}
	if stat.Size() == 0 {
		res.Err = errors.Validation("source file %q is empty", prep.RawLocalPath)
		return res
	}

	// No-upscale policy. A source exactly at the target height is encoded.
	if rung.Height > prep.Metadata.Height {
		res.Skipped = true
		res.SkipReason = "source height below target"
		log.Log(ji.VideoID, "Skipping rendition, source resolution below target",
			"quality", rung.Label, "target_height", rung.Height, "source_height", prep.Metadata.Height)
		return res
	}

	outputPath := prep.Workspace.RenditionPath(rung.Label)
	policy := c.Retries.Transcode
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := c.Encoder.Transcode(ji.VideoID, prep.RawLocalPath, outputPath, rung, c.EncoderThreads)
		if err == nil {
			metrics.Metrics.TranscodeDuration.WithLabelValues(rung.Label).Observe(time.Since(start).Seconds())
			break
		}
		if errors.IsUnretriable(err) || attempt >= policy.MaxAttempts {
			log.LogError(ji.VideoID, "Rendition failed terminally", err, "quality", rung.Label, "attempts", attempt)
			res.Err = err
			return res
		}
		log.LogError(ji.VideoID, "Rendition attempt failed, retrying", err, "quality", rung.Label, "attempt", attempt)
		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		case <-time.After(policy.Backoff):
		}
	}

	stat, err = os.Stat(outputPath)
	if err != nil {
		res.Err = errors.ToolFailure("ffmpeg", err)
		return res
	}
	res.LocalPath = outputPath
	res.ByteSize = stat.Size()
	log.Log(ji.VideoID, "Encoded rendition", "quality", rung.Label, "bytes", res.ByteSize)
	return res
}

// runAggregate joins the fan-out. Results are dropped iff skipped, failed or
// empty; if nothing remains the whole workflow fails.
func (c *Coordinator) runAggregate(ctx context.Context, ji *JobInfo, prep *PrepareOutput, results []RenditionResult) (*AggregateOutput, error) {
	if err := c.transition(ctx, ji.VideoID, store.StatusTranscoding, store.StatusAggregating); err != nil {
		return nil, err
	}
	ji.mu.Lock()
	ji.Stage = StageAggregate
	ji.mu.Unlock()

	renditions := make(map[string]TranscodedRendition, len(results))
	for _, r := range results {
		if !r.Ok() {
			continue
		}
		renditions[r.Quality] = TranscodedRendition{LocalPath: r.LocalPath, ByteSize: r.ByteSize}
	}
	if len(renditions) == 0 {
		return nil, errors.Validation("all transcodes failed")
	}

	qualities := make([]string, 0, len(renditions))
	for q := range renditions {
		qualities = append(qualities, q)
	}
	qualities = c.Ladder.SortLabels(qualities)

	log.Log(ji.VideoID, "Aggregated renditions", "qualities", len(qualities))
	return &AggregateOutput{
		VideoID:    ji.VideoID,
		Renditions: renditions,
		Qualities:  qualities,
	}, nil
}
