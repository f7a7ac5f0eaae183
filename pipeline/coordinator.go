// Package pipeline executes the video processing chain: Prepare, the parallel
// transcode fan-out, Aggregate, Segment, Manifest, Upload, Finalize. Each
// stage persists its status transition before doing work, so polling clients
// see monotonically progressing state.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/streamforge/vodflow/broker"
	"github.com/streamforge/vodflow/cache"
	"github.com/streamforge/vodflow/config"
	"github.com/streamforge/vodflow/errors"
	"github.com/streamforge/vodflow/log"
	"github.com/streamforge/vodflow/metrics"
	"github.com/streamforge/vodflow/store"
	"github.com/streamforge/vodflow/video"
)

// Stage names used for logging and metrics labels.
const (
	StagePrepare   = "prepare"
	StageTranscode = "transcode"
	StageAggregate = "aggregate"
	StageSegment   = "segment"
	StageManifest  = "manifest"
	StageUpload    = "upload"
	StageFinalize  = "finalize"
)

// VideoStore is the slice of the status store the pipeline writes through.
type VideoStore interface {
	GetVideo(ctx context.Context, videoID string) (store.Video, error)
	Claim(ctx context.Context, videoID string) error
	UpdateStatus(ctx context.Context, videoID string, from, to store.Status) error
	MarkFailed(ctx context.Context, videoID, errMsg string) error
	SaveMetadata(ctx context.Context, videoID string, md video.SourceMetadata) error
	SetWorkflowHandle(ctx context.Context, videoID, handle string) error
	Finalize(ctx context.Context, videoID, manifestURL string, qualities []string) error
}

// ObjectStore is the slice of the blob store the pipeline uses.
type ObjectStore interface {
	DownloadToFile(ctx context.Context, bucket, key, localPath string) (int64, error)
	PutFile(ctx context.Context, bucket, key, localPath string) (int64, error)
}

// Coordinator runs the whole stage chain for one job at a time per call.
// Construct it once at worker startup and share it across workers; all fields
// are read-only after construction.
type Coordinator struct {
	Store       VideoStore
	ObjectStore ObjectStore
	Prober      video.Prober
	Encoder     video.Encoder

	Ladder          config.Ladder
	Retries         config.RetryPolicies
	TempDir         string
	RawBucket       string
	ProcessedBucket string
	EncoderThreads  int
	// Upper bound on concurrent transcode children per job.
	Parallelism int

	Jobs *cache.Cache[*JobInfo]
}

func NewCoordinator(videoStore VideoStore, objectStore ObjectStore, cli config.Cli, parallelism int) *Coordinator {
	return &Coordinator{
		Store:           videoStore,
		ObjectStore:     objectStore,
		Prober:          video.Probe{},
		Encoder:         video.FFmpeg{},
		Ladder:          cli.Ladder,
		Retries:         cli.Retries,
		TempDir:         cli.TempDir,
		RawBucket:       cli.RawBucket,
		ProcessedBucket: cli.ProcessedBucket,
		EncoderThreads:  cli.EncoderThreads,
		Parallelism:     parallelism,
		Jobs:            cache.New[*JobInfo](),
	}
}

// Process runs the chain for one dequeued job, blocking until it reaches a
// terminal state. The returned error is terminal: the row has already been
// marked failed and the workspace deleted.
func (c *Coordinator) Process(ctx context.Context, job *broker.Job) error {
	log.AddContext(job.VideoID, "owner_id", job.OwnerID, "workflow_handle", job.WorkflowHandle)

	ji := &JobInfo{Job: *job, StartedAt: time.Now()}
	c.Jobs.Store(job.VideoID, ji)
	defer c.Jobs.Remove(job.VideoID)

	_, err := recovered(func() (bool, error) {
		return true, c.runChain(ctx, ji)
	})

	success := err == nil
	metrics.Metrics.PipelineResults.WithLabelValues(strconv.FormatBool(success)).Inc()
	metrics.Metrics.PipelineDuration.WithLabelValues(strconv.FormatBool(success)).Observe(time.Since(ji.StartedAt).Seconds())

	if err != nil {
		log.LogError(job.VideoID, "Pipeline failed", err, "stage", ji.Stage)
		c.failJob(ctx, ji, err)
		return err
	}
	log.Log(job.VideoID, "Pipeline completed", "duration", time.Since(ji.StartedAt).String())
	return nil
}

func (c *Coordinator) runChain(ctx context.Context, ji *JobInfo) error {
	prep, err := c.runPrepare(ctx, ji)
	if err != nil {
		return err
	}

	results, err := c.runTranscodeFanOut(ctx, ji, prep)
	if err != nil {
		return err
	}

	agg, err := c.runAggregate(ctx, ji, prep, results)
	if err != nil {
		return err
	}

	seg, err := c.runSegment(ctx, ji, prep, agg)
	if err != nil {
		return err
	}

	man, err := c.runManifest(ctx, ji, prep, seg)
	if err != nil {
		return err
	}

	up, err := c.runUpload(ctx, ji, man)
	if err != nil {
		return err
	}

	return c.runFinalize(ctx, ji, up)
}

// failJob is the terminal error path: persist the failure and delete the
// workspace. The row write is best-effort; an already-terminal row is left
// alone by the store.
func (c *Coordinator) failJob(ctx context.Context, ji *JobInfo, jobErr error) {
	if err := c.Store.MarkFailed(ctx, ji.VideoID, jobErr.Error()); err != nil {
		log.LogError(ji.VideoID, "Failed to persist terminal failure", err)
	}
	if ji.workspace != nil {
		if err := ji.workspace.Teardown(); err != nil {
			log.LogError(ji.VideoID, "Failed to clean up workspace after failure", err)
		}
	}
}

// retryStage runs one stage attempt loop under the given policy. The attempt
// callback learns whether it is the final try, which Segment uses to decide
// when to drop exhausted qualities. Unretriable errors short-circuit.
func (c *Coordinator) retryStage(ctx context.Context, ji *JobInfo, stage string, policy config.RetryPolicy, attempt func(attempt int, final bool) error) error {
	ji.mu.Lock()
	ji.Stage = stage
	ji.mu.Unlock()

	for try := 1; ; try++ {
		metrics.Metrics.StageAttempts.WithLabelValues(stage).Inc()
		start := time.Now()
		err := attempt(try, try >= policy.MaxAttempts)
		metrics.Metrics.StageDuration.WithLabelValues(stage, strconv.FormatBool(err == nil)).Observe(time.Since(start).Seconds())
		if err == nil {
			return nil
		}
		if errors.IsUnretriable(err) {
			return err
		}
		if try >= policy.MaxAttempts {
			return fmt.Errorf("%s failed after %d attempts: %w", stage, try, err)
		}

		log.LogError(ji.VideoID, "Stage attempt failed, retrying", err, "stage", stage, "attempt", try, "backoff", policy.Backoff.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Backoff):
		}
	}
}

func (c *Coordinator) transition(ctx context.Context, videoID string, from, to store.Status) error {
	if err := c.Store.UpdateStatus(ctx, videoID, from, to); err != nil {
		return err
	}
	log.Log(videoID, "Status transition", "from", string(from), "to", string(to))
	return nil
}

func recovered[T any](f func() (T, error)) (t T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.LogNoVideoID("panic in pipeline stage, recovering", "err", rec)
			err = fmt.Errorf("panic in pipeline stage: %v", rec)
		}
	}()
	return f()
}
