package pipeline

import (
	"sync"
	"time"

	"github.com/streamforge/vodflow/broker"
	"github.com/streamforge/vodflow/video"
	"github.com/streamforge/vodflow/workspace"
)

// PrepareOutput is what the Prepare stage hands to the transcode fan-out.
type PrepareOutput struct {
	VideoID      string
	RawLocalPath string
	Workspace    *workspace.Workspace
	Metadata     video.SourceMetadata
}

// RenditionResult is the outcome of one transcode fan-out child. Exactly one
// of Ok, Skipped or Failed describes it.
type RenditionResult struct {
	Quality string

	// Ok
	LocalPath string
	ByteSize  int64

	// Skipped: source resolution below target, encoder never invoked
	Skipped    bool
	SkipReason string

	// Failed: all attempts exhausted
	Err error
}

func (r RenditionResult) Ok() bool {
	return !r.Skipped && r.Err == nil && r.LocalPath != ""
}

// TranscodedRendition is one surviving fan-out result after Aggregate.
type TranscodedRendition struct {
	LocalPath string
	ByteSize  int64
}

// AggregateOutput is the joined fan-out result: only renditions that actually
// encoded, keyed by quality label.
type AggregateOutput struct {
	VideoID    string
	Renditions map[string]TranscodedRendition
	// Qualities in ladder (descending) order.
	Qualities []string
}

// SegmentedRendition is one rendition's HLS output.
type SegmentedRendition struct {
	PlaylistPath string
	SegmentsDir  string
	SegmentCount int
}

// SegmentOutput maps each surviving quality to its HLS artifacts.
type SegmentOutput struct {
	VideoID     string
	Renditions  map[string]SegmentedRendition
	Qualities   []string
	SegmentsDir string
}

// ManifestOutput carries the master playlist location.
type ManifestOutput struct {
	VideoID            string
	MasterPlaylistPath string
	SegmentsDir        string
	AvailableQualities []string
}

// UploadOutput summarizes the bulk upload.
type UploadOutput struct {
	VideoID            string
	MasterURL          string
	Bucket             string
	BasePath           string
	TotalFiles         int
	TotalBytes         int64
	AvailableQualities []string
}

// JobInfo is the in-flight state of one workflow run, kept in the jobs cache
// for observability while the chain executes.
type JobInfo struct {
	mu sync.Mutex
	broker.Job

	Stage     string
	StartedAt time.Time

	workspace *workspace.Workspace
}
