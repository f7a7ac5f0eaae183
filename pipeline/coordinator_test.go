package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/streamforge/vodflow/broker"
	"github.com/streamforge/vodflow/cache"
	"github.com/streamforge/vodflow/config"
	"github.com/streamforge/vodflow/errors"
	"github.com/streamforge/vodflow/store"
	"github.com/streamforge/vodflow/video"
	"github.com/stretchr/testify/require"
)

// StubVideoStore mimics the guarded writes of the real store in memory.
type StubVideoStore struct {
	mu          sync.Mutex
	status      store.Status
	transitions []store.Status
	failedMsg   string
	metadata    *video.SourceMetadata
	handle      string
	manifestURL string
	qualities   []string
}

func (s *StubVideoStore) GetVideo(ctx context.Context, videoID string) (store.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.Video{ID: videoID, ProcessingStatus: s.status}, nil
}

func (s *StubVideoStore) Claim(ctx context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != store.StatusQueued {
		return errors.Validation("video %q is missing or not in queued state", videoID)
	}
	s.status = store.StatusPreparing
	s.transitions = append(s.transitions, s.status)
	return nil
}

func (s *StubVideoStore) UpdateStatus(ctx context.Context, videoID string, from, to store.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !from.CanTransitionTo(to) {
		return errors.Validation("illegal status transition %s -> %s", from, to)
	}
	if s.status != from {
		return errors.Validation("video %q is no longer in %s state", videoID, from)
	}
	s.status = to
	s.transitions = append(s.transitions, to)
	return nil
}

func (s *StubVideoStore) MarkFailed(ctx context.Context, videoID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return nil
	}
	s.status = store.StatusFailed
	s.transitions = append(s.transitions, s.status)
	s.failedMsg = errMsg
	return nil
}

func (s *StubVideoStore) SaveMetadata(ctx context.Context, videoID string, md video.SourceMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = &md
	return nil
}

func (s *StubVideoStore) SetWorkflowHandle(ctx context.Context, videoID, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = handle
	return nil
}

func (s *StubVideoStore) Finalize(ctx context.Context, videoID, manifestURL string, qualities []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != store.StatusFinalizing {
		return errors.Validation("video %q not in finalizing state", videoID)
	}
	s.status = store.StatusCompleted
	s.transitions = append(s.transitions, s.status)
	s.manifestURL = manifestURL
	s.qualities = qualities
	return nil
}

// StubObjectStore downloads canned bytes and records uploads in order.
type StubObjectStore struct {
	mu            sync.Mutex
	sourceBytes   []byte
	downloadFails int
	uploads       []string
	uploadErrs    map[string]error
}

func (s *StubObjectStore) DownloadToFile(ctx context.Context, bucket, key, localPath string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downloadFails > 0 {
		s.downloadFails--
		return 0, errors.TransientIO(fmt.Errorf("stubbed download failure"))
	}
	if err := os.WriteFile(localPath, s.sourceBytes, 0644); err != nil {
		return 0, err
	}
	return int64(len(s.sourceBytes)), nil
}

func (s *StubObjectStore) PutFile(ctx context.Context, bucket, key, localPath string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.uploadErrs[key]; ok {
		return 0, err
	}
	stat, err := os.Stat(localPath)
	if err != nil {
		return 0, err
	}
	s.uploads = append(s.uploads, key)
	return stat.Size(), nil
}

// StubProber returns fixed metadata without running any tool.
type StubProber struct {
	metadata video.SourceMetadata
	err      error
}

func (s StubProber) ProbeFile(videoID, path string) (video.SourceMetadata, error) {
	if s.err != nil {
		return video.SourceMetadata{}, s.err
	}
	return s.metadata, nil
}

// StubEncoder fabricates rendition and segment files on disk. failQualities
// maps a quality to how many times it should fail before succeeding (-1 for
// always).
type StubEncoder struct {
	mu            sync.Mutex
	failQualities map[string]int
	segmentFails  map[string]int
	encoded       []string
}

func (s *StubEncoder) shouldFail(m map[string]int, quality string) bool {
	if m == nil {
		return false
	}
	left, ok := m[quality]
	if !ok {
		return false
	}
	if left < 0 {
		return true
	}
	if left == 0 {
		return false
	}
	m[quality] = left - 1
	return true
}

func (s *StubEncoder) Transcode(videoID, sourcePath, outputPath string, rung config.Rung, threads int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldFail(s.failQualities, rung.Label) {
		return errors.ToolFailure("ffmpeg", fmt.Errorf("stubbed encode failure for %s", rung.Label))
	}
	s.encoded = append(s.encoded, rung.Label)
	return os.WriteFile(outputPath, []byte("encoded-"+rung.Label), 0644)
}

func (s *StubEncoder) SegmentToHLS(videoID, sourcePath, outputDir string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quality := filepath.Base(outputDir)
	if s.shouldFail(s.segmentFails, quality) {
		return 0, errors.ToolFailure("ffmpeg", fmt.Errorf("stubbed segment failure for %s", quality))
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}
	for _, name := range []string{"playlist.m3u8", "segment_0000.ts", "segment_0001.ts"} {
		if err := os.WriteFile(filepath.Join(outputDir, name), []byte(quality+"/"+name), 0644); err != nil {
			return 0, err
		}
	}
	return 2, nil
}

func fastRetries() config.RetryPolicies {
	r := config.DefaultRetryPolicies()
	r.Prepare.Backoff = time.Millisecond
	r.Transcode.Backoff = time.Millisecond
	r.Segment.Backoff = time.Millisecond
	r.Manifest.Backoff = time.Millisecond
	r.Upload.Backoff = time.Millisecond
	return r
}

func newTestCoordinator(t *testing.T, videoStore *StubVideoStore, objectStore *StubObjectStore, prober StubProber, encoder *StubEncoder) *Coordinator {
	t.Helper()
	return &Coordinator{
		Store:           videoStore,
		ObjectStore:     objectStore,
		Prober:          prober,
		Encoder:         encoder,
		Ladder:          config.DefaultLadder,
		Retries:         fastRetries(),
		TempDir:         t.TempDir(),
		RawBucket:       "raw",
		ProcessedBucket: "processed",
		EncoderThreads:  2,
		Parallelism:     4,
		Jobs:            cache.New[*JobInfo](),
	}
}

func testJob() *broker.Job {
	return &broker.Job{
		VideoID:        "vid-1",
		OwnerID:        "owner-1",
		RawSourceKey:   "user-owner-1/abc.mp4",
		WorkflowHandle: "wf-1",
	}
}

func hdMetadata() video.SourceMetadata {
	return video.SourceMetadata{
		DurationSeconds: 10,
		Width:           1920,
		Height:          1080,
		Codec:           "h264",
		Bitrate:         5000000,
		FrameRate:       30,
	}
}

func TestProcessHappyPath(t *testing.T) {
	videoStore := &StubVideoStore{status: store.StatusQueued}
	objectStore := &StubObjectStore{sourceBytes: []byte("source-bytes")}
	encoder := &StubEncoder{}
	c := newTestCoordinator(t, videoStore, objectStore, StubProber{metadata: hdMetadata()}, encoder)

	require.NoError(t, c.Process(context.Background(), testJob()))

	require.Equal(t, store.StatusCompleted, videoStore.status)
	require.Equal(t, []store.Status{
		store.StatusPreparing, store.StatusTranscoding, store.StatusAggregating,
		store.StatusSegmenting, store.StatusCreatingManifest,
		store.StatusUploadingToStorage, store.StatusFinalizing, store.StatusCompleted,
	}, videoStore.transitions)

	// 1080p source: everything above 1080p is skipped
	require.Equal(t, []string{"1080p", "720p", "480p", "360p", "240p", "144p"}, videoStore.qualities)
	require.Equal(t, "/processed/vid-1/segments/master.m3u8", videoStore.manifestURL)
	require.Equal(t, "wf-1", videoStore.handle)
	require.NotNil(t, videoStore.metadata)

	// master playlist is the first object uploaded
	require.Equal(t, "vid-1/segments/master.m3u8", objectStore.uploads[0])
	// per quality: playlist plus two segments, after the master
	require.Len(t, objectStore.uploads, 1+6*3)
	require.Equal(t, "vid-1/segments/1080p/playlist.m3u8", objectStore.uploads[1])
	require.Equal(t, "vid-1/segments/1080p/segment_0000.ts", objectStore.uploads[2])
	require.Equal(t, "vid-1/segments/1080p/segment_0001.ts", objectStore.uploads[3])

	// workspace deleted on success
	_, err := os.Stat(filepath.Join(c.TempDir, "vid-1"))
	require.True(t, os.IsNotExist(err))
	// in-flight cache drained
	require.Equal(t, 0, c.Jobs.Len())
}

func TestProcessLowResSourceSkipsHigherRungs(t *testing.T) {
	videoStore := &StubVideoStore{status: store.StatusQueued}
	objectStore := &StubObjectStore{sourceBytes: []byte("source-bytes")}
	encoder := &StubEncoder{}
	md := hdMetadata()
	md.Width, md.Height = 640, 360
	c := newTestCoordinator(t, videoStore, objectStore, StubProber{metadata: md}, encoder)

	require.NoError(t, c.Process(context.Background(), testJob()))
	require.Equal(t, []string{"360p", "240p", "144p"}, videoStore.qualities)
	require.ElementsMatch(t, []string{"360p", "240p", "144p"}, encoder.encoded)
}

func TestProcessSourceHeightEqualToRungIsEncoded(t *testing.T) {
	videoStore := &StubVideoStore{status: store.StatusQueued}
	objectStore := &StubObjectStore{sourceBytes: []byte("source-bytes")}
	encoder := &StubEncoder{}
	md := hdMetadata()
	md.Width, md.Height = 1280, 720
	c := newTestCoordinator(t, videoStore, objectStore, StubProber{metadata: md}, encoder)

	require.NoError(t, c.Process(context.Background(), testJob()))
	require.Contains(t, videoStore.qualities, "720p")
	require.NotContains(t, videoStore.qualities, "1080p")
}

func TestProcessTransientDownloadFailureRetries(t *testing.T) {
	videoStore := &StubVideoStore{status: store.StatusQueued}
	objectStore := &StubObjectStore{sourceBytes: []byte("source-bytes"), downloadFails: 2}
	encoder := &StubEncoder{}
	c := newTestCoordinator(t, videoStore, objectStore, StubProber{metadata: hdMetadata()}, encoder)

	require.NoError(t, c.Process(context.Background(), testJob()))
	require.Equal(t, store.StatusCompleted, videoStore.status)
}

func TestProcessDownloadFailureExhaustsRetries(t *testing.T) {
	videoStore := &StubVideoStore{status: store.StatusQueued}
	objectStore := &StubObjectStore{sourceBytes: []byte("source-bytes"), downloadFails: 3}
	encoder := &StubEncoder{}
	c := newTestCoordinator(t, videoStore, objectStore, StubProber{metadata: hdMetadata()}, encoder)

	err := c.Process(context.Background(), testJob())
	require.Error(t, err)
	require.Equal(t, store.StatusFailed, videoStore.status)
	require.NotEmpty(t, videoStore.failedMsg)
}

func TestProcessCorruptSourceFailsWithoutRetry(t *testing.T) {
	videoStore := &StubVideoStore{status: store.StatusQueued}
	objectStore := &StubObjectStore{sourceBytes: []byte("not-a-video")}
	encoder := &StubEncoder{}
	prober := StubProber{err: errors.CorruptSource("no video stream found in file")}
	c := newTestCoordinator(t, videoStore, objectStore, prober, encoder)

	err := c.Process(context.Background(), testJob())
	require.Error(t, err)
	require.True(t, errors.IsUnretriable(err))
	require.Equal(t, store.StatusFailed, videoStore.status)
	require.Contains(t, videoStore.failedMsg, "no video stream")

	// error-path cleanup deletes the workspace
	_, statErr := os.Stat(filepath.Join(c.TempDir, "vid-1"))
	require.True(t, os.IsNotExist(statErr))
}

func TestProcessNotQueuedIsFatal(t *testing.T) {
	videoStore := &StubVideoStore{status: store.StatusCompleted}
	objectStore := &StubObjectStore{sourceBytes: []byte("source-bytes")}
	encoder := &StubEncoder{}
	c := newTestCoordinator(t, videoStore, objectStore, StubProber{metadata: hdMetadata()}, encoder)

	err := c.Process(context.Background(), testJob())
	require.Error(t, err)
	require.True(t, errors.IsValidation(err))
	// terminal rows are not overwritten by the failure path
	require.Equal(t, store.StatusCompleted, videoStore.status)
}

func TestProcessPartialTranscodeFailure(t *testing.T) {
	videoStore := &StubVideoStore{status: store.StatusQueued}
	objectStore := &StubObjectStore{sourceBytes: []byte("source-bytes")}
	encoder := &StubEncoder{failQualities: map[string]int{"480p": -1}}
	c := newTestCoordinator(t, videoStore, objectStore, StubProber{metadata: hdMetadata()}, encoder)

	require.NoError(t, c.Process(context.Background(), testJob()))
	require.Equal(t, store.StatusCompleted, videoStore.status)
	require.Equal(t, []string{"1080p", "720p", "360p", "240p", "144p"}, videoStore.qualities)
	require.NotContains(t, objectStore.uploads, "vid-1/segments/480p/playlist.m3u8")
}

func TestProcessTransientTranscodeFailureRetries(t *testing.T) {
	videoStore := &StubVideoStore{status: store.StatusQueued}
	objectStore := &StubObjectStore{sourceBytes: []byte("source-bytes")}
	encoder := &StubEncoder{failQualities: map[string]int{"720p": 1}}
	c := newTestCoordinator(t, videoStore, objectStore, StubProber{metadata: hdMetadata()}, encoder)

	require.NoError(t, c.Process(context.Background(), testJob()))
	require.Contains(t, videoStore.qualities, "720p")
}

func TestProcessAllTranscodesFail(t *testing.T) {
	videoStore := &StubVideoStore{status: store.StatusQueued}
	objectStore := &StubObjectStore{sourceBytes: []byte("source-bytes")}
	encoder := &StubEncoder{failQualities: map[string]int{
		"2160p": -1, "1440p": -1, "1080p": -1, "720p": -1,
		"480p": -1, "360p": -1, "240p": -1, "144p": -1,
	}}
	c := newTestCoordinator(t, videoStore, objectStore, StubProber{metadata: hdMetadata()}, encoder)

	err := c.Process(context.Background(), testJob())
	require.Error(t, err)
	require.Equal(t, "all transcodes failed", videoStore.failedMsg)
	require.Equal(t, store.StatusFailed, videoStore.status)
	// the chain stopped at aggregate
	require.NotContains(t, videoStore.transitions, store.StatusSegmenting)
	require.Empty(t, objectStore.uploads)

	_, statErr := os.Stat(filepath.Join(c.TempDir, "vid-1"))
	require.True(t, os.IsNotExist(statErr))
}

func TestProcessSegmentFailureDropsQualityOnFinalAttempt(t *testing.T) {
	videoStore := &StubVideoStore{status: store.StatusQueued}
	objectStore := &StubObjectStore{sourceBytes: []byte("source-bytes")}
	encoder := &StubEncoder{segmentFails: map[string]int{"720p": -1}}
	c := newTestCoordinator(t, videoStore, objectStore, StubProber{metadata: hdMetadata()}, encoder)

	require.NoError(t, c.Process(context.Background(), testJob()))
	require.Equal(t, store.StatusCompleted, videoStore.status)
	require.NotContains(t, videoStore.qualities, "720p")
	require.Contains(t, videoStore.qualities, "1080p")
}

func TestProcessUploadFailureExhaustsRetries(t *testing.T) {
	videoStore := &StubVideoStore{status: store.StatusQueued}
	objectStore := &StubObjectStore{
		sourceBytes: []byte("source-bytes"),
		uploadErrs: map[string]error{
			"vid-1/segments/master.m3u8": errors.TransientIO(fmt.Errorf("stubbed upload failure")),
		},
	}
	encoder := &StubEncoder{}
	c := newTestCoordinator(t, videoStore, objectStore, StubProber{metadata: hdMetadata()}, encoder)

	err := c.Process(context.Background(), testJob())
	require.Error(t, err)
	require.Equal(t, store.StatusFailed, videoStore.status)
	require.Contains(t, videoStore.failedMsg, "upload failed after 3 attempts")
}
