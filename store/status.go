package store

// Status is the persisted processing state of a video. The states form a
// linear chain from queued to completed; any non-terminal state may drop to
// failed.
type Status string

const (
	StatusUploading          Status = "uploading"
	StatusQueued             Status = "queued"
	StatusPreparing          Status = "preparing"
	StatusTranscoding        Status = "transcoding"
	StatusAggregating        Status = "aggregating"
	StatusSegmenting         Status = "segmenting"
	StatusCreatingManifest   Status = "creating_manifest"
	StatusUploadingToStorage Status = "uploading_to_storage"
	StatusFinalizing         Status = "finalizing"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
)

// chainOrder is the forward processing chain. failed is reachable from any
// non-terminal state and is not part of the chain.
var chainOrder = []Status{
	StatusUploading,
	StatusQueued,
	StatusPreparing,
	StatusTranscoding,
	StatusAggregating,
	StatusSegmenting,
	StatusCreatingManifest,
	StatusUploadingToStorage,
	StatusFinalizing,
	StatusCompleted,
}

// StatusProgress is what the polling endpoint reports for each state.
type StatusProgress struct {
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

var progressByStatus = map[Status]StatusProgress{
	StatusUploading:          {5, "Uploading video"},
	StatusQueued:             {15, "Queued for processing"},
	StatusPreparing:          {25, "Analyzing video"},
	StatusTranscoding:        {50, "Creating quality versions"},
	StatusAggregating:        {60, "Compiling outputs"},
	StatusSegmenting:         {70, "Preparing for streaming"},
	StatusCreatingManifest:   {80, "Generating playlists"},
	StatusUploadingToStorage: {90, "Saving to storage"},
	StatusFinalizing:         {95, "Almost done"},
	StatusCompleted:          {100, "Complete"},
	StatusFailed:             {0, "Failed"},
}

func (s Status) Valid() bool {
	_, ok := progressByStatus[s]
	return ok
}

func (s Status) Progress() StatusProgress {
	return progressByStatus[s]
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) chainIndex() int {
	for i, st := range chainOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next is allowed: one step
// forward along the chain, or to failed from any non-terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	if next == StatusFailed {
		return !s.Terminal()
	}
	cur, nxt := s.chainIndex(), next.chainIndex()
	if cur < 0 || nxt < 0 {
		return false
	}
	return nxt == cur+1
}
