package video

// SourceMetadata is the probed description of an uploaded source file. It is
// persisted as the video row's processing_metadata blob.
type SourceMetadata struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int64   `json:"width"`
	Height          int64   `json:"height"`
	Codec           string  `json:"codec"`
	Bitrate         int64   `json:"bitrate"`
	FrameRate       float64 `json:"frame_rate"`
	FileSize        int64   `json:"file_size"`
	AudioCodec      string  `json:"audio_codec,omitempty"`
	AudioBitrate    int64   `json:"audio_bitrate,omitempty"`
}
