package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/streamforge/vodflow/errors"
	"github.com/streamforge/vodflow/log"
	"github.com/streamforge/vodflow/store"
)

// StatusResponse is what polling clients receive. Progress and message are
// derived from the persisted status, not from in-memory pipeline state.
type StatusResponse struct {
	VideoID     string `json:"video_id"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	Error       string `json:"error,omitempty"`
	IsCompleted bool   `json:"is_completed"`
	IsFailed    bool   `json:"is_failed"`
}

// GetVideoStatus serves GET /api/video/:id/status. The caller's identity
// arrives in the X-Owner-ID header; a mismatch with the row's owner is 403,
// a missing row is 404.
func (d *VodflowHandlersCollection) GetVideoStatus() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
		videoID := params.ByName("id")
		ownerID := req.Header.Get("X-Owner-ID")
		if ownerID == "" {
			errors.WriteHTTPForbidden(w, "Missing owner identity", nil)
			return
		}

		video, err := d.Store.GetVideo(req.Context(), videoID)
		if err != nil {
			if errors.IsValidation(err) {
				errors.WriteHTTPNotFound(w, "Video not found", nil)
				return
			}
			errors.WriteHTTPInternalServerError(w, "Failed to load video", err)
			return
		}
		if video.OwnerID != ownerID {
			errors.WriteHTTPForbidden(w, "Not the owner of this video", nil)
			return
		}

		progress := video.ProcessingStatus.Progress()
		resp := StatusResponse{
			VideoID:     video.ID,
			Status:      string(video.ProcessingStatus),
			Progress:    progress.Progress,
			Message:     progress.Message,
			Error:       video.ProcessingError,
			IsCompleted: video.ProcessingStatus == store.StatusCompleted,
			IsFailed:    video.ProcessingStatus == store.StatusFailed,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.LogNoVideoID("Failed to write status response", "video_id", videoID, "error", err)
		}
	}
}
