package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/streamforge/vodflow/log"
	"github.com/streamforge/vodflow/metrics"
	"github.com/streamforge/vodflow/store"
	"github.com/streamforge/vodflow/video"
)

// runUpload pushes the HLS tree to the processed bucket: master playlist
// first, then each quality's playlist followed by its segments in
// lexicographic order. PUTs are idempotent on retry since keys and bytes are
// the same.
func (c *Coordinator) runUpload(ctx context.Context, ji *JobInfo, man *ManifestOutput) (*UploadOutput, error) {
	if err := c.transition(ctx, ji.VideoID, store.StatusCreatingManifest, store.StatusUploadingToStorage); err != nil {
		return nil, err
	}

	basePath := ji.VideoID + "/segments"
	var totalFiles int
	var totalBytes int64

	err := c.retryStage(ctx, ji, StageUpload, c.Retries.Upload, func(attempt int, final bool) error {
		totalFiles, totalBytes = 0, 0

		put := func(key, localPath string) error {
			n, err := c.ObjectStore.PutFile(ctx, c.ProcessedBucket, key, localPath)
			if err != nil {
				return err
			}
			totalFiles++
			totalBytes += n
			return nil
		}

		if err := put(basePath+"/"+video.MasterPlaylistName, man.MasterPlaylistPath); err != nil {
			return err
		}
		for _, quality := range man.AvailableQualities {
			qualityDir := filepath.Join(man.SegmentsDir, quality)
			if err := put(basePath+"/"+quality+"/"+video.HLSPlaylistName, filepath.Join(qualityDir, video.HLSPlaylistName)); err != nil {
				return err
			}

			segments, err := filepath.Glob(filepath.Join(qualityDir, "segment_*.ts"))
			if err != nil {
				return fmt.Errorf("failed to list segments for %s: %w", quality, err)
			}
			sort.Strings(segments)
			for _, segment := range segments {
				if err := put(basePath+"/"+quality+"/"+filepath.Base(segment), segment); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Metrics.UploadedFiles.Add(float64(totalFiles))
	metrics.Metrics.UploadedBytes.Add(float64(totalBytes))
	log.Log(ji.VideoID, "Uploaded HLS tree", "files", totalFiles, "bytes", totalBytes, "bucket", c.ProcessedBucket)

	return &UploadOutput{
		VideoID:            ji.VideoID,
		MasterURL:          "/" + c.ProcessedBucket + "/" + basePath + "/" + video.MasterPlaylistName,
		Bucket:             c.ProcessedBucket,
		BasePath:           basePath,
		TotalFiles:         totalFiles,
		TotalBytes:         totalBytes,
		AvailableQualities: man.AvailableQualities,
	}, nil
}
