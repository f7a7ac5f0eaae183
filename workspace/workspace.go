// Package workspace manages the scratch directory layout a single workflow
// uses between download and upload.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is the on-disk scratch area for one video:
//
//	<root>/<video_id>/
//	   raw.<ext>      downloaded source upload
//	   transcoded/    one mp4 per rendition
//	   segments/      one dir per rendition plus master.m3u8
type Workspace struct {
	Dir           string
	TranscodedDir string
	SegmentsDir   string
}

// Create builds the directory tree for a video under root.
func Create(root, videoID string) (*Workspace, error) {
	w := &Workspace{
		Dir:           filepath.Join(root, videoID),
		TranscodedDir: filepath.Join(root, videoID, "transcoded"),
		SegmentsDir:   filepath.Join(root, videoID, "segments"),
	}
	for _, dir := range []string{w.Dir, w.TranscodedDir, w.SegmentsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create workspace dir %q: %w", dir, err)
		}
	}
	return w, nil
}

// SourcePath is where the downloaded raw upload lives, keeping the original
// file extension so the media tools can sniff the container.
func (w *Workspace) SourcePath(ext string) string {
	return filepath.Join(w.Dir, "raw"+ext)
}

// RenditionPath is the transcoded mp4 for one quality.
func (w *Workspace) RenditionPath(quality string) string {
	return filepath.Join(w.TranscodedDir, quality+".mp4")
}

// RenditionSegmentsDir is the per-quality HLS output directory.
func (w *Workspace) RenditionSegmentsDir(quality string) string {
	return filepath.Join(w.SegmentsDir, quality)
}

// Teardown removes the whole tree. Safe to call more than once.
func (w *Workspace) Teardown() error {
	return os.RemoveAll(w.Dir)
}
