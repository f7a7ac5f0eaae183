package video

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grafov/m3u8"
	"github.com/streamforge/vodflow/config"
	"github.com/streamforge/vodflow/errors"
)

// MasterPlaylistName is the top-level manifest filename.
const MasterPlaylistName = "master.m3u8"

// WriteMasterPlaylist renders the master manifest into segmentsDir, listing
// the given qualities in the ladder's descending preference order. Qualities
// not present in the ladder are rejected. Returns the manifest path.
//
// The manifest is rendered by hand rather than with the m3u8 library because
// players expect exactly BANDWIDTH and RESOLUTION per variant line, and the
// library insists on emitting the deprecated PROGRAM-ID attribute. The
// library still parses the result back as a syntax check.
func WriteMasterPlaylist(segmentsDir string, qualities []string, ladder config.Ladder) (string, error) {
	if len(qualities) == 0 {
		return "", errors.Validation("no qualities available for master playlist")
	}

	sorted := ladder.SortLabels(qualities)
	if len(sorted) != len(qualities) {
		return "", errors.Validation("qualities %v contain labels not in the rendition ladder", qualities)
	}

	var buf bytes.Buffer
	buf.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	for _, label := range sorted {
		rung, _ := ladder.Rung(label)
		bps, err := rung.BitsPerSecond()
		if err != nil {
			return "", fmt.Errorf("bad bitrate for rung %q: %w", label, err)
		}
		fmt.Fprintf(&buf, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n%s/playlist.m3u8\n",
			bps, rung.Width, rung.Height, label)
	}

	if err := verifyMasterPlaylist(buf.Bytes(), len(qualities)); err != nil {
		return "", err
	}

	manifestPath := filepath.Join(segmentsDir, MasterPlaylistName)
	if err := os.WriteFile(manifestPath, buf.Bytes(), 0644); err != nil {
		return "", errors.TransientIO(fmt.Errorf("failed to write master playlist %q: %w", manifestPath, err))
	}
	return manifestPath, nil
}

func verifyMasterPlaylist(manifest []byte, wantVariants int) error {
	playlist, playlistType, err := m3u8.DecodeFrom(bytes.NewReader(manifest), true)
	if err != nil {
		return fmt.Errorf("generated master playlist does not parse: %w", err)
	}
	if playlistType != m3u8.MASTER {
		return fmt.Errorf("generated playlist is not a master playlist")
	}
	master := playlist.(*m3u8.MasterPlaylist)
	if len(master.Variants) != wantVariants {
		return fmt.Errorf("generated master playlist has %d variants, expected %d", len(master.Variants), wantVariants)
	}
	return nil
}
