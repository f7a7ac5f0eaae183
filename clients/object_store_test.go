package clients

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentTypeForFile(t *testing.T) {
	require.Equal(t, "application/vnd.apple.mpegurl", ContentTypeForFile("/tmp/abc/master.m3u8"))
	require.Equal(t, "application/vnd.apple.mpegurl", ContentTypeForFile("playlist.M3U8"))
	require.Equal(t, "video/mp2t", ContentTypeForFile("segment_0001.ts"))
	require.Equal(t, "video/mp4", ContentTypeForFile("1080p.mp4"))
	require.Equal(t, "application/octet-stream", ContentTypeForFile("raw.mkv"))
}

func TestNewObjectStoreRejectsBadEndpoint(t *testing.T) {
	_, err := NewObjectStore("http://host with spaces", "key", "secret", false)
	require.Error(t, err)
}
