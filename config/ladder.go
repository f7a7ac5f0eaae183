package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Rung is a single entry in the rendition ladder.
type Rung struct {
	Label        string
	Width        int64
	Height       int64
	VideoBitrate string // ffmpeg bitrate string, e.g. "5000k"
	AudioBitrate string
}

// BitsPerSecond converts the rung's video bitrate string to bits per second,
// e.g. "5000k" -> 5000000.
func (r Rung) BitsPerSecond() (uint32, error) {
	s := strings.TrimSuffix(strings.ToLower(r.VideoBitrate), "k")
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid bitrate %q for rung %s: %w", r.VideoBitrate, r.Label, err)
	}
	return uint32(n * 1000), nil
}

// Ladder is an ordered set of rungs, highest quality first. The order is
// load-bearing: the master playlist lists renditions in ladder order.
type Ladder []Rung

const DefaultAudioBitrate = "128k"

// DefaultLadder is the reference rendition ladder.
var DefaultLadder = Ladder{
	{Label: "2160p", Width: 3840, Height: 2160, VideoBitrate: "20000k", AudioBitrate: DefaultAudioBitrate},
	{Label: "1440p", Width: 2560, Height: 1440, VideoBitrate: "10000k", AudioBitrate: DefaultAudioBitrate},
	{Label: "1080p", Width: 1920, Height: 1080, VideoBitrate: "5000k", AudioBitrate: DefaultAudioBitrate},
	{Label: "720p", Width: 1280, Height: 720, VideoBitrate: "2500k", AudioBitrate: DefaultAudioBitrate},
	{Label: "480p", Width: 854, Height: 480, VideoBitrate: "1000k", AudioBitrate: DefaultAudioBitrate},
	{Label: "360p", Width: 640, Height: 360, VideoBitrate: "500k", AudioBitrate: DefaultAudioBitrate},
	{Label: "240p", Width: 426, Height: 240, VideoBitrate: "300k", AudioBitrate: DefaultAudioBitrate},
	{Label: "144p", Width: 256, Height: 144, VideoBitrate: "200k", AudioBitrate: DefaultAudioBitrate},
}

// Rung returns the ladder entry for label, or false if the label is unknown.
func (l Ladder) Rung(label string) (Rung, bool) {
	for _, r := range l {
		if r.Label == label {
			return r, true
		}
	}
	return Rung{}, false
}

func (l Ladder) Labels() []string {
	labels := make([]string, 0, len(l))
	for _, r := range l {
		labels = append(labels, r.Label)
	}
	return labels
}

// SortLabels filters labels to those present in the ladder and returns them in
// ladder (descending preference) order.
func (l Ladder) SortLabels(labels []string) []string {
	present := make(map[string]bool, len(labels))
	for _, q := range labels {
		present[q] = true
	}
	sorted := make([]string, 0, len(labels))
	for _, r := range l {
		if present[r.Label] {
			sorted = append(sorted, r.Label)
		}
	}
	return sorted
}

// ParseLadder parses a comma-separated list of "label:WxH:bitrate" entries,
// e.g. "1080p:1920x1080:5000k,720p:1280x720:2500k".
func ParseLadder(s string) (Ladder, error) {
	var ladder Ladder
	for _, entry := range strings.Split(s, ",") {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid ladder entry %q, expected label:WxH:bitrate", entry)
		}
		dims := strings.SplitN(parts[1], "x", 2)
		if len(dims) != 2 {
			return nil, fmt.Errorf("invalid ladder resolution %q, expected WxH", parts[1])
		}
		width, err := strconv.ParseInt(dims[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ladder width %q: %w", dims[0], err)
		}
		height, err := strconv.ParseInt(dims[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ladder height %q: %w", dims[1], err)
		}
		rung := Rung{
			Label:        parts[0],
			Width:        width,
			Height:       height,
			VideoBitrate: parts[2],
			AudioBitrate: DefaultAudioBitrate,
		}
		if _, err := rung.BitsPerSecond(); err != nil {
			return nil, err
		}
		ladder = append(ladder, rung)
	}
	if len(ladder) == 0 {
		return nil, fmt.Errorf("empty ladder")
	}
	return ladder, nil
}
