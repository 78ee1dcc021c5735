// Package video holds the rendition ladder, source probing and HLS playlist
// generation shared by the transcoding pipeline.
package video

import (
	"fmt"

	"github.com/google/uuid"
)

// Rendition is one output resolution of the HLS ladder.
type Rendition struct {
	Width  int
	Height int
}

func (r Rendition) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ladderRungs are the candidate output resolutions, largest first. A rung is
// used only when both its dimensions fit inside the source.
var ladderRungs = []Rendition{
	{3840, 2160},
	{2560, 1440},
	{1920, 1080},
	{1280, 720},
	{854, 480},
	{640, 360},
	{426, 240},
}

// FloorRendition is produced for every source regardless of its size, so
// even tiny inputs yield at least one playable variant.
var FloorRendition = Rendition{256, 144}

// LadderFor returns the renditions to produce for a source of the given
// dimensions: every rung that fits inside the source box, plus the floor.
func LadderFor(width, height int) []Rendition {
	ladder := make([]Rendition, 0, len(ladderRungs)+1)
	for _, r := range ladderRungs {
		if r.Width <= width && r.Height <= height {
			ladder = append(ladder, r)
		}
	}
	return append(ladder, FloorRendition)
}

// BandwidthForHeight maps a rendition height to the BANDWIDTH value declared
// for its variant in the master playlist.
func BandwidthForHeight(height int) uint32 {
	switch height {
	case 144:
		return 500_000
	case 240:
		return 750_000
	case 360:
		return 1_000_000
	case 480:
		return 1_500_000
	case 720:
		return 2_500_000
	case 1080:
		return 5_000_000
	case 1440:
		return 8_000_000
	case 2160:
		return 16_000_000
	default:
		return 500_000
	}
}

// PlaylistName is the media playlist filename for one rendition of a video,
// e.g. "720p-<uuid>.m3u8". Segment files produced alongside it share the
// same stem.
func PlaylistName(r Rendition, id uuid.UUID) string {
	return fmt.Sprintf("%dp-%s.m3u8", r.Height, id)
}
