package video

import (
	"github.com/google/uuid"
	"github.com/grafov/m3u8"
)

// MasterPlaylistName is the entry point uploaded alongside the rendition
// playlists.
const MasterPlaylistName = "master.m3u8"

// MasterPlaylist renders the master manifest referencing one media playlist
// per rendition. Renditions are listed in the order given, which the ladder
// produces largest first. Each variant declares only BANDWIDTH and
// RESOLUTION; everything else lives in the media playlists ffmpeg writes.
func MasterPlaylist(id uuid.UUID, ladder []Rendition) []byte {
	master := m3u8.NewMasterPlaylist()
	for _, r := range ladder {
		master.Append(
			PlaylistName(r, id),
			&m3u8.MediaPlaylist{},
			m3u8.VariantParams{
				Bandwidth:  BandwidthForHeight(r.Height),
				Resolution: r.String(),
			},
		)
	}
	return master.Encode().Bytes()
}
