// Package pipeline is the transcoder worker: it consumes conversion
// commands, turns a raw upload into an HLS rendition tree in object storage
// and confirms completion back to the ingestion service.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/videonest/videonest/clients"
	"github.com/videonest/videonest/errors"
	"github.com/videonest/videonest/events"
	"github.com/videonest/videonest/log"
	"github.com/videonest/videonest/metrics"
	"github.com/videonest/videonest/video"
)

const sourceFileName = "source"

// Transcoder runs one conversion job per delivery. It owns no database
// access; completion is signalled over the confirm queue.
type Transcoder struct {
	ObjectStore clients.ObjectStore
	Publisher   clients.QueuePublisher
	Prober      video.Prober
	Renderer    Renderer

	// WorkDir is the parent for per-job scratch directories. Empty means
	// the system temp dir.
	WorkDir string
}

// HandleConvert processes one convert_video_to_hls delivery. The happy path
// is strictly ordered: download, probe, render every rendition, write the
// master playlist, upload the full tree, delete the source blob, publish the
// confirmation. Only after all of that does the caller ack.
//
// Every filesystem path used is inside a scratch directory keyed by the
// video uuid, removed on all exits, so a crashed or failed job leaves no
// local residue and a redelivery starts clean.
func (t *Transcoder) HandleConvert(ctx context.Context, body []byte) error {
	msg, err := events.ParseConvertVideoToHLS(body)
	if err != nil {
		return err
	}
	videoID := msg.UUID.String()
	log.AddContext(videoID, "video_path", msg.VideoPath)
	log.Log(videoID, "starting conversion")
	start := time.Now()

	workDir := filepath.Join(t.workRoot(), videoID)
	if err := os.MkdirAll(filepath.Join(workDir, "hls"), 0755); err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	sourcePath := filepath.Join(workDir, sourceFileName)
	if err := t.ObjectStore.Download(ctx, msg.VideoPath, sourcePath); err != nil {
		// requeue even when the key is absent: the notification can race
		// the blob becoming visible in the store
		log.LogError(videoID, "failed to download source", err)
		return err
	}

	source, err := t.Prober.Probe(ctx, sourcePath)
	if err != nil {
		// the blob is there but unreadable as video, retrying cannot help
		log.LogError(videoID, "failed to probe source", err)
		return errors.Unretriable(err)
	}
	ladder := video.LadderFor(source.Width, source.Height)
	log.Log(videoID, "probed source", "dimensions", source.String(), "renditions", len(ladder))

	hlsDir := filepath.Join(workDir, "hls")
	for _, rendition := range ladder {
		err := t.Renderer.Render(ctx, sourcePath, hlsDir, rendition, video.PlaylistName(rendition, msg.UUID))
		if err != nil {
			log.LogError(videoID, "failed to render", err, "rendition", rendition.String())
			metrics.Metrics.TranscodeFailures.Inc()
			return errors.Unretriable(err)
		}
		log.Log(videoID, "rendered", "rendition", rendition.String())
	}

	master := video.MasterPlaylist(msg.UUID, ladder)
	if err := os.WriteFile(filepath.Join(hlsDir, video.MasterPlaylistName), master, 0644); err != nil {
		return fmt.Errorf("writing master playlist: %w", err)
	}

	if err := t.uploadTree(ctx, videoID, hlsDir); err != nil {
		log.LogError(videoID, "failed to upload", err)
		return err
	}

	// the raw blob is no longer needed once the HLS tree is fully uploaded
	if err := t.ObjectStore.Delete(ctx, msg.VideoPath); err != nil {
		log.LogError(videoID, "failed to delete source", err)
		return err
	}

	confirm, err := json.Marshal(events.ConfirmVideoHLSConverted{UUID: msg.UUID})
	if err != nil {
		return fmt.Errorf("marshalling confirmation: %w", err)
	}
	if err := t.Publisher.Publish(ctx, events.QueueConfirmVideoHLSConverted, confirm); err != nil {
		log.LogError(videoID, "failed to publish confirmation", err)
		return err
	}

	metrics.Metrics.TranscodedVideos.Inc()
	metrics.Metrics.TranscodeDurationSec.Observe(time.Since(start).Seconds())
	log.Log(videoID, "conversion complete", "renditions", len(ladder))
	return nil
}

// uploadTree pushes every file in hlsDir to video_files/<uuid>/<name>.
// Uploads overwrite, so a redelivered job simply reuploads the same tree.
func (t *Transcoder) uploadTree(ctx context.Context, videoID, hlsDir string) error {
	entries, err := os.ReadDir(hlsDir)
	if err != nil {
		return fmt.Errorf("listing output dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		key := fmt.Sprintf("%s/%s/%s", clients.VideoFilesPrefix, videoID, name)
		err := t.ObjectStore.Upload(ctx, filepath.Join(hlsDir, name), key, clients.ContentTypeFor(name))
		if err != nil {
			return fmt.Errorf("uploading %s: %w", name, err)
		}
	}
	return nil
}

func (t *Transcoder) workRoot() string {
	if t.WorkDir != "" {
		return t.WorkDir
	}
	return filepath.Join(os.TempDir(), "videonest")
}
