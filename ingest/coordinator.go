// Package ingest is the ingestion side of the pipeline: it assigns uuids to
// freshly uploaded videos, records them as pending and hands them to the
// transcoder over the conversion queue.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/videonest/videonest/clients"
	"github.com/videonest/videonest/events"
	"github.com/videonest/videonest/log"
	"github.com/videonest/videonest/metrics"
)

// VideoRegistry is the slice of the metadata store the coordinator needs.
type VideoRegistry interface {
	InsertPending(ctx context.Context, id uuid.UUID, authorID int64) error
	MarkComplete(ctx context.Context, id uuid.UUID) (bool, error)
}

// Coordinator consumes upload notifications and conversion confirmations.
type Coordinator struct {
	Registry  VideoRegistry
	Publisher clients.QueuePublisher
}

// HandleUpload processes one unprocessed_video_uploaded delivery: assign a
// fresh uuid, insert the pending row, then publish the conversion command.
// The row must be committed before the command goes out so the confirmation
// can never race an absent record.
//
// Malformed payloads are logged and dropped; redelivering them can only
// produce the same garbage. Database and broker failures requeue.
func (c *Coordinator) HandleUpload(ctx context.Context, body []byte) error {
	msg, err := events.ParseUnprocessedVideoUploaded(body)
	if err != nil {
		log.LogNoVideoID("dropping malformed upload notification", "err", err.Error())
		metrics.Metrics.UploadsDropped.Inc()
		return nil
	}

	id := uuid.New()
	log.AddContext(id.String(), "author_id", msg.UserID, "video_path", msg.VideoPath)
	if err := c.Registry.InsertPending(ctx, id, msg.UserID); err != nil {
		log.LogError(id.String(), "failed to insert pending video", err)
		return err
	}

	command, err := json.Marshal(events.ConvertVideoToHLS{UUID: id, VideoPath: msg.VideoPath})
	if err != nil {
		return fmt.Errorf("marshalling conversion command: %w", err)
	}
	if err := c.Publisher.Publish(ctx, events.QueueConvertVideoToHLS, command); err != nil {
		log.LogError(id.String(), "failed to publish conversion command", err)
		return err
	}

	metrics.Metrics.UploadsIngested.Inc()
	log.Log(id.String(), "video registered for conversion")
	return nil
}

// HandleConfirm processes one confirm_video_hls_converting delivery by
// marking the video complete. A confirmation for an unknown uuid is logged
// and acked; the worker may redeliver confirmations and rows can be gone.
func (c *Coordinator) HandleConfirm(ctx context.Context, body []byte) error {
	msg, err := events.ParseConfirmVideoHLSConverted(body)
	if err != nil {
		log.LogNoVideoID("dropping malformed confirmation", "err", err.Error())
		return nil
	}

	updated, err := c.Registry.MarkComplete(ctx, msg.UUID)
	if err != nil {
		log.LogError(msg.UUID.String(), "failed to mark video complete", err)
		return err
	}
	if !updated {
		log.Log(msg.UUID.String(), "confirmation for unknown video, ignoring")
		metrics.Metrics.ConfirmationsOrphaned.Inc()
		return nil
	}

	metrics.Metrics.ConversionsConfirmed.Inc()
	log.Log(msg.UUID.String(), "video marked complete")
	return nil
}
