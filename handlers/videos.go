package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/videonest/videonest/errors"
	"github.com/videonest/videonest/log"
	"github.com/videonest/videonest/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 20
)

// VideoCatalog is the slice of the metadata store the read API needs.
type VideoCatalog interface {
	GetByUUID(ctx context.Context, id uuid.UUID) (store.Video, error)
	ListByAuthor(ctx context.Context, authorID int64, offset, limit int) ([]store.Video, error)
	ListComplete(ctx context.Context, offset, limit int) ([]store.Video, error)
}

// VideoHandlersCollection serves the public read API.
type VideoHandlersCollection struct {
	Videos VideoCatalog
}

// AuthorVideos lists an author's completed videos.
// GET /channel_actions/videos/author/:author_id?offset=&count=
func (c *VideoHandlersCollection) AuthorVideos() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
		authorID, err := strconv.ParseInt(params.ByName("author_id"), 10, 64)
		if err != nil {
			errors.WriteHTTPBadRequest(w, "invalid author_id", err)
			return
		}
		offset, count, err := parsePage(req)
		if err != nil {
			errors.WriteHTTPBadRequest(w, err.Error(), nil)
			return
		}

		videos, err := c.Videos.ListByAuthor(req.Context(), authorID, offset, count)
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "failed to list videos", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"msg": "videos selected", "videos": videos})
	}
}

// BatchVideos lists completed videos across all authors.
// GET /channel_actions/videos/batch?offset=&count=
func (c *VideoHandlersCollection) BatchVideos() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		offset, count, err := parsePage(req)
		if err != nil {
			errors.WriteHTTPBadRequest(w, err.Error(), nil)
			return
		}

		videos, err := c.Videos.ListComplete(req.Context(), offset, count)
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "failed to list videos", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"msg": "videos selected", "videos": videos})
	}
}

// VideoInfo returns a single video record. A record that exists but has not
// finished converting yet answers 503 so clients can retry.
// GET /channel_actions/video/?uuid=
func (c *VideoHandlersCollection) VideoInfo() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		id, err := uuid.Parse(req.URL.Query().Get("uuid"))
		if err != nil {
			errors.WriteHTTPBadRequest(w, "invalid uuid", err)
			return
		}

		video, err := c.Videos.GetByUUID(req.Context(), id)
		if err == store.ErrNotFound {
			errors.WriteHTTPNotFound(w, "video not found", nil)
			return
		}
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "failed to get video", err)
			return
		}
		if !video.IsComplete {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"msg": "video is not processed yet"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"msg": "video selected", "video_info": video})
	}
}

// parsePage reads offset and count query parameters with their defaults.
// count is capped so one request can never page through the whole table.
func parsePage(req *http.Request) (offset, count int, err error) {
	offset, err = queryInt(req, "offset", 0)
	if err != nil || offset < 0 {
		return 0, 0, errInvalidParam("offset")
	}
	count, err = queryInt(req, "count", defaultPageSize)
	if err != nil || count < 1 || count > maxPageSize {
		return 0, 0, errInvalidParam("count")
	}
	return offset, count, nil
}

func queryInt(req *http.Request, name string, fallback int) (int, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

type paramError string

func (e paramError) Error() string { return "invalid " + string(e) + " parameter" }

func errInvalidParam(name string) error { return paramError(name) }

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.LogNoVideoID("Failed to write HTTP response", "err", err.Error())
	}
}
