package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/videonest/videonest/store"
)

type fakeCatalog struct {
	videos map[uuid.UUID]store.Video
}

func (f *fakeCatalog) GetByUUID(_ context.Context, id uuid.UUID) (store.Video, error) {
	v, ok := f.videos[id]
	if !ok {
		return store.Video{}, store.ErrNotFound
	}
	return v, nil
}

func (f *fakeCatalog) ListByAuthor(_ context.Context, authorID int64, offset, limit int) ([]store.Video, error) {
	videos := []store.Video{}
	for _, v := range f.videos {
		if v.AuthorID == authorID && v.IsComplete {
			videos = append(videos, v)
		}
	}
	return videos, nil
}

func (f *fakeCatalog) ListComplete(_ context.Context, offset, limit int) ([]store.Video, error) {
	videos := []store.Video{}
	for _, v := range f.videos {
		if v.IsComplete {
			videos = append(videos, v)
		}
	}
	return videos, nil
}

func testRouter(catalog *fakeCatalog) *httprouter.Router {
	c := &VideoHandlersCollection{Videos: catalog}
	router := httprouter.New()
	router.GET("/health", Healthcheck())
	router.GET("/channel_actions/videos/author/:author_id", c.AuthorVideos())
	router.GET("/channel_actions/videos/batch", c.BatchVideos())
	router.GET("/channel_actions/video/", c.VideoInfo())
	return router
}

func doGet(t *testing.T, router *httprouter.Router, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestHealthcheck(t *testing.T) {
	rec := doGet(t, testRouter(&fakeCatalog{}), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"msg":"healthy"}`, rec.Body.String())
}

func TestAuthorVideos(t *testing.T) {
	complete := store.Video{UUID: uuid.New(), AuthorID: 9, IsComplete: true}
	router := testRouter(&fakeCatalog{videos: map[uuid.UUID]store.Video{
		complete.UUID: complete,
		uuid.New():    {UUID: uuid.New(), AuthorID: 9, IsComplete: false},
	}})

	rec := doGet(t, router, "/channel_actions/videos/author/9")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Msg    string        `json:"msg"`
		Videos []store.Video `json:"videos"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Videos, 1)
	require.Equal(t, complete.UUID, body.Videos[0].UUID)
}

func TestAuthorVideosInvalidAuthorID(t *testing.T) {
	rec := doGet(t, testRouter(&fakeCatalog{}), "/channel_actions/videos/author/notanumber")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchVideosPaginationValidation(t *testing.T) {
	router := testRouter(&fakeCatalog{})

	for _, url := range []string{
		"/channel_actions/videos/batch?count=0",
		"/channel_actions/videos/batch?count=21",
		"/channel_actions/videos/batch?count=abc",
		"/channel_actions/videos/batch?offset=-1",
	} {
		rec := doGet(t, router, url)
		require.Equal(t, http.StatusBadRequest, rec.Code, url)
	}

	rec := doGet(t, router, "/channel_actions/videos/batch?offset=0&count=20")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestVideoInfo(t *testing.T) {
	complete := store.Video{UUID: uuid.New(), AuthorID: 9, IsComplete: true, ViewsCount: 5}
	pending := store.Video{UUID: uuid.New(), AuthorID: 9, IsComplete: false}
	router := testRouter(&fakeCatalog{videos: map[uuid.UUID]store.Video{
		complete.UUID: complete,
		pending.UUID:  pending,
	}})

	rec := doGet(t, router, "/channel_actions/video/?uuid="+complete.UUID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		VideoInfo store.Video `json:"video_info"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, complete.UUID, body.VideoInfo.UUID)
	require.Equal(t, int64(5), body.VideoInfo.ViewsCount)

	// still converting
	rec = doGet(t, router, "/channel_actions/video/?uuid="+pending.UUID.String())
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// absent
	rec = doGet(t, router, "/channel_actions/video/?uuid="+uuid.NewString())
	require.Equal(t, http.StatusNotFound, rec.Code)

	// malformed
	rec = doGet(t, router, "/channel_actions/video/?uuid=nope")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
