package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/videonest/videonest/errors"
	"github.com/videonest/videonest/events"
	"github.com/videonest/videonest/video"
)

type fakeObjectStore struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	downloadErr  error
	uploadErrFor string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects:      map[string][]byte{},
		contentTypes: map[string]string{},
	}
}

func (f *fakeObjectStore) Download(_ context.Context, key, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return f.downloadErr
	}
	data, ok := f.objects[key]
	if !ok {
		return errors.NewObjectNotFoundError("object "+key+" not found", nil)
	}
	return os.WriteFile(localPath, data, 0644)
}

func (f *fakeObjectStore) Upload(_ context.Context, localPath, key, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErrFor != "" && strings.Contains(key, f.uploadErrFor) {
		return fmt.Errorf("upload of %s failed", key)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.objects[key] = data
	f.contentTypes[key] = contentType
	return nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeObjectStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	return keys
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

type publishedMessage struct {
	queue string
	body  []byte
}

func (f *fakePublisher) Publish(_ context.Context, queue string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMessage{queue: queue, body: body})
	return nil
}

type fakeProber struct {
	dims video.Rendition
	err  error
}

func (f fakeProber) Probe(context.Context, string) (video.Rendition, error) {
	return f.dims, f.err
}

type fakeRenderer struct {
	err error
}

func (f fakeRenderer) Render(_ context.Context, _, outDir string, _ video.Rendition, playlistName string) error {
	if f.err != nil {
		return f.err
	}
	if err := os.WriteFile(filepath.Join(outDir, playlistName), []byte("#EXTM3U\n"), 0644); err != nil {
		return err
	}
	segment := strings.TrimSuffix(playlistName, ".m3u8") + "0.ts"
	return os.WriteFile(filepath.Join(outDir, segment), []byte("segment"), 0644)
}

func newTestTranscoder(t *testing.T, objects *fakeObjectStore, pub *fakePublisher, prober video.Prober, renderer Renderer) *Transcoder {
	t.Helper()
	return &Transcoder{
		ObjectStore: objects,
		Publisher:   pub,
		Prober:      prober,
		Renderer:    renderer,
		WorkDir:     t.TempDir(),
	}
}

var testVideoID = uuid.MustParse("aaaaaaaa-1111-4111-8111-aaaaaaaaaaaa")

func convertBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(events.ConvertVideoToHLS{UUID: testVideoID, VideoPath: "raw/clip.mp4"})
	require.NoError(t, err)
	return body
}

func TestHandleConvertHappyPath(t *testing.T) {
	objects := newFakeObjectStore()
	objects.objects["raw/clip.mp4"] = []byte("mp4bytes")
	pub := &fakePublisher{}
	tr := newTestTranscoder(t, objects, pub, fakeProber{dims: video.Rendition{Width: 1280, Height: 720}}, fakeRenderer{})

	require.NoError(t, tr.HandleConvert(context.Background(), convertBody(t)))

	prefix := "video_files/" + testVideoID.String() + "/"
	keys := objects.keys()
	require.Contains(t, keys, prefix+"master.m3u8")
	// 720p ladder is 5 renditions, each a playlist plus one segment
	require.Len(t, keys, 1+5*2)
	for _, key := range keys {
		require.True(t, strings.HasPrefix(key, prefix), "unexpected key %s", key)
	}
	require.Equal(t, "application/vnd.apple.mpegurl", objects.contentTypes[prefix+"master.m3u8"])
	require.Equal(t, "video/MP2T", objects.contentTypes[prefix+"720p-"+testVideoID.String()+"0.ts"])

	// source blob is gone
	require.NotContains(t, keys, "raw/clip.mp4")

	require.Len(t, pub.published, 1)
	require.Equal(t, events.QueueConfirmVideoHLSConverted, pub.published[0].queue)
	confirm, err := events.ParseConfirmVideoHLSConverted(pub.published[0].body)
	require.NoError(t, err)
	require.Equal(t, testVideoID, confirm.UUID)
}

func TestHandleConvertMissingSourceIsRedelivered(t *testing.T) {
	objects := newFakeObjectStore()
	pub := &fakePublisher{}
	tr := newTestTranscoder(t, objects, pub, fakeProber{dims: video.Rendition{Width: 1280, Height: 720}}, fakeRenderer{})

	err := tr.HandleConvert(context.Background(), convertBody(t))
	require.Error(t, err)
	require.False(t, errors.IsUnretriable(err), "missing source must requeue, the blob may land after the notification")
	require.Empty(t, pub.published)

	// once the blob shows up, the redelivered command succeeds
	objects.objects["raw/clip.mp4"] = []byte("mp4bytes")
	require.NoError(t, tr.HandleConvert(context.Background(), convertBody(t)))
	require.Len(t, pub.published, 1)
}

func TestHandleConvertTransientDownloadErrorIsRetriable(t *testing.T) {
	objects := newFakeObjectStore()
	objects.downloadErr = fmt.Errorf("connection refused")
	pub := &fakePublisher{}
	tr := newTestTranscoder(t, objects, pub, fakeProber{dims: video.Rendition{Width: 1280, Height: 720}}, fakeRenderer{})

	err := tr.HandleConvert(context.Background(), convertBody(t))
	require.Error(t, err)
	require.False(t, errors.IsUnretriable(err))
}

func TestHandleConvertProbeFailureIsUnretriable(t *testing.T) {
	objects := newFakeObjectStore()
	objects.objects["raw/clip.mp4"] = []byte("not a video")
	pub := &fakePublisher{}
	tr := newTestTranscoder(t, objects, pub, fakeProber{err: fmt.Errorf("no video stream found")}, fakeRenderer{})

	err := tr.HandleConvert(context.Background(), convertBody(t))
	require.Error(t, err)
	require.True(t, errors.IsUnretriable(err))
	require.Contains(t, objects.keys(), "raw/clip.mp4", "source must survive a failed job")
	require.Empty(t, pub.published)
}

func TestHandleConvertRenderFailureIsUnretriable(t *testing.T) {
	objects := newFakeObjectStore()
	objects.objects["raw/clip.mp4"] = []byte("mp4bytes")
	pub := &fakePublisher{}
	tr := newTestTranscoder(t, objects, pub,
		fakeProber{dims: video.Rendition{Width: 1280, Height: 720}},
		fakeRenderer{err: fmt.Errorf("ffmpeg exit status 1")})

	err := tr.HandleConvert(context.Background(), convertBody(t))
	require.Error(t, err)
	require.True(t, errors.IsUnretriable(err))
	require.Equal(t, []string{"raw/clip.mp4"}, objects.keys(), "nothing may be uploaded on failure")
	require.Empty(t, pub.published)
}

func TestHandleConvertUploadFailureKeepsSourceAndConfirmsNothing(t *testing.T) {
	objects := newFakeObjectStore()
	objects.objects["raw/clip.mp4"] = []byte("mp4bytes")
	objects.uploadErrFor = "480p"
	pub := &fakePublisher{}
	tr := newTestTranscoder(t, objects, pub, fakeProber{dims: video.Rendition{Width: 1280, Height: 720}}, fakeRenderer{})

	err := tr.HandleConvert(context.Background(), convertBody(t))
	require.Error(t, err)
	require.False(t, errors.IsUnretriable(err), "infra failures requeue")
	require.Contains(t, objects.keys(), "raw/clip.mp4")
	require.Empty(t, pub.published)
}

func TestHandleConvertRedeliveryIsIdempotent(t *testing.T) {
	objects := newFakeObjectStore()
	objects.objects["raw/clip.mp4"] = []byte("mp4bytes")
	pub := &fakePublisher{}
	tr := newTestTranscoder(t, objects, pub, fakeProber{dims: video.Rendition{Width: 640, Height: 360}}, fakeRenderer{})

	require.NoError(t, tr.HandleConvert(context.Background(), convertBody(t)))
	firstKeys := objects.keys()

	// simulate a redelivery after a lost ack: the source is already deleted
	objects.objects["raw/clip.mp4"] = []byte("mp4bytes")
	require.NoError(t, tr.HandleConvert(context.Background(), convertBody(t)))

	require.ElementsMatch(t, firstKeys, objects.keys())
	require.Len(t, pub.published, 2, "a second confirmation is harmless")
}

func TestHandleConvertPoisonPayloadIsUnretriable(t *testing.T) {
	tr := newTestTranscoder(t, newFakeObjectStore(), &fakePublisher{},
		fakeProber{dims: video.Rendition{Width: 1280, Height: 720}}, fakeRenderer{})

	err := tr.HandleConvert(context.Background(), []byte(`{"video_path": "raw/clip.mp4"}`))
	require.Error(t, err)
	require.True(t, errors.IsUnretriable(err))
}

func TestHandleConvertScratchDirIsRemoved(t *testing.T) {
	objects := newFakeObjectStore()
	objects.objects["raw/clip.mp4"] = []byte("mp4bytes")
	pub := &fakePublisher{}
	tr := newTestTranscoder(t, objects, pub, fakeProber{dims: video.Rendition{Width: 640, Height: 360}}, fakeRenderer{})

	require.NoError(t, tr.HandleConvert(context.Background(), convertBody(t)))

	_, err := os.Stat(filepath.Join(tr.WorkDir, testVideoID.String()))
	require.True(t, os.IsNotExist(err))
}
