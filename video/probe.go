package video

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/vansante/go-ffprobe.v2"
)

const probeTimeout = 60 * time.Second

// Prober reports the pixel dimensions of a local media file.
type Prober interface {
	Probe(ctx context.Context, path string) (Rendition, error)
}

// FFProbe shells out to ffprobe. The binary must be on PATH.
type FFProbe struct{}

// Probe returns the dimensions of the first video stream. A file with no
// video stream, or with a stream of reported zero size, is a data error.
func (FFProbe) Probe(ctx context.Context, path string) (Rendition, error) {
	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		var err error
		data, err = ffprobe.ProbeURL(probeCtx, path, "-loglevel", "error")
		return err
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 2 * time.Second
	backOff.MaxElapsedTime = 0
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(backOff, 3), ctx)); err != nil {
		return Rendition{}, fmt.Errorf("error probing %s: %w", path, err)
	}

	stream := data.FirstVideoStream()
	if stream == nil {
		return Rendition{}, errors.New("error probing: no video stream found")
	}
	if stream.Width <= 0 || stream.Height <= 0 {
		return Rendition{}, fmt.Errorf("error probing: invalid video dimensions %dx%d", stream.Width, stream.Height)
	}
	return Rendition{Width: stream.Width, Height: stream.Height}, nil
}
