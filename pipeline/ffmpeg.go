package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/videonest/videonest/subprocess"
	"github.com/videonest/videonest/video"
)

// Renderer produces one HLS rendition of a local source file. The playlist
// and its segments are written into outDir.
type Renderer interface {
	Render(ctx context.Context, sourcePath, outDir string, rendition video.Rendition, playlistName string) error
}

// FFmpegRenderer shells out to ffmpeg. The binary must be on PATH.
type FFmpegRenderer struct{}

// Render scales the source to the rendition size and packages it as an HLS
// media playlist with 5 second segments. Baseline profile level 3.0 keeps
// the output playable on old devices.
func (FFmpegRenderer) Render(ctx context.Context, sourcePath, outDir string, rendition video.Rendition, playlistName string) error {
	playlistPath := filepath.Join(outDir, playlistName)
	stream := ffmpeg.Input(sourcePath).
		Output(playlistPath, ffmpeg.KwArgs{
			"vf":            fmt.Sprintf("scale=%d:%d", rendition.Width, rendition.Height),
			"c:v":           "libx264",
			"preset":        "fast",
			"profile:v":     "baseline",
			"level":         "3.0",
			"start_number":  0,
			"hls_time":      5,
			"hls_list_size": 0,
			"f":             "hls",
		}).
		GlobalArgs("-loglevel", "warning").
		OverWriteOutput()

	cmd := commandContext(ctx, stream.Compile())
	if err := subprocess.LogOutputs(cmd, rendition.String()); err != nil {
		return err
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed rendering %s: %w", rendition, err)
	}

	// ffmpeg can exit zero without producing output on some malformed inputs
	if _, err := os.Stat(playlistPath); err != nil {
		return fmt.Errorf("ffmpeg produced no playlist for %s: %w", rendition, err)
	}
	return nil
}

// commandContext rebuilds a compiled invocation so the child is signalled
// when the job's context is cancelled.
func commandContext(ctx context.Context, cmd *exec.Cmd) *exec.Cmd {
	return exec.CommandContext(ctx, cmd.Path, cmd.Args[1:]...)
}
