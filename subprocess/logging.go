// Package subprocess streams the stdout and stderr of child processes
// (ffmpeg and friends) into the service logs.
package subprocess

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/videonest/videonest/log"
)

// streamOutput copies child output to out line by line, so a child that dies
// mid-line never interleaves partial writes with our own logs. name tags the
// error logs so concurrent renditions stay distinguishable.
func streamOutput(name string, src io.Reader, out io.Writer) {
	s := bufio.NewReader(src)
	for {
		var line []byte
		line, err := s.ReadSlice('\n')
		if err == io.EOF && len(line) == 0 {
			break
		}
		if err == io.EOF {
			log.LogNoVideoID("child output ended without newline", "child", name, "line", string(line))
			return
		}
		if err != nil {
			log.LogNoVideoID("error reading child output", "child", name, "err", err)
			return
		}
		_, err = out.Write(line)
		if err != nil {
			log.LogNoVideoID("error writing child output", "child", name, "err", err)
			return
		}
	}
}

// LogOutputs streams cmd's stdout and stderr to ours. name identifies the
// child in the logs, typically the rendition being rendered.
func LogOutputs(cmd *exec.Cmd, name string) error {
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr pipe: %s", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %s", err)
	}
	go streamOutput(name, stderrPipe, os.Stderr)
	go streamOutput(name, stdoutPipe, os.Stdout)
	return nil
}
