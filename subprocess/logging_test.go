package subprocess

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamOutputCopiesWholeLines(t *testing.T) {
	var out bytes.Buffer
	streamOutput("720p", strings.NewReader("frame=1\nframe=2\n"), &out)
	require.Equal(t, "frame=1\nframe=2\n", out.String())
}

func TestStreamOutputDropsUnterminatedTail(t *testing.T) {
	var out bytes.Buffer
	streamOutput("720p", strings.NewReader("frame=1\nfra"), &out)
	require.Equal(t, "frame=1\n", out.String(), "a partial line from a dying child must not be forwarded")
}
