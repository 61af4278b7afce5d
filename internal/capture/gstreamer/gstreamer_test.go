package gstreamer

import (
	"testing"
	"time"

	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestPipelineString(t *testing.T) {
	src := New(config.CameraConfig{Device: "/dev/video3", Width: 320, Height: 240})

	line := src.PipelineString()
	assert.Contains(t, line, "v4l2src device=/dev/video3")
	assert.Contains(t, line, "format=RGBA,width=320,height=240")
	assert.Contains(t, line, "appsink name=sink")
	assert.Equal(t, 100*time.Millisecond, src.pullTimeout)
}

func TestAcquireWithoutOpenIsAbsent(t *testing.T) {
	src := New(config.CameraConfig{Device: "/dev/video0", Width: 4, Height: 4, ReadTimeout: time.Millisecond})

	assert.Nil(t, src.Acquire())
	assert.NoError(t, src.Close())
}
