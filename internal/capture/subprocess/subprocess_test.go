package subprocess

import (
	"testing"
	"time"

	"github.com/bryanchriswhite/focuspet/internal/capture"
	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistered(t *testing.T) {
	src, err := capture.New(config.CameraConfig{
		Backend: config.BackendSubprocess,
		Device:  "/dev/video0",
		Width:   4,
		Height:  4,
	})
	require.NoError(t, err)
	assert.Equal(t, "gst-launch subprocess", src.Name())
}

func TestAcquireBeforeOpen(t *testing.T) {
	src := NewWithCommand(2, 2, "sh", "-c", "true")
	assert.Nil(t, src.Acquire())
}

func TestAcquireReadsPackedFrames(t *testing.T) {
	// four 2x2 RGBA frames, then idle
	src := NewWithCommand(2, 2, "sh", "-c", "head -c 64 /dev/zero; sleep 5")
	require.NoError(t, src.Open())
	t.Cleanup(func() { src.Close() })

	var frame *capture.Frame
	require.Eventually(t, func() bool {
		frame = src.Acquire()
		return frame != nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, frame.Valid())
	assert.Equal(t, 2, frame.Image.Bounds().Dx())
	assert.NotEmpty(t, frame.TraceID)

	// the same frame is never handed out twice
	time.Sleep(50 * time.Millisecond)
	if next := src.Acquire(); next != nil {
		assert.Greater(t, next.Seq, frame.Seq)
	}
}

func TestOpenTwiceFails(t *testing.T) {
	src := NewWithCommand(2, 2, "sh", "-c", "sleep 5")
	require.NoError(t, src.Open())
	t.Cleanup(func() { src.Close() })

	assert.Error(t, src.Open())
}

func TestCloseIsIdempotent(t *testing.T) {
	src := NewWithCommand(2, 2, "sh", "-c", "sleep 5")
	require.NoError(t, src.Open())

	assert.NoError(t, src.Close())
	assert.NoError(t, src.Close())
	assert.Nil(t, src.Acquire(), "closed source does not respawn")
}

func TestExitedPipelineIsAbsentNotFatal(t *testing.T) {
	src := NewWithCommand(2, 2, "sh", "-c", "exit 1")
	require.NoError(t, src.Open())
	t.Cleanup(func() { src.Close() })

	for i := 0; i < 10; i++ {
		assert.Nil(t, src.Acquire())
		time.Sleep(5 * time.Millisecond)
	}
}
