package monitor

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/focuspet/internal/capture"
	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/bryanchriswhite/focuspet/internal/gaze"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource hands out valid frames, or nothing while absent is set
type fakeSource struct {
	openErr error
	absent  atomic.Bool
	seq     atomic.Uint64
	closed  atomic.Bool
}

func (s *fakeSource) Open() error { return s.openErr }

func (s *fakeSource) Acquire() *capture.Frame {
	if s.absent.Load() {
		return nil
	}
	return capture.NewFrame(s.seq.Add(1), image.NewRGBA(image.Rect(0, 0, 4, 4)))
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSource) Name() string { return "fake" }

// script returns the given verdicts in order, then repeats the last one
type script struct {
	mu       sync.Mutex
	verdicts []bool
	calls    int
	err      error
}

func (s *script) Classify(ctx context.Context, f *capture.Frame) (gaze.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return gaze.Result{}, s.err
	}

	i := s.calls
	if i >= len(s.verdicts) {
		i = len(s.verdicts) - 1
	}
	s.calls++

	if s.verdicts[i] {
		return gaze.Result{GazeLeft: true}, nil
	}
	eye := &gaze.Position{X: 1, Y: 1}
	return gaze.Result{LeftPupil: eye, RightPupil: eye}, nil
}

func (s *script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastConfig() config.MonitorConfig {
	return config.MonitorConfig{
		Interval:   time.Millisecond,
		SubTick:    time.Millisecond,
		RetryDelay: time.Millisecond,
	}
}

// drain collects changes until the channel closes
func drain(t *testing.T, m *Monitor) []bool {
	t.Helper()

	var got []bool
	timeout := time.After(5 * time.Second)
	for {
		select {
		case v, ok := <-m.Changes():
			if !ok {
				return got
			}
			got = append(got, v)
		case <-timeout:
			t.Fatal("changes channel never closed")
			return got
		}
	}
}

func TestEmitsOnlyTransitions(t *testing.T) {
	classifier := &script{verdicts: []bool{true, true, true, false}}
	m := New(&fakeSource{}, classifier, fastConfig())
	require.NoError(t, m.Start())

	require.Eventually(t, func() bool { return classifier.Calls() >= 6 }, 5*time.Second, time.Millisecond)
	m.Stop()

	assert.Equal(t, []bool{true, false}, drain(t, m))
	assert.Equal(t, uint64(2), m.Stats().Notifications)
	assert.NoError(t, m.Err())
}

func TestFirstClassificationAlwaysEmits(t *testing.T) {
	classifier := &script{verdicts: []bool{false}}
	m := New(&fakeSource{}, classifier, fastConfig())
	require.NoError(t, m.Start())

	select {
	case v := <-m.Changes():
		assert.False(t, v)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification for the first classification")
	}

	m.Stop()
	assert.Empty(t, drain(t, m))
}

func TestFocusFlipSequence(t *testing.T) {
	classifier := &script{verdicts: []bool{false, false, true, true, false}}
	m := New(&fakeSource{}, classifier, fastConfig())
	require.NoError(t, m.Start())

	require.Eventually(t, func() bool { return classifier.Calls() >= 8 }, 5*time.Second, time.Millisecond)
	m.Stop()

	assert.Equal(t, []bool{false, true, false}, drain(t, m))
}

func TestAbsentFramesAreNotClassified(t *testing.T) {
	source := &fakeSource{}
	source.absent.Store(true)
	classifier := &script{verdicts: []bool{true}}

	m := New(source, classifier, fastConfig())
	require.NoError(t, m.Start())

	require.Eventually(t, func() bool { return m.Stats().FramesAbsent >= 10 }, 5*time.Second, time.Millisecond)
	assert.Zero(t, classifier.Calls())
	assert.Zero(t, m.Stats().FramesAcquired)

	source.absent.Store(false)
	select {
	case v := <-m.Changes():
		assert.True(t, v)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification once frames arrived")
	}

	m.Stop()
	drain(t, m)
}

func TestStopDuringIntervalSleep(t *testing.T) {
	cfg := config.MonitorConfig{
		Interval:   time.Hour,
		SubTick:    10 * time.Millisecond,
		RetryDelay: time.Millisecond,
	}
	source := &fakeSource{}
	m := New(source, &script{verdicts: []bool{true}}, cfg)
	require.NoError(t, m.Start())

	select {
	case <-m.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no first notification")
	}

	start := time.Now()
	m.Stop()
	require.True(t, m.Wait(time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, source.closed.Load())
}

func TestStopIsIdempotent(t *testing.T) {
	m := New(&fakeSource{}, &script{verdicts: []bool{true}}, fastConfig())
	require.NoError(t, m.Start())

	m.Stop()
	m.Stop()
	assert.True(t, m.Wait(time.Second))
	m.Stop()
}

func TestStopBeforeStart(t *testing.T) {
	classifier := &script{verdicts: []bool{true}}
	m := New(&fakeSource{}, classifier, fastConfig())

	m.Stop()
	require.NoError(t, m.Start())
	require.True(t, m.Wait(time.Second))
	assert.Zero(t, classifier.Calls())
	assert.Empty(t, drain(t, m))
}

func TestStartTwice(t *testing.T) {
	m := New(&fakeSource{}, &script{verdicts: []bool{true}}, fastConfig())
	require.NoError(t, m.Start())
	defer m.Stop()

	assert.ErrorIs(t, m.Start(), ErrAlreadyStarted)
}

func TestClassifierErrorEndsLoop(t *testing.T) {
	boom := errors.New("model crashed")
	source := &fakeSource{}
	m := New(source, &script{err: boom}, fastConfig())
	require.NoError(t, m.Start())

	require.True(t, m.Wait(5*time.Second))
	assert.ErrorIs(t, m.Err(), boom)
	assert.Empty(t, drain(t, m))
	assert.True(t, source.closed.Load())
}

func TestOpenErrorEndsLoop(t *testing.T) {
	noCamera := errors.New("no such device")
	m := New(&fakeSource{openErr: noCamera}, &script{verdicts: []bool{true}}, fastConfig())
	require.NoError(t, m.Start())

	require.True(t, m.Wait(5*time.Second))
	assert.ErrorIs(t, m.Err(), noCamera)
}

func TestWaitTimesOut(t *testing.T) {
	m := New(&fakeSource{}, &script{verdicts: []bool{true}}, fastConfig())
	assert.False(t, m.Wait(10*time.Millisecond))
}
