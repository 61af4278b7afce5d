// Package gaze defines the boundary to the gaze classifier: what it is given,
// what it answers, and how an answer becomes a distracted/focused verdict.
package gaze

import (
	"context"

	"github.com/bryanchriswhite/focuspet/internal/capture"
)

// Position is a pupil location in frame pixel coordinates
type Position struct {
	X int `msgpack:"x" json:"x"`
	Y int `msgpack:"y" json:"y"`
}

// Result is the classifier's answer for one frame. A nil pupil means the
// detector could not locate that eye.
type Result struct {
	GazeLeft   bool      `msgpack:"gaze_left" json:"gaze_left"`
	GazeRight  bool      `msgpack:"gaze_right" json:"gaze_right"`
	LeftPupil  *Position `msgpack:"left_pupil" json:"left_pupil"`
	RightPupil *Position `msgpack:"right_pupil" json:"right_pupil"`
}

// Distracted reports whether the user is looking away. Losing either eye
// counts the same as looking to one side.
func Distracted(r Result) bool {
	return r.GazeLeft || r.GazeRight || r.LeftPupil == nil || r.RightPupil == nil
}

// Classifier analyzes a single frame
type Classifier interface {
	Classify(ctx context.Context, frame *capture.Frame) (Result, error)
}

// ClassifierFunc adapts a function to Classifier
type ClassifierFunc func(ctx context.Context, frame *capture.Frame) (Result, error)

// Classify calls f
func (f ClassifierFunc) Classify(ctx context.Context, frame *capture.Frame) (Result, error) {
	return f(ctx, frame)
}
