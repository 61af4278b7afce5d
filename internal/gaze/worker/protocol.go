package worker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/bryanchriswhite/focuspet/internal/capture"
	"github.com/bryanchriswhite/focuspet/internal/gaze"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/image/draw"
)

// maxMessageSize bounds a single framed message read from the worker
const maxMessageSize = 16 << 20

const jpegQuality = 85

// request is one frame sent to the worker process.
//
// Wire format: 4-byte big-endian length, then a msgpack map.
type request struct {
	Seq       uint64 `msgpack:"seq"`
	TraceID   string `msgpack:"trace_id"`
	Timestamp int64  `msgpack:"timestamp_ns"`
	Width     int    `msgpack:"width"`
	Height    int    `msgpack:"height"`
	JPEG      []byte `msgpack:"jpeg"`
}

// response is the worker's answer for the request with the same Seq
type response struct {
	Seq        uint64         `msgpack:"seq"`
	GazeLeft   bool           `msgpack:"gaze_left"`
	GazeRight  bool           `msgpack:"gaze_right"`
	LeftPupil  *gaze.Position `msgpack:"left_pupil"`
	RightPupil *gaze.Position `msgpack:"right_pupil"`
	Error      string         `msgpack:"error,omitempty"`
}

func (r response) result() gaze.Result {
	return gaze.Result{
		GazeLeft:   r.GazeLeft,
		GazeRight:  r.GazeRight,
		LeftPupil:  r.LeftPupil,
		RightPupil: r.RightPupil,
	}
}

// writeMessage writes v as a length-prefixed msgpack message
func writeMessage(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal msgpack message: %w", err)
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed msgpack message into v
func readMessage(r io.Reader, v any) error {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return fmt.Errorf("failed to read length prefix: %w", err)
	}

	n := binary.BigEndian.Uint32(lengthBuf[:])
	if n > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit of %d", n, maxMessageSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("failed to read message body (%d bytes): %w", n, err)
	}

	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal msgpack message: %w", err)
	}
	return nil
}

// newRequest downscales the frame to at most scaleWidth pixels wide and
// encodes it as JPEG. Pupil positions in the response refer to the scaled
// image.
func newRequest(frame *capture.Frame, scaleWidth int) (request, error) {
	img := scale(frame.Image, scaleWidth)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return request{}, fmt.Errorf("failed to encode frame %d: %w", frame.Seq, err)
	}

	b := img.Bounds()
	return request{
		Seq:       frame.Seq,
		TraceID:   frame.TraceID,
		Timestamp: frame.Timestamp.UnixNano(),
		Width:     b.Dx(),
		Height:    b.Dy(),
		JPEG:      buf.Bytes(),
	}, nil
}

func scale(src *image.RGBA, width int) image.Image {
	b := src.Bounds()
	if width <= 0 || b.Dx() <= width {
		return src
	}

	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
