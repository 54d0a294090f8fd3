package source

import (
	"fmt"
	"os"

	"gocv.io/x/gocv"
)

// VideoSource reads frames from a video file through OpenCV. Frames come
// out in decode order, converted to RGB.
type VideoSource struct {
	capture *gocv.VideoCapture
	rate    float64
	total   int
	index   int
}

// OpenVideo opens path for decoding. Any failure to open is
// ErrUnavailable: the caller gets no partial result from a source that
// never produced a frame.
func OpenVideo(path string) (*VideoSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}

	capture, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open video file %s: %v", ErrUnavailable, path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: could not open video file %s", ErrUnavailable, path)
	}

	rate := capture.Get(gocv.VideoCaptureFPS)
	if rate < 0 {
		rate = 0
	}
	total := int(capture.Get(gocv.VideoCaptureFrameCount))
	if total < 0 {
		total = 0
	}

	return &VideoSource{capture: capture, rate: rate, total: total}, nil
}

// Next implements FrameSource. Decoder output is BGR; frames are converted
// to RGB before handoff so the rest of the pipeline deals with one layout.
func (v *VideoSource) Next() (gocv.Mat, int, bool) {
	frame := gocv.NewMat()
	if !v.capture.Read(&frame) {
		frame.Close()
		return gocv.Mat{}, 0, false
	}

	index := v.index
	v.index++

	if frame.Empty() {
		// Single undecodable frame: hand it through and let the caller
		// skip its contribution.
		return frame, index, true
	}

	rgb := gocv.NewMat()
	gocv.CvtColor(frame, &rgb, gocv.ColorBGRToRGB)
	frame.Close()
	return rgb, index, true
}

// Rate implements FrameSource.
func (v *VideoSource) Rate() float64 { return v.rate }

// TotalFrames implements FrameSource.
func (v *VideoSource) TotalFrames() int { return v.total }

// Close releases the underlying capture.
func (v *VideoSource) Close() error {
	return v.capture.Close()
}
