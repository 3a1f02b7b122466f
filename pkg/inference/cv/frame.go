// Package cv provides OpenCV-backed inference adapters and frames.
package cv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-engage/pkg/inference"
)

// Frame is a BGR image held in an OpenCV Mat.
type Frame struct {
	mat gocv.Mat
}

// Decode decodes JPEG or PNG bytes into a Frame. The caller must Close it.
func Decode(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode image: %w", inference.ErrUnsupportedFrame)
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("decode image: %w", inference.ErrUnsupportedFrame)
	}
	return &Frame{mat: img}, nil
}

// FromImage converts img into a Frame.
func FromImage(img image.Image) (*Frame, error) {
	rgb, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer rgb.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR)
	return &Frame{mat: bgr}, nil
}

// FromMat wraps m. The Frame takes ownership.
func FromMat(m gocv.Mat) *Frame {
	return &Frame{mat: m}
}

// Bounds returns the image rectangle.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.mat.Cols(), f.mat.Rows())
}

// Mat returns the underlying Mat. It is owned by the Frame.
func (f *Frame) Mat() gocv.Mat {
	return f.mat
}

// Close releases the Mat.
func (f *Frame) Close() error {
	return f.mat.Close()
}

// MatOf returns the Mat behind an inference.Frame.
func MatOf(frame inference.Frame) (gocv.Mat, error) {
	f, ok := frame.(*Frame)
	if !ok || f == nil || f.mat.Empty() {
		return gocv.Mat{}, inference.ErrUnsupportedFrame
	}
	return f.mat, nil
}

// Crop returns a view of frame clipped to r. The caller must Close it.
func Crop(frame inference.Frame, r image.Rectangle) (gocv.Mat, error) {
	m, err := MatOf(frame)
	if err != nil {
		return gocv.Mat{}, err
	}
	r = r.Intersect(frame.Bounds())
	if r.Empty() {
		return gocv.Mat{}, inference.ErrEmptyCrop
	}
	return m.Region(r), nil
}
