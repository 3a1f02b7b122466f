package vision

import (
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-engage/pkg/inference"
	"github.com/teslashibe/go-engage/pkg/inference/cv"
	"github.com/teslashibe/go-engage/pkg/lighting"
)

// exposedAbove is the L* level counted as blown out.
const exposedAbove = 239

// MeasureLighting summarises the frame's L* channel.
func (e *Extractor) MeasureLighting(frame inference.Frame) (lighting.Measurement, error) {
	img, err := cv.MatOf(frame)
	if err != nil {
		return lighting.Measurement{}, err
	}

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(img, &lab, gocv.ColorBGRToLab)

	channels := gocv.Split(lab)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()
	l := channels[0]

	mean, std := meanStd(l)

	bright := gocv.NewMat()
	defer bright.Close()
	gocv.Threshold(l, &bright, exposedAbove, 255, gocv.ThresholdBinary)

	return lighting.Measurement{
		Brightness: mean,
		Contrast:   std,
		Exposure:   float64(gocv.CountNonZero(bright)) / float64(l.Total()),
	}, nil
}
