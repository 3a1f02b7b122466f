// Package vision measures classical image features with OpenCV: eye
// openness cues and frame lighting.
package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-engage/pkg/eyestate"
	"github.com/teslashibe/go-engage/pkg/inference"
	"github.com/teslashibe/go-engage/pkg/inference/cv"
)

// EyeConfig holds feature-extraction parameters.
type EyeConfig struct {
	CannyLow       float32 `yaml:"canny_low"`
	CannyHigh      float32 `yaml:"canny_high"`
	LinePeakFactor float64 `yaml:"line_peak_factor"` // Row gradient must exceed this multiple of the mean
	MinContourArea float64 `yaml:"min_contour_area"`
	MinSize        int     `yaml:"min_size"` // Smallest crop side in pixels
}

// DefaultEyeConfig returns production defaults.
func DefaultEyeConfig() EyeConfig {
	return EyeConfig{
		CannyLow:       30,
		CannyHigh:      100,
		LinePeakFactor: 1.5,
		MinContourArea: 10,
		MinSize:        4,
	}
}

// Extractor computes eye features and lighting measurements from cv frames.
type Extractor struct {
	cfg EyeConfig
}

// NewExtractor creates an extractor.
func NewExtractor(cfg EyeConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// EyeFeatures measures the eye region r of frame.
func (e *Extractor) EyeFeatures(frame inference.Frame, r image.Rectangle) (eyestate.Features, error) {
	roi, err := cv.Crop(frame, r)
	if err != nil {
		return eyestate.Features{}, err
	}
	defer roi.Close()

	if roi.Cols() < e.cfg.MinSize || roi.Rows() < e.cfg.MinSize {
		return eyestate.Features{}, fmt.Errorf("eye crop %dx%d: %w", roi.Cols(), roi.Rows(), inference.ErrEmptyCrop)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if roi.Channels() == 1 {
		roi.CopyTo(&gray)
	} else {
		gocv.CvtColor(roi, &gray, gocv.ColorBGRToGray)
	}

	var f eyestate.Features
	_, std := meanStd(gray)
	f.Variance = std * std
	f.EdgeDensity = e.edgeDensity(gray)
	f.LaplacianVar = laplacianVariance(gray)
	f.LinePeakDensity = e.linePeakDensity(gray)
	f.EAR, f.HasEAR = e.aspectRatio(gray)
	return f, nil
}

func (e *Extractor) edgeDensity(gray gocv.Mat) float64 {
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, e.cfg.CannyLow, e.cfg.CannyHigh)
	return float64(gocv.CountNonZero(edges)) / float64(gray.Total())
}

func laplacianVariance(gray gocv.Mat) float64 {
	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)
	_, std := meanStd(lap)
	return std * std
}

// linePeakDensity is the fraction of rows whose mean vertical gradient
// stands out from the crop average. Lids and iris give several.
func (e *Extractor) linePeakDensity(gray gocv.Mat) float64 {
	sobel := gocv.NewMat()
	defer sobel.Close()
	gocv.Sobel(gray, &sobel, gocv.MatTypeCV16S, 0, 1, 3, 1, 0, gocv.BorderDefault)

	abs := gocv.NewMat()
	defer abs.Close()
	gocv.ConvertScaleAbs(sobel, &abs, 1, 0)

	rows, cols := abs.Rows(), abs.Cols()
	means := make([]float64, rows)
	var total float64
	for y := 0; y < rows; y++ {
		var sum float64
		for x := 0; x < cols; x++ {
			sum += float64(abs.GetUCharAt(y, x))
		}
		means[y] = sum / float64(cols)
		total += means[y]
	}
	avg := total / float64(rows)
	if avg == 0 {
		return 0
	}

	peaks := 0
	for _, m := range means {
		if m > avg*e.cfg.LinePeakFactor {
			peaks++
		}
	}
	return float64(peaks) / float64(rows)
}

// aspectRatio fits an ellipse to the largest dark blob and returns its
// minor/major axis ratio.
func (e *Extractor) aspectRatio(gray gocv.Mat) (float64, bool) {
	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(gray, &bin, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)

	contours := gocv.FindContours(bin, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best, bestArea := -1, e.cfg.MinContourArea
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		if c.Size() < 5 {
			continue
		}
		if a := gocv.ContourArea(c); a > bestArea {
			best, bestArea = i, a
		}
	}
	if best < 0 {
		return 0, false
	}

	ellipse := gocv.FitEllipse(contours.At(best))
	major := float64(max(ellipse.Width, ellipse.Height))
	minor := float64(min(ellipse.Width, ellipse.Height))
	if major <= 0 {
		return 0, false
	}
	return minor / major, true
}

func meanStd(m gocv.Mat) (mean, std float64) {
	meanMat := gocv.NewMat()
	defer meanMat.Close()
	stdMat := gocv.NewMat()
	defer stdMat.Close()

	gocv.MeanStdDev(m, &meanMat, &stdMat)
	return meanMat.GetDoubleAt(0, 0), stdMat.GetDoubleAt(0, 0)
}
