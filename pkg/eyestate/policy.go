package eyestate

import (
	"errors"
	"fmt"
)

// Thresholds bound each classical feature between a "clearly closed" and a
// "clearly open" value. Features are scaled linearly between the two.
type Thresholds struct {
	VarianceClosed  float64 `yaml:"variance_closed" json:"variance_closed"`
	VarianceOpen    float64 `yaml:"variance_open" json:"variance_open"`
	EdgeClosed      float64 `yaml:"edge_closed" json:"edge_closed"`
	EdgeOpen        float64 `yaml:"edge_open" json:"edge_open"`
	LaplacianClosed float64 `yaml:"laplacian_closed" json:"laplacian_closed"`
	LaplacianOpen   float64 `yaml:"laplacian_open" json:"laplacian_open"`
	LinePeakOpen    float64 `yaml:"line_peak_open" json:"line_peak_open"`

	// EAR outside [EARMin, EARMax] is treated as a bad contour fit.
	EARMin  float64 `yaml:"ear_min" json:"ear_min"`
	EARMax  float64 `yaml:"ear_max" json:"ear_max"`
	EAROpen float64 `yaml:"ear_open" json:"ear_open"`

	// Decision is the classical score at or above which an eye is open.
	Decision float64 `yaml:"decision" json:"decision"`
}

// FeatureWeights are the classical score weights. They are renormalized
// when EAR is missing, so they need not sum to exactly 1.
type FeatureWeights struct {
	Variance  float64 `yaml:"variance" json:"variance"`
	Edge      float64 `yaml:"edge" json:"edge"`
	Laplacian float64 `yaml:"laplacian" json:"laplacian"`
	Lines     float64 `yaml:"lines" json:"lines"`
	EAR       float64 `yaml:"ear" json:"ear"`
}

// ModelTrust controls how a model probability is blended with the
// classical score.
type ModelTrust struct {
	OpenConfidence   float64 `yaml:"open_confidence" json:"open_confidence"`       // Trust "open" above this P(open)
	OpenMinVariance  float64 `yaml:"open_min_variance" json:"open_min_variance"`   // ...but only with this much texture
	ClosedConfidence float64 `yaml:"closed_confidence" json:"closed_confidence"`   // Trust "closed" above this P(closed)
	WeakVariance     float64 `yaml:"weak_variance" json:"weak_variance"`           // Below this the classical signal wins disagreements
	WeakEdge         float64 `yaml:"weak_edge" json:"weak_edge"`                   // Same, for edge density
	ModelBlend       float64 `yaml:"model_blend" json:"model_blend"`               // Model share of the blended probability
	OpenMargin       float64 `yaml:"open_margin" json:"open_margin"`               // Extra margin above 0.5 needed to call open
}

// Policy holds every tunable of the eye-state classifier.
type Policy struct {
	BlinkThreshold int `yaml:"blink_threshold" json:"blink_threshold"` // Max closed frames that still count as a blink
	DrowsyFrames   int `yaml:"drowsy_frames" json:"drowsy_frames"`     // Both eyes closed longer than this is drowsiness

	Thresholds Thresholds     `yaml:"thresholds" json:"thresholds"`
	Weights    FeatureWeights `yaml:"weights" json:"weights"`
	Model      ModelTrust     `yaml:"model" json:"model"`
}

// DefaultPolicy returns the production classifier policy.
func DefaultPolicy() Policy {
	return Policy{
		BlinkThreshold: 2,
		DrowsyFrames:   20,
		Thresholds: Thresholds{
			VarianceClosed:  150,
			VarianceOpen:    600,
			EdgeClosed:      0.05,
			EdgeOpen:        0.15,
			LaplacianClosed: 50,
			LaplacianOpen:   200,
			LinePeakOpen:    0.3,
			EARMin:          0.15,
			EARMax:          0.5,
			EAROpen:         0.3,
			Decision:        0.4,
		},
		Weights: FeatureWeights{
			Variance:  0.35,
			Edge:      0.30,
			Laplacian: 0.15,
			Lines:     0.10,
			EAR:       0.10,
		},
		Model: ModelTrust{
			OpenConfidence:   0.85,
			OpenMinVariance:  300,
			ClosedConfidence: 0.7,
			WeakVariance:     250,
			WeakEdge:         0.08,
			ModelBlend:       0.6,
			OpenMargin:       0.10,
		},
	}
}

// SensitivePolicy flags drowsiness sooner and counts only short closures as blinks.
func SensitivePolicy() Policy {
	p := DefaultPolicy()
	p.BlinkThreshold = 1
	p.DrowsyFrames = 10
	p.Thresholds.Decision = 0.45
	p.Model.OpenMargin = 0.15
	return p
}

// Validate checks the policy for values the classifier cannot work with.
func (p Policy) Validate() error {
	var errs []error
	if p.BlinkThreshold < 1 {
		errs = append(errs, fmt.Errorf("blink_threshold must be >= 1, got %d", p.BlinkThreshold))
	}
	if p.DrowsyFrames < 1 {
		errs = append(errs, fmt.Errorf("drowsy_frames must be >= 1, got %d", p.DrowsyFrames))
	}
	t := p.Thresholds
	if t.VarianceOpen <= t.VarianceClosed {
		errs = append(errs, errors.New("variance_open must exceed variance_closed"))
	}
	if t.EdgeOpen <= t.EdgeClosed {
		errs = append(errs, errors.New("edge_open must exceed edge_closed"))
	}
	if t.LaplacianOpen <= t.LaplacianClosed {
		errs = append(errs, errors.New("laplacian_open must exceed laplacian_closed"))
	}
	if t.LinePeakOpen <= 0 {
		errs = append(errs, errors.New("line_peak_open must be positive"))
	}
	if t.EARMin >= t.EARMax || t.EAROpen <= t.EARMin {
		errs = append(errs, errors.New("ear range must satisfy ear_min < ear_open and ear_min < ear_max"))
	}
	if t.Decision <= 0 || t.Decision >= 1 {
		errs = append(errs, fmt.Errorf("decision must be within (0,1), got %.2f", t.Decision))
	}
	w := p.Weights
	if w.Variance < 0 || w.Edge < 0 || w.Laplacian < 0 || w.Lines < 0 || w.EAR < 0 {
		errs = append(errs, errors.New("feature weights must not be negative"))
	}
	if w.Variance+w.Edge+w.Laplacian+w.Lines <= 0 {
		errs = append(errs, errors.New("at least one image feature weight must be positive"))
	}
	if p.Model.ModelBlend < 0 || p.Model.ModelBlend > 1 {
		errs = append(errs, fmt.Errorf("model_blend must be within [0,1], got %.2f", p.Model.ModelBlend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, errors.Join(errs...))
	}
	return nil
}
