package eyestate

// Features are the classical image measurements of one eye region.
type Features struct {
	Variance        float64 `json:"variance"`          // Grey-level variance
	EdgeDensity     float64 `json:"edge_density"`      // Fraction of Canny edge pixels
	LaplacianVar    float64 `json:"laplacian_var"`     // Variance of the Laplacian (sharpness)
	LinePeakDensity float64 `json:"line_peak_density"` // Fraction of rows with a strong horizontal edge
	EAR             float64 `json:"ear"`               // Minor/major axis ratio of the fitted ellipse
	HasEAR          bool    `json:"has_ear"`
}

// Source records which rule produced a Decision.
type Source string

const (
	SourceClassical Source = "classical" // Image features only
	SourceOverride  Source = "override"  // All texture signals below their closed thresholds
	SourceModel     Source = "model"     // Model confident enough to trust outright
	SourceBlend     Source = "blend"     // Model and classical score combined
	SourceError     Source = "error"     // Extraction failed; pessimistic default
	SourceNone      Source = "none"      // No face; state carried over
)

// Decision is the open/closed verdict for one eye in one frame.
type Decision struct {
	Open       bool    `json:"open"`
	Confidence float64 `json:"confidence"`
	Score      float64 `json:"score"` // Classical openness in [0,1]
	Source     Source  `json:"source"`
}

// ErrorDecision is the verdict used when the eye region could not be measured.
// It reports closed with low confidence so drowsiness is over- rather than
// under-reported.
func ErrorDecision() Decision {
	return Decision{Open: false, Confidence: 0.1, Source: SourceError}
}

// ClassicalScore combines features into an openness score in [0,1].
// EAR contributes only when present and within the valid range.
func ClassicalScore(f Features, p Policy) float64 {
	t := p.Thresholds
	w := p.Weights

	sum := w.Variance*ramp(f.Variance, t.VarianceClosed, t.VarianceOpen) +
		w.Edge*ramp(f.EdgeDensity, t.EdgeClosed, t.EdgeOpen) +
		w.Laplacian*ramp(f.LaplacianVar, t.LaplacianClosed, t.LaplacianOpen) +
		w.Lines*ramp(f.LinePeakDensity, 0, t.LinePeakOpen)
	total := w.Variance + w.Edge + w.Laplacian + w.Lines

	if validEAR(f, t) {
		sum += w.EAR * ramp(f.EAR, t.EARMin, t.EAROpen)
		total += w.EAR
	}

	if total <= 0 {
		return 0
	}
	return clamp01(sum / total)
}

// forcedClosed reports whether every texture signal says closed.
func forcedClosed(f Features, t Thresholds) bool {
	return f.Variance < t.VarianceClosed &&
		f.EdgeDensity < t.EdgeClosed &&
		f.LaplacianVar < t.LaplacianClosed
}

// Decide returns the open/closed verdict for one eye.
// modelOpen is the model's P(open), or nil when no model answered.
func Decide(f Features, modelOpen *float64, p Policy) Decision {
	score := ClassicalScore(f, p)

	classical := Decision{
		Open:       score >= p.Thresholds.Decision,
		Score:      score,
		Source:     SourceClassical,
		Confidence: score,
	}
	if forcedClosed(f, p.Thresholds) {
		classical.Open = false
		classical.Source = SourceOverride
	}
	if !classical.Open {
		classical.Confidence = 1 - score
	}

	if modelOpen == nil {
		return classical
	}

	pOpen := clamp01(*modelOpen)
	pClosed := 1 - pOpen
	m := p.Model

	if pOpen > m.OpenConfidence && f.Variance > m.OpenMinVariance {
		return Decision{Open: true, Confidence: pOpen, Score: score, Source: SourceModel}
	}
	if pClosed > m.ClosedConfidence {
		return Decision{Open: false, Confidence: pClosed, Score: score, Source: SourceModel}
	}

	modelSaysOpen := pOpen > 0.5
	if modelSaysOpen != classical.Open {
		if f.Variance < m.WeakVariance || f.EdgeDensity < m.WeakEdge {
			return classical
		}
	}

	blended := m.ModelBlend*pOpen + (1-m.ModelBlend)*score
	if blended > 0.5+m.OpenMargin {
		return Decision{Open: true, Confidence: blended, Score: score, Source: SourceBlend}
	}
	return Decision{Open: false, Confidence: 1 - blended, Score: score, Source: SourceBlend}
}

// DecideModel returns the verdict when only the model could measure the eye.
func DecideModel(pOpen float64, p Policy) Decision {
	pOpen = clamp01(pOpen)
	if pOpen > 0.5+p.Model.OpenMargin {
		return Decision{Open: true, Confidence: pOpen, Source: SourceModel}
	}
	return Decision{Open: false, Confidence: 1 - pOpen, Source: SourceModel}
}

func validEAR(f Features, t Thresholds) bool {
	return f.HasEAR && f.EAR >= t.EARMin && f.EAR <= t.EARMax
}

// ramp maps v linearly from [lo,hi] onto [0,1].
func ramp(v, lo, hi float64) float64 {
	if hi <= lo {
		if v >= hi {
			return 1
		}
		return 0
	}
	return clamp01((v - lo) / (hi - lo))
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
