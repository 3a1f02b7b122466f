package weights

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// TrainingSample is one operator-labelled observation. Samples are
// append-only and never modified after creation.
type TrainingSample struct {
	ID          string    `json:"id"`
	Scores      Scores    `json:"scores"`
	GroundTruth float64   `json:"ground_truth"`
	CreatedAt   time.Time `json:"created_at"`
}

// Model is a fitted linear map from component scores to engagement.
type Model struct {
	Coefficients map[Component]float64 `json:"coefficients"`
	Intercept    float64               `json:"intercept"`
	RSquared     float64               `json:"r_squared"`
	Samples      int                   `json:"samples"`
	TrainedAt    time.Time             `json:"trained_at"`
}

// Predict returns the modelled engagement for scores, clamped to [0,100].
func (m *Model) Predict(scores Scores) float64 {
	v := m.Intercept
	for _, c := range Components {
		v += m.Coefficients[c] * scores[c]
	}
	return clampScore(v)
}

// Profile converts absolute coefficients into a weight profile within
// [MinWeight, MaxWeight] summing to 100.
func (m *Model) Profile() (Profile, error) {
	raw := make(Profile, len(Components))
	var sum float64
	for _, c := range Components {
		w := math.Abs(m.Coefficients[c])
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: non-finite coefficient for %s", ErrFitFailed, c)
		}
		raw[c] = w
		sum += w
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: all coefficients are zero", ErrFitFailed)
	}
	return Rebalance(raw, MinWeight, MaxWeight), nil
}

// fit runs a ridge-regularised least-squares regression of ground truth on
// the component scores. Components that never vary get a zero coefficient.
func fit(samples []TrainingSample, ridge float64) (*Model, error) {
	n := len(samples)
	k := len(Components)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 samples", ErrFitFailed)
	}
	if ridge <= 0 {
		ridge = 1e-6
	}

	x := mat.NewDense(n, k, nil)
	y := make([]float64, n)
	for i, s := range samples {
		x.SetRow(i, s.Scores.Clamp().Vector())
		y[i] = s.GroundTruth
	}

	// Centre so the intercept drops out of the normal equations.
	means := make([]float64, k)
	for j := 0; j < k; j++ {
		means[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}
	yMean := stat.Mean(y, nil)

	xc := mat.NewDense(n, k, nil)
	xc.Apply(func(_, j int, v float64) float64 { return v - means[j] }, x)
	yc := mat.NewVecDense(n, nil)
	for i := range y {
		yc.SetVec(i, y[i]-yMean)
	}

	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())
	for j := 0; j < k; j++ {
		gram.SetSym(j, j, gram.At(j, j)+ridge*float64(n))
	}

	var rhs mat.VecDense
	rhs.MulVec(xc.T(), yc)

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, fmt.Errorf("%w: normal equations not positive definite", ErrFitFailed)
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &rhs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFitFailed, err)
	}

	m := &Model{
		Coefficients: make(map[Component]float64, k),
		Intercept:    yMean,
		Samples:      n,
	}
	for j, c := range Components {
		b := beta.AtVec(j)
		m.Coefficients[c] = b
		m.Intercept -= b * means[j]
	}

	pred := make([]float64, n)
	for i := range samples {
		v := m.Intercept
		for j := 0; j < k; j++ {
			v += beta.AtVec(j) * x.At(i, j)
		}
		pred[i] = v
	}
	if r2 := stat.RSquaredFrom(pred, y, nil); !math.IsNaN(r2) && !math.IsInf(r2, 0) {
		m.RSquared = r2
	}

	return m, nil
}
