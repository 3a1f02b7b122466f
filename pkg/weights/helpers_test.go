package weights

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
)

// memSampleStore is an in-memory SampleStore that records batches.
type memSampleStore struct {
	mu      sync.Mutex
	samples []TrainingSample
	batches int
	failing bool
}

func (m *memSampleStore) AppendSamples(ctx context.Context, samples []TrainingSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("disk full")
	}
	m.batches++
	m.samples = append(m.samples, samples...)
	return nil
}

func (m *memSampleStore) LoadSamples(ctx context.Context, limit int) ([]TrainingSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.samples
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]TrainingSample(nil), out...), nil
}

func (m *memSampleStore) Close() error { return nil }

// labelled returns n samples whose ground truth is
// 0.5*eye_state + 0.3*emotion + 0.2*gaze.
func labelled(n int) []struct {
	scores Scores
	truth  float64
} {
	r := rand.New(rand.NewPCG(7, 11))
	out := make([]struct {
		scores Scores
		truth  float64
	}, n)
	for i := range out {
		s := Scores{
			FacePresence: 100,
			Emotion:      r.Float64() * 100,
			EyeState:     r.Float64() * 100,
			HeadPose:     100,
			Gaze:         r.Float64() * 100,
			Posture:      70,
			Gesture:      70,
		}
		out[i].scores = s
		out[i].truth = 0.5*s[EyeState] + 0.3*s[Emotion] + 0.2*s[Gaze]
	}
	return out
}
