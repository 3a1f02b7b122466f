package weights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Config holds optimizer tunables.
type Config struct {
	MinSamples int     `yaml:"min_samples"` // Train refuses below this
	FlushEvery int     `yaml:"flush_every"` // Flush pending samples after this many additions
	MaxSamples int     `yaml:"max_samples"` // Samples kept in memory for training
	Ridge      float64 `yaml:"ridge"`       // Ridge penalty per sample
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinSamples: 20,
		FlushEvery: 10,
		MaxSamples: 10000,
		Ridge:      1e-3,
	}
}

// Option is a functional option for configuring an Optimizer.
type Option func(*Optimizer)

// WithProfileStore persists profiles and the model to store.
func WithProfileStore(store ProfileStore) Option {
	return func(o *Optimizer) { o.profileStore = store }
}

// WithSampleStore persists training samples to store.
func WithSampleStore(store SampleStore) Option {
	return func(o *Optimizer) { o.sampleStore = store }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Optimizer) { o.logger = l }
}

// WithConfig sets optimizer tunables.
func WithConfig(cfg Config) Option {
	return func(o *Optimizer) { o.cfg = cfg }
}

// WithClock overrides time.Now for sample timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) { o.now = now }
}

// Optimizer owns the weight profiles shared by every analyzer.
// Reads may run concurrently; training, authoring and saving are serialized.
type Optimizer struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	model    *Model
	samples  []TrainingSample
	pending  []TrainingSample
	added    int

	// trainMu serializes Train and Save so the store never sees
	// interleaved writes.
	trainMu sync.Mutex

	profileStore ProfileStore
	sampleStore  SampleStore
	cfg          Config
	logger       *slog.Logger
	now          func() time.Time
}

// NewOptimizer creates an optimizer holding the built-in profiles.
// Call Load to merge persisted state.
func NewOptimizer(opts ...Option) *Optimizer {
	o := &Optimizer{
		profiles: DefaultProfiles(),
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg.MinSamples < 2 {
		o.cfg.MinSamples = 2
	}
	if o.cfg.FlushEvery < 1 {
		o.cfg.FlushEvery = 1
	}
	o.logger = o.logger.With("component", "weights")
	return o
}

// Load merges persisted profiles, the model and recent samples into memory.
// Unreadable profiles are skipped; store errors are returned after
// whatever could be loaded has been applied.
func (o *Optimizer) Load(ctx context.Context) error {
	var errs []error

	if o.profileStore != nil {
		stored, err := o.profileStore.LoadProfiles(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("load profiles: %w", err))
		}
		model, err := o.profileStore.LoadModel(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("load model: %w", err))
		}

		o.mu.Lock()
		for name, p := range stored {
			if err := p.Validate(); err != nil {
				o.logger.Warn("skipping invalid stored profile", "name", name, "error", err)
				continue
			}
			o.profiles[name] = Normalize(p)
		}
		if model != nil {
			o.model = model
		}
		o.mu.Unlock()

		o.logger.Info("profiles loaded", "count", len(stored), "has_model", model != nil)
	}

	if o.sampleStore != nil {
		samples, err := o.sampleStore.LoadSamples(ctx, o.cfg.MaxSamples)
		if err != nil {
			errs = append(errs, fmt.Errorf("load samples: %w", err))
		}
		o.mu.Lock()
		o.samples = append(samples, o.samples...)
		o.trimSamples()
		o.mu.Unlock()

		o.logger.Info("samples loaded", "count", len(samples))
	}

	return errors.Join(errs...)
}

// Weights returns the profile for context, falling back to the learned
// profile and then the default. The result always sums to 100.
func (o *Optimizer) Weights(context string) Profile {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if p, ok := o.profiles[context]; ok {
		return p.Clone()
	}
	if p, ok := o.profiles[Learned]; ok && o.model != nil {
		return p.Clone()
	}
	if p, ok := o.profiles[Default]; ok {
		return p.Clone()
	}
	return DefaultProfile()
}

// Has reports whether a profile named context exists.
func (o *Optimizer) Has(context string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.profiles[context]
	return ok
}

// Profiles returns a copy of every profile.
func (o *Optimizer) Profiles() map[string]Profile {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[string]Profile, len(o.profiles))
	for name, p := range o.profiles {
		out[name] = p.Clone()
	}
	return out
}

// Contexts returns the profile names in sorted order.
func (o *Optimizer) Contexts() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	names := make([]string, 0, len(o.profiles))
	for name := range o.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model returns a copy of the fitted model, if any.
func (o *Optimizer) Model() (Model, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.model == nil {
		return Model{}, false
	}
	m := *o.model
	m.Coefficients = make(map[Component]float64, len(o.model.Coefficients))
	for c, v := range o.model.Coefficients {
		m.Coefficients[c] = v
	}
	return m, true
}

// SampleCount returns the number of samples available for training.
func (o *Optimizer) SampleCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.samples)
}

// AddTrainingSample records scores labelled with groundTruth. Every
// FlushEvery-th sample triggers a flush to the sample store; flush
// failures are logged and retried on the next flush.
func (o *Optimizer) AddTrainingSample(ctx context.Context, scores Scores, groundTruth float64) (TrainingSample, error) {
	if math.IsNaN(groundTruth) || groundTruth < 0 || groundTruth > 100 {
		return TrainingSample{}, fmt.Errorf("%w: got %v", ErrInvalidGroundTruth, groundTruth)
	}

	sample := TrainingSample{
		ID:          ulid.Make().String(),
		Scores:      scores.Clamp(),
		GroundTruth: groundTruth,
		CreatedAt:   o.now(),
	}

	o.mu.Lock()
	o.samples = append(o.samples, sample)
	o.trimSamples()
	o.pending = append(o.pending, sample)
	o.added++
	flush := o.added%o.cfg.FlushEvery == 0
	o.mu.Unlock()

	if flush {
		if err := o.Flush(ctx); err != nil {
			o.logger.Warn("sample flush failed", "error", err)
		}
	}
	return sample, nil
}

// Flush writes pending samples to the sample store.
func (o *Optimizer) Flush(ctx context.Context) error {
	if o.sampleStore == nil {
		o.mu.Lock()
		o.pending = nil
		o.mu.Unlock()
		return nil
	}

	o.mu.Lock()
	batch := o.pending
	o.pending = nil
	o.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := o.sampleStore.AppendSamples(ctx, batch); err != nil {
		o.mu.Lock()
		o.pending = append(batch, o.pending...)
		o.mu.Unlock()
		return fmt.Errorf("append samples: %w", err)
	}

	o.logger.Debug("samples flushed", "count", len(batch))
	return nil
}

// Train fits a linear model on the collected samples and stores the
// resulting profile as Learned. With fewer than MinSamples samples, or
// when the fit fails, it returns an error and changes nothing.
// Persistence failures are logged; the in-memory result is kept.
func (o *Optimizer) Train(ctx context.Context) (Profile, error) {
	o.trainMu.Lock()
	defer o.trainMu.Unlock()

	o.mu.RLock()
	samples := append([]TrainingSample(nil), o.samples...)
	o.mu.RUnlock()

	if len(samples) < o.cfg.MinSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, len(samples), o.cfg.MinSamples)
	}

	model, err := fit(samples, o.cfg.Ridge)
	if err != nil {
		o.logger.Warn("training failed", "samples", len(samples), "error", err)
		return nil, err
	}
	model.TrainedAt = o.now()

	profile, err := model.Profile()
	if err != nil {
		o.logger.Warn("training produced no usable weights", "error", err)
		return nil, err
	}

	o.mu.Lock()
	o.profiles[Learned] = profile
	o.model = model
	o.mu.Unlock()

	o.logger.Info("weight model trained",
		"samples", model.Samples,
		"r_squared", model.RSquared,
		"top_component", profile.Ranked()[0],
	)

	if err := o.persist(ctx); err != nil {
		o.logger.Error("failed to persist learned profile", "error", err)
	}
	return profile.Clone(), nil
}

// SetCustom authors a named profile. Every component must be present.
// The profile is normalized to 100, stored and persisted.
func (o *Optimizer) SetCustom(ctx context.Context, name string, weights map[Component]float64) (Profile, error) {
	if name == "" {
		return nil, errors.New("weights: profile name required")
	}
	if reserved(name) {
		return nil, fmt.Errorf("%w: %s", ErrReservedProfile, name)
	}

	p := Profile(weights)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Sum() <= 0 {
		return nil, fmt.Errorf("%w: weights sum to zero", ErrInvalidWeight)
	}
	p = Normalize(p)

	o.trainMu.Lock()
	defer o.trainMu.Unlock()

	o.mu.Lock()
	o.profiles[name] = p
	o.mu.Unlock()

	if err := o.persist(ctx); err != nil {
		o.logger.Error("failed to persist custom profile", "name", name, "error", err)
	}
	return p.Clone(), nil
}

// Save persists profiles, the model and pending samples.
func (o *Optimizer) Save(ctx context.Context) error {
	o.trainMu.Lock()
	err := o.persist(ctx)
	o.trainMu.Unlock()

	return errors.Join(err, o.Flush(ctx))
}

// Close flushes pending samples and closes the sample store.
func (o *Optimizer) Close(ctx context.Context) error {
	err := o.Flush(ctx)
	if o.sampleStore != nil {
		err = errors.Join(err, o.sampleStore.Close())
	}
	return err
}

// persist writes profiles and model. Callers hold trainMu.
func (o *Optimizer) persist(ctx context.Context) error {
	if o.profileStore == nil {
		return nil
	}

	profiles := o.Profiles()
	model, hasModel := o.Model()

	if err := o.profileStore.SaveProfiles(ctx, profiles); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	if hasModel {
		if err := o.profileStore.SaveModel(ctx, &model); err != nil {
			return fmt.Errorf("save model: %w", err)
		}
	}
	return nil
}

// trimSamples drops the oldest samples above MaxSamples. Callers hold mu.
func (o *Optimizer) trimSamples() {
	if o.cfg.MaxSamples > 0 && len(o.samples) > o.cfg.MaxSamples {
		o.samples = append([]TrainingSample(nil), o.samples[len(o.samples)-o.cfg.MaxSamples:]...)
	}
}
