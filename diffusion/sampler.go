package diffusion

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LiorZ/BoltzDesign1/align"
	"github.com/LiorZ/BoltzDesign1/nn"
	"github.com/LiorZ/BoltzDesign1/tensor"
	"github.com/LiorZ/BoltzDesign1/utils"
)

var (
	// ErrEmptyGuide is returned by SampleGuided for a guide without points.
	ErrEmptyGuide = errors.New("diffusion: guide structure has no points")
	// ErrNoAccumulator is returned when token accumulation is enabled but no
	// accumulator was supplied.
	ErrNoAccumulator = errors.New("diffusion: token accumulation enabled without an accumulator")
)

// Config holds the sampler hyperparameters and feature flags. Flags are
// fixed for the lifetime of a Sampler.
type Config struct {
	Schedule      ScheduleParams
	Steps         int
	NoiseScale    float64
	StepScale     float64
	GuideStrength float64

	// Augment applies a random rotation and translation every step. When
	// unset the coordinates are only recentered.
	Augment bool
	// AugmentReflection additionally mirrors half of the samples.
	AugmentReflection bool
	// AlignmentReverseDiff aligns the noisy coordinates onto the denoised
	// estimate before the update.
	AlignmentReverseDiff bool
	// UseInferenceModelCache hands the score model a per-run cache.
	UseInferenceModelCache bool
	// AccumulateTokenRepr folds every step's token output into a running
	// representation.
	AccumulateTokenRepr bool
	// ReducedPrecision keeps the coordinate state in float32 precision.
	// Alignment still runs in float64.
	ReducedPrecision bool
}

// DefaultConfig returns the inference defaults of the pretrained model.
func DefaultConfig() Config {
	return Config{
		Schedule:      DefaultScheduleParams(),
		Steps:         5,
		NoiseScale:    1.003,
		StepScale:     1.5,
		GuideStrength: 0.1,
		Augment:       true,
	}
}

// Validate checks the configuration for values that cannot produce a run.
func (c Config) Validate() error {
	if c.Steps < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewSteps, c.Steps)
	}
	s := c.Schedule
	if s.SigmaData <= 0 || s.SigmaMin <= 0 || s.SigmaMax <= s.SigmaMin {
		return fmt.Errorf("diffusion: invalid sigma range min=%g max=%g data=%g", s.SigmaMin, s.SigmaMax, s.SigmaData)
	}
	if s.Rho <= 0 {
		return fmt.Errorf("diffusion: rho must be positive, got %g", s.Rho)
	}
	if c.GuideStrength < 0 || c.GuideStrength > 1 {
		return fmt.Errorf("diffusion: guide strength %g outside [0, 1]", c.GuideStrength)
	}
	return nil
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithLogger sets the logger for per-step diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sampler) { s.log = l }
}

// WithAccumulator sets the token representation accumulator.
func WithAccumulator(acc *TokenAccumulator) Option {
	return func(s *Sampler) { s.acc = acc }
}

// Sampler runs the reverse diffusion process against a score model.
type Sampler struct {
	cfg     Config
	model   nn.ScoreModel
	precond Preconditioner
	acc     *TokenAccumulator
	log     *slog.Logger
}

// NewSampler validates cfg and returns a sampler for model.
func NewSampler(cfg Config, model nn.ScoreModel, opts ...Option) (*Sampler, error) {
	if model == nil {
		return nil, errors.New("diffusion: nil score model")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sampler{
		cfg:     cfg,
		model:   model,
		precond: Preconditioner{SigmaData: cfg.Schedule.SigmaData},
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.AccumulateTokenRepr && s.acc == nil {
		return nil, ErrNoAccumulator
	}
	return s, nil
}

// Config returns the sampler configuration.
func (s *Sampler) Config() Config { return s.cfg }

// Request describes one sampling run.
type Request struct {
	// AtomMask is (batch, atoms); it is repeated Multiplicity times.
	AtomMask *tensor.Tensor
	// Multiplicity is the number of samples per batch entry. Zero means 1.
	Multiplicity int
	// Steps overrides the configured number of steps when positive.
	Steps int
	// Context is passed unchanged to every score model call.
	Context *nn.Conditioning
	// Seed fixes every random draw of the run.
	Seed uint64
}

// Result is the output of a sampling run.
type Result struct {
	// Coords are the final coordinates, (samples, atoms, 3).
	Coords *tensor.Tensor
	// TokenRepr is the accumulated token representation, or nil when
	// accumulation is disabled.
	TokenRepr *tensor.Tensor
	RunID     uuid.UUID
	Timings   *utils.TimingStats
}

// Sample draws structures by reverse diffusion.
func (s *Sampler) Sample(req Request) (*Result, error) {
	return s.run(req, nil)
}

// SampleGuided draws structures while pulling every step's noisy
// coordinates toward guide. The guide may have any number of points; it is
// matched to the sampled atoms by nearest neighbour each step.
func (s *Sampler) SampleGuided(req Request, guide []r3.Vec) (*Result, error) {
	if len(guide) == 0 {
		return nil, ErrEmptyGuide
	}
	return s.run(req, align.NewMatcher(guide))
}

func (s *Sampler) run(req Request, guide *align.Matcher) (*Result, error) {
	start := time.Now()
	stats := &utils.TimingStats{}

	if req.AtomMask == nil || len(req.AtomMask.Shape) != 2 || req.AtomMask.Shape[0] == 0 {
		return nil, errors.New("diffusion: atom mask must be a non-empty (batch, atoms) tensor")
	}
	mult := req.Multiplicity
	if mult < 1 {
		mult = 1
	}
	steps := s.cfg.Steps
	if req.Steps > 0 {
		steps = req.Steps
	}
	schedule, err := s.cfg.Schedule.Schedule(steps)
	if err != nil {
		return nil, err
	}

	mask := tensor.RepeatInterleave(req.AtomMask, mult)
	samples, atoms := mask.Shape[0], mask.Shape[1]
	noise := NewNoise(req.Seed)

	var cache *nn.Cache
	runID := uuid.New()
	if s.cfg.UseInferenceModelCache {
		cache = nn.NewCache()
		runID = cache.RunID
	}
	log := s.log.With("run", runID.String())
	log.Debug("sampling started", "samples", samples, "atoms", atoms, "steps", steps, "guided", guide != nil)

	coords := tensor.Scale(noise.Gaussian(samples, atoms, 3), schedule[0].SigmaPrev)
	s.round(coords)
	var denoised, tokenRepr *tensor.Tensor

	for i, st := range schedule {
		t0 := time.Now()
		var aug *Augmentation
		if s.cfg.Augment {
			aug = DrawAugmentation(noise, samples, s.cfg.AugmentReflection)
		}
		if err := CenterAugment(coords, mask, aug, denoised); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		stats.AugmentationTime += time.Since(t0)

		tHat := st.SigmaPrev * (1 + st.Gamma)

		t0 = time.Now()
		noisy := coords.Clone()
		scale := s.cfg.NoiseScale * math.Sqrt(math.Max(tHat*tHat-st.SigmaPrev*st.SigmaPrev, 0))
		if err := tensor.AddScaled(noisy, scale, noise.Gaussian(samples, atoms, 3)); err != nil {
			return nil, err
		}
		s.round(noisy)
		stats.NoiseTime += time.Since(t0)

		t0 = time.Now()
		var tokenA *tensor.Tensor
		denoised, tokenA, err = s.precond.Denoise(s.model, noisy, BroadcastSigma(tHat, samples), nn.ScoreInput{
			Context:      req.Context,
			Cache:        cache,
			Multiplicity: mult,
		})
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		s.round(denoised)
		stats.ScoreModelTime += time.Since(t0)

		if s.cfg.AccumulateTokenRepr {
			t0 = time.Now()
			tokenRepr, err = s.acc.Update(BroadcastSigma(s.precond.CNoise(tHat), samples), tokenRepr, tokenA)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			stats.AccumulatorTime += time.Since(t0)
		}

		if guide != nil {
			t0 = time.Now()
			if noisy, err = steer(noisy, denoised, guide, s.cfg.GuideStrength); err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			s.round(noisy)
			stats.GuidanceTime += time.Since(t0)
		}

		if s.cfg.AlignmentReverseDiff {
			t0 = time.Now()
			if noisy, err = align.WeightedRigidAlign(noisy, denoised, mask, mask); err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			s.round(noisy)
			stats.AlignmentTime += time.Since(t0)
		}

		t0 = time.Now()
		h := s.cfg.StepScale * (st.SigmaNext - tHat) / tHat
		for j, v := range noisy.Data {
			coords.Data[j] = v + h*(v-denoised.Data[j])
		}
		s.round(coords)
		stats.UpdateTime += time.Since(t0)

		log.Debug("diffusion step", "step", i, "sigma_prev", st.SigmaPrev, "sigma_next", st.SigmaNext, "t_hat", tHat, "cache_entries", cache.Len())
	}

	stats.TotalTime = time.Since(start)
	log.Debug("sampling finished", "elapsed", stats.TotalTime)
	return &Result{Coords: coords, TokenRepr: tokenRepr, RunID: runID, Timings: stats}, nil
}

func (s *Sampler) round(t *tensor.Tensor) {
	if s.cfg.ReducedPrecision {
		t.RoundFloat32()
	}
}
