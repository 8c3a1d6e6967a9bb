package ecem

import (
	"math"
	"slices"

	"github.com/pkg/errors"

	"github.com/tensorplex-labs/hyperdetect/internal/config"
)

const (
	DefaultNumLayer    = 10
	DefaultNumCEM      = 6
	DefaultLambda      = 1e-6
	DefaultParallelism = 4
	DefaultMaxRetries  = 3
)

// DefaultWindowSizes are the window fractions used in the published experiments.
func DefaultWindowSizes() []float64 {
	return []float64{0.25, 0.5, 0.75, 1.0}
}

// Config is the full parameter set of one detection call. It is treated as an
// immutable value: the detector keeps its own copy.
type Config struct {
	// WindowSizes are fractions r in (0,1]; each yields winlen = floor(D*r^2).
	WindowSizes []float64 `json:"window_sizes"`
	NumLayer    int       `json:"num_layer"`
	NumCEM      int       `json:"num_cem"`
	// Lambda is the regularization base; each CEM draws λ from [Λ/(1+Λ), Λ].
	Lambda float64 `json:"lambda"`
	// Parallelism bounds the number of concurrently running stages.
	Parallelism int `json:"parallelism"`
	// MaxRetries bounds the λ redraws after a singular solve.
	MaxRetries int `json:"max_retries"`
	// Seed fixes every random draw of a call. Zero draws a fresh seed per call.
	Seed uint64 `json:"seed"`
	// Verbose raises progress logging from debug to info.
	Verbose bool `json:"verbose"`
}

func DefaultConfig() Config {
	return Config{
		WindowSizes: DefaultWindowSizes(),
		NumLayer:    DefaultNumLayer,
		NumCEM:      DefaultNumCEM,
		Lambda:      DefaultLambda,
		Parallelism: DefaultParallelism,
		MaxRetries:  DefaultMaxRetries,
	}
}

func (c Config) clone() Config {
	c.WindowSizes = slices.Clone(c.WindowSizes)
	return c
}

// Validate checks everything that does not depend on the cube.
func (c Config) Validate() error {
	if len(c.WindowSizes) == 0 {
		return errors.Wrap(ErrInvalidConfiguration, "no window sizes configured")
	}
	for i, r := range c.WindowSizes {
		if !(r > 0 && r <= 1) {
			return errors.Wrapf(ErrInvalidConfiguration, "window size %d is %g, want a fraction in (0,1]", i, r)
		}
	}
	if c.NumLayer <= 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "num_layer must be positive, got %d", c.NumLayer)
	}
	if c.NumCEM <= 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "num_cem must be positive, got %d", c.NumCEM)
	}
	if !(c.Lambda > 0) || math.IsInf(c.Lambda, 0) {
		return errors.Wrapf(ErrInvalidConfiguration, "lambda must be a positive finite number, got %g", c.Lambda)
	}
	if c.Parallelism <= 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "parallelism must be positive, got %d", c.Parallelism)
	}
	if c.MaxRetries < 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "max_retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

// validateBands checks the window sizes against a cube with the given number
// of bands.
func (c Config) validateBands(bands int) error {
	for i, r := range c.WindowSizes {
		winlen := WindowLength(bands, r)
		if winlen <= 0 || winlen > bands {
			return errors.Wrapf(ErrInvalidConfiguration,
				"window size %d (%g) gives window length %d for %d bands", i, r, winlen, bands)
		}
	}
	return nil
}

type Option func(*Config)

func WithWindowSizes(sizes ...float64) Option {
	return func(c *Config) {
		c.WindowSizes = slices.Clone(sizes)
	}
}

func WithNumLayer(n int) Option {
	return func(c *Config) {
		c.NumLayer = n
	}
}

func WithNumCEM(n int) Option {
	return func(c *Config) {
		c.NumCEM = n
	}
}

func WithLambda(lambda float64) Option {
	return func(c *Config) {
		c.Lambda = lambda
	}
}

func WithParallelism(n int) Option {
	return func(c *Config) {
		c.Parallelism = n
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

func WithSeed(seed uint64) Option {
	return func(c *Config) {
		c.Seed = seed
	}
}

func WithVerbose(verbose bool) Option {
	return func(c *Config) {
		c.Verbose = verbose
	}
}

func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg.clone()
	}
}

// OptionsFromEnv maps the environment configuration onto detector options.
func OptionsFromEnv(cfg *config.DetectorEnvConfig) []Option {
	if cfg == nil {
		return nil
	}
	opts := []Option{
		WithNumLayer(cfg.NumLayer),
		WithNumCEM(cfg.NumCEM),
		WithLambda(cfg.Lambda),
		WithParallelism(cfg.Parallelism),
		WithMaxRetries(cfg.MaxRetries),
		WithSeed(cfg.Seed),
		WithVerbose(cfg.Verbose),
	}
	if len(cfg.WindowSizes) > 0 {
		opts = append(opts, WithWindowSizes(cfg.WindowSizes...))
	}
	return opts
}
