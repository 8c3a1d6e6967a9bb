package ecem

import "github.com/pkg/errors"

var (
	// ErrSingularMatrix reports that R+λI has no usable inverse. Ill-conditioned
	// but finite solves are not errors. It is retryable with a fresh λ.
	ErrSingularMatrix = errors.New("singular matrix")

	// ErrInvalidConfiguration reports a configuration that can never run.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrDimensionMismatch reports a cube and target that do not fit together.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)
