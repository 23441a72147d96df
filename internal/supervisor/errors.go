package supervisor

import (
	"errors"
	"math"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidDimensions = errors.New("invalid terminal dimensions")
	ErrClosed            = errors.New("supervisor is closed")
	ErrSpawnFailed       = errors.New("spawn failed")
)

// Kill reasons used by the supervisor itself.
const (
	ReasonReplaced     = "replaced"
	ReasonTrashExpired = "trash-expired"
	ReasonShutdown     = "shutdown"
)

// ValidateDimensions converts caller-supplied dimensions, rejecting
// non-finite, fractional and non-positive values.
func ValidateDimensions(cols, rows float64) (int, int, error) {
	for _, v := range []float64{cols, rows} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || v <= 0 || v > math.MaxUint16 {
			return 0, 0, ErrInvalidDimensions
		}
	}
	return int(cols), int(rows), nil
}
