package logging

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limited logs warnings at a bounded rate. Suppressed entries are counted
// and reported on the next entry that gets through.
type Limited struct {
	logger     *zap.Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

// NewLimited allows burst entries at once and then one per every.
func NewLimited(logger *zap.Logger, every time.Duration, burst int) *Limited {
	if logger == nil {
		logger = zap.NewNop()
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(every), burst),
	}
}

// Warn logs msg unless the rate has been exceeded. It reports whether the
// entry was written.
func (l *Limited) Warn(msg string, fields ...zap.Field) bool {
	if !l.limiter.Allow() {
		l.suppressed.Add(1)
		return false
	}
	if n := l.suppressed.Swap(0); n > 0 {
		fields = append(fields, zap.Int64("suppressed", n))
	}
	l.logger.Warn(msg, fields...)
	return true
}

// Suppressed returns the number of entries dropped since the last write.
func (l *Limited) Suppressed() int64 {
	return l.suppressed.Load()
}
