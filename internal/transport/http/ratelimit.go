package http

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows perMinute inbound frames per minute with a burst of the same size.
// It returns nil when limiting is off.
func newRateLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

func allowFrame(l *rate.Limiter, now time.Time) bool {
	return l == nil || l.AllowN(now, 1)
}
