package session

import (
	"sync"

	"golang.org/x/time/rate"
)

// otpRateLimiter throttles OTP requests per mobile number so a single number
// cannot be used to flood the SMS gateway. Limiters are created lazily and
// evicted once the map grows past maxTracked.
type otpRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	limit      rate.Limit
	burst      int
	maxTracked int
}

func newOTPRateLimiter(limit rate.Limit, burst int) *otpRateLimiter {
	return &otpRateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		limit:      limit,
		burst:      burst,
		maxTracked: 10000,
	}
}

// Allow reports whether a request for the given mobile number may proceed.
func (l *otpRateLimiter) Allow(mobileNumber string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.limiters) >= l.maxTracked {
		// Crude reset: dropping all limiters briefly over-admits, which is an
		// acceptable trade against unbounded growth.
		l.limiters = make(map[string]*rate.Limiter)
	}

	lim, ok := l.limiters[mobileNumber]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[mobileNumber] = lim
	}
	return lim.Allow()
}
