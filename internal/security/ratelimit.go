package security

import (
	"sync"
	"time"
)

// RateLimiter is a sliding window limiter keyed by client
type RateLimiter struct {
	windows  map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
	burstMax int
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// RateLimitConfig holds rate limiter configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the maximum number of requests allowed per window
	RequestsPerWindow int
	// WindowDuration is the duration of the rate limit window
	WindowDuration time.Duration
	// BurstMax caps requests within any one second; 0 disables it
	BurstMax int
}

// DefaultRateLimitConfig allows 30 run submissions a minute, 5 per second.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 30,
		WindowDuration:    time.Minute,
		BurstMax:          5,
	}
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if config.RequestsPerWindow <= 0 {
		config.RequestsPerWindow = def.RequestsPerWindow
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = def.WindowDuration
	}

	rl := &RateLimiter{
		windows:  make(map[string][]time.Time),
		limit:    config.RequestsPerWindow,
		window:   config.WindowDuration,
		burstMax: config.BurstMax,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	go rl.cleanupLoop(5 * time.Minute)

	return rl
}

// Stop ends the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow records a request for key and reports whether it is within limits
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	reqs := rl.prune(key, now)

	if len(reqs) >= rl.limit {
		return false
	}

	if rl.burstMax > 0 {
		burstCutoff := now.Add(-time.Second)
		burst := 0
		for _, t := range reqs {
			if t.After(burstCutoff) {
				burst++
			}
		}
		if burst >= rl.burstMax {
			return false
		}
	}

	rl.windows[key] = append(reqs, now)
	return true
}

// prune drops requests older than the window. Callers hold mu.
func (rl *RateLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	reqs := rl.windows[key]
	i := 0
	for i < len(reqs) && !reqs[i].After(cutoff) {
		i++
	}
	reqs = reqs[i:]
	if len(reqs) == 0 {
		delete(rl.windows, key)
		return nil
	}
	rl.windows[key] = reqs
	return reqs
}

// RateLimitInfo contains rate limit information for response headers
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Info returns the current limits for key
func (rl *RateLimiter) Info(key string) RateLimitInfo {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	reqs := rl.prune(key, now)

	info := RateLimitInfo{Limit: rl.limit, Remaining: rl.limit - len(reqs), ResetAt: now}
	if info.Remaining < 0 {
		info.Remaining = 0
	}
	if len(reqs) > 0 {
		info.ResetAt = reqs[0].Add(rl.window)
	}
	return info
}

// Reset forgets all requests of key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, key)
}

func (rl *RateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key := range rl.windows {
				rl.prune(key, now)
			}
			rl.mu.Unlock()
		}
	}
}
