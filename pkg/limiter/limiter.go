// Package limiter keeps one token bucket per client key.
package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultRPS   = 5
	DefaultBurst = 10
	// idleAfter is how long an unused bucket is kept before Sweep drops it.
	idleAfter = 10 * time.Minute
)

// Config sets the per-client budget. Zero values select the defaults.
type Config struct {
	RPS   float64
	Burst int
}

type bucket struct {
	l    *rate.Limiter
	seen time.Time
}

// Pool hands out a limiter per key.
type Pool struct {
	mu  sync.Mutex
	m   map[string]*bucket
	cfg Config
	now func() time.Time
}

// New returns a Pool using cfg.
func New(cfg Config) *Pool {
	if cfg.RPS <= 0 {
		cfg.RPS = DefaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	return &Pool{m: make(map[string]*bucket), cfg: cfg, now: time.Now}
}

func (p *Pool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.m[key]; ok {
		b.seen = p.now()
		return b.l
	}
	l := rate.NewLimiter(rate.Limit(p.cfg.RPS), p.cfg.Burst)
	p.m[key] = &bucket{l: l, seen: p.now()}
	return l
}

// Allow reports whether key may proceed now, consuming one token.
func (p *Pool) Allow(key string) bool {
	// Use per-second rate; limiter handles clocks
	return p.get(key).Allow()
}

// Len returns the number of tracked keys.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// Sweep forgets keys idle for longer than idleAfter and returns how many
// were removed.
func (p *Pool) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := p.now().Add(-idleAfter)
	n := 0
	for k, b := range p.m {
		if b.seen.Before(cutoff) {
			delete(p.m, k)
			n++
		}
	}
	return n
}
