// Package limiter keeps one token bucket per key.
package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	RPS   float64
	Burst int
	// TTL evicts buckets unused for longer; zero means ten minutes.
	TTL time.Duration
}

type entry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// Pool is a per-key rate limiter pool. A zero RPS disables limiting.
type Pool struct {
	mu  sync.Mutex
	m   map[string]*entry
	cfg Config
	now func() time.Time

	startCleanup sync.Once
	stopOnce     sync.Once
	stopCh       chan struct{}
}

func New(cfg Config) *Pool {
	if cfg.TTL == 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Pool{m: make(map[string]*entry), cfg: cfg, now: time.Now, stopCh: make(chan struct{})}
}

// get limiter for key, create if missing; start cleanup once
func (p *Pool) get(key string) *rate.Limiter {
	p.startCleanup.Do(func() { go p.cleanupLoop(p.cfg.TTL) })

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.m[key]; ok {
		e.lastSeen = p.now()
		return e.l
	}
	l := rate.NewLimiter(rate.Limit(p.cfg.RPS), p.cfg.Burst)
	p.m[key] = &entry{l: l, lastSeen: p.now()}
	return l
}

func (p *Pool) Allow(key string) bool {
	if p == nil || p.cfg.RPS <= 0 {
		return true
	}
	return p.get(key).Allow()
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

func (p *Pool) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// sweep removes limiters unused since cutoff.
func (p *Pool) sweep(cutoff time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
}

func (p *Pool) cleanupLoop(ttl time.Duration) {
	period := ttl / 10
	if period < time.Second {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweep(p.now().Add(-ttl))
		case <-p.stopCh:
			return
		}
	}
}
