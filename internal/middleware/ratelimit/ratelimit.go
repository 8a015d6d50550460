// Package ratelimit caps requests per client IP in fixed one-minute
// windows, with a separate budget per rule.
package ratelimit

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Rule is one budget. A request is charged to the first rule it matches;
// requests matching no rule are not limited.
type Rule struct {
	Name      string
	PerMinute int
	Match     func(*http.Request) bool
}

type Config struct {
	Rules           []Rule
	CleanupInterval time.Duration
	// IdleAfter is how long a client may stay silent before its windows
	// are forgotten.
	IdleAfter time.Duration
}

const (
	RuleLogin  = "login"
	RuleWrites = "writes"
)

// DefaultRules limits login attempts separately from other writes.
func DefaultRules(loginPerMinute, writesPerMinute int) []Rule {
	return []Rule{
		{Name: RuleLogin, PerMinute: loginPerMinute, Match: Login},
		{Name: RuleWrites, PerMinute: writesPerMinute, Match: Writes},
	}
}

// Login matches password submissions.
func Login(r *http.Request) bool {
	return r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/auth/login")
}

// Writes matches the methods that change ledger state.
func Writes(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

type window struct {
	start time.Time
	last  time.Time
	count int
}

// charge records one request and reports whether it is within limit.
func (w *window) charge(now time.Time, limit int) bool {
	if now.Sub(w.start) >= time.Minute {
		w.start, w.count = now, 0
	}
	w.last = now
	w.count++
	return w.count <= limit
}

type Limiter struct {
	rules     []Rule
	idleAfter time.Duration
	now       func() time.Time

	mu      sync.Mutex
	windows map[string]*window // rule name + "|" + client IP

	refused  atomic.Int64
	byRule   sync.Map // rule name -> *atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter starts the cleanup goroutine; call Stop to end it. Rules with
// a non-positive budget are dropped.
func NewLimiter(config Config) *Limiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.IdleAfter <= 0 {
		config.IdleAfter = 10 * time.Minute
	}
	rl := &Limiter{
		idleAfter: config.IdleAfter,
		now:       time.Now,
		windows:   make(map[string]*window),
		stop:      make(chan struct{}),
	}
	for _, rule := range config.Rules {
		if rule.PerMinute > 0 && rule.Match != nil {
			rl.rules = append(rl.rules, rule)
		}
	}
	go rl.sweepEvery(config.CleanupInterval)
	return rl
}

// Allow charges one request from clientIP to the named rule.
func (rl *Limiter) Allow(rule, clientIP string) bool {
	limit := 0
	for _, r := range rl.rules {
		if r.Name == rule {
			limit = r.PerMinute
			break
		}
	}
	if limit == 0 {
		return true
	}

	rl.mu.Lock()
	key := rule + "|" + clientIP
	w, ok := rl.windows[key]
	if !ok {
		w = &window{start: rl.now()}
		rl.windows[key] = w
	}
	allowed := w.charge(rl.now(), limit)
	rl.mu.Unlock()

	if !allowed {
		rl.refused.Add(1)
		counter, _ := rl.byRule.LoadOrStore(rule, new(atomic.Int64))
		counter.(*atomic.Int64).Add(1)
	}
	return allowed
}

func (rl *Limiter) match(r *http.Request) (string, bool) {
	for _, rule := range rl.rules {
		if rule.Match(r) {
			return rule.Name, true
		}
	}
	return "", false
}

func (rl *Limiter) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stop:
			return
		}
	}
}

func (rl *Limiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.idleAfter)
	for key, w := range rl.windows {
		if w.last.Before(cutoff) {
			delete(rl.windows, key)
		}
	}
}

// ActiveClients counts tracked (rule, client) windows.
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

func (rl *Limiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

type Metrics struct {
	TotalHits   int64
	ClientCount int64
	HitsByRule  map[string]int64
}

func (rl *Limiter) GetMetrics() Metrics {
	m := Metrics{
		TotalHits:   rl.refused.Load(),
		ClientCount: int64(rl.ActiveClients()),
		HitsByRule:  make(map[string]int64),
	}
	rl.byRule.Range(func(k, v any) bool {
		m.HitsByRule[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return m
}

// Middleware charges each request to its rule and answers over-budget
// requests with onLimit, or a plain 429 when onLimit is nil.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := rl.match(r)
			if ok && !rl.Allow(rule, extractIP(r)) {
				w.Header().Set("Retry-After", "60")
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
