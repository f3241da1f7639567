package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionTyping      = "typing"
	ActionCreateChat  = "create_chat"
	ActionDefault     = "default"
)

// Rule is a sustained rate per minute plus the burst allowed on top of it.
type Rule struct {
	PerMinute int
	Burst     int
}

func (r Rule) limit() rate.Limit {
	if r.PerMinute <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(r.PerMinute))
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per user and action.
type RateLimiter struct {
	rules   map[string]Rule
	buckets map[string]*bucket
	mutex   sync.Mutex
	now     func() time.Time
}

func DefaultRules() map[string]Rule {
	return map[string]Rule{
		ActionSendMessage: {PerMinute: 30, Burst: 10},
		ActionTyping:      {PerMinute: 60, Burst: 30},
		ActionCreateChat:  {PerMinute: 5, Burst: 5},
		ActionDefault:     {PerMinute: 120, Burst: 20},
	}
}

func NewRateLimiter(rules map[string]Rule) *RateLimiter {
	merged := DefaultRules()
	for action, rule := range rules {
		merged[action] = rule
	}
	return &RateLimiter{
		rules:   merged,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (rl *RateLimiter) rule(action string) Rule {
	if rule, ok := rl.rules[action]; ok {
		return rule
	}
	return rl.rules[ActionDefault]
}

// Allow reports whether userID may perform action now. When it may not, the
// returned duration is how long until the next token.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	key := userID + ":" + action
	now := rl.now()

	rl.mutex.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		rule := rl.rule(action)
		burst := rule.Burst
		if burst <= 0 {
			burst = 1
		}
		b = &bucket{limiter: rate.NewLimiter(rule.limit(), burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mutex.Unlock()

	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 0
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup removes buckets that have not been used for idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(rl.buckets, key)
		}
	}
}

func (rl *RateLimiter) Len() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.buckets)
}

// StartCleanupRoutine runs Cleanup every interval until stop is closed.
func (rl *RateLimiter) StartCleanupRoutine(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			case <-stop:
				return
			}
		}
	}()
}
