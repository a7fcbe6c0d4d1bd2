package game

import "time"

// Sweep interval used by the gateway to evict dead limiter keys.
const rateLimitSweepInterval = time.Minute

type limitRule struct {
	Limit  int
	Window time.Duration
}

// Default budgets per event type. Events without a rule are never limited.
func defaultLimitRules() map[string]limitRule {
	return map[string]limitRule{
		MsgSendDrawing: {Limit: 60, Window: time.Second},
		MsgMessage:     {Limit: 5, Window: 2 * time.Second},
		MsgCreateRoom:  {Limit: 3, Window: time.Minute},
		MsgJoinRoom:    {Limit: 5, Window: 10 * time.Second},
	}
}

// RateLimiter keeps a sliding window of admission timestamps per
// (connection id, event type) key. It is owned by the gateway goroutine
// and therefore needs no locking.
type RateLimiter struct {
	rules map[string]limitRule
	seen  map[string][]time.Time
	now   func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		rules: defaultLimitRules(),
		seen:  make(map[string][]time.Time),
		now:   time.Now,
	}
}

// Allow reports whether the event is within budget, recording the
// admission when it is.
func (rl *RateLimiter) Allow(connID, event string) bool {
	rule, ok := rl.rules[event]
	if !ok {
		return true
	}

	key := connID + ":" + event
	now := rl.now()
	cutoff := now.Add(-rule.Window)

	timestamps := rl.seen[key]
	valid := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rule.Limit {
		rl.seen[key] = valid
		return false
	}

	rl.seen[key] = append(valid, now)
	return true
}

// Sweep drops keys whose windows have fully expired, bounding memory
// growth from long-gone connections.
func (rl *RateLimiter) Sweep() {
	var maxWindow time.Duration
	for _, rule := range rl.rules {
		if rule.Window > maxWindow {
			maxWindow = rule.Window
		}
	}
	cutoff := rl.now().Add(-maxWindow)

	for key, timestamps := range rl.seen {
		alive := false
		for _, t := range timestamps {
			if t.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(rl.seen, key)
		}
	}
}

// Forget drops every window belonging to a disconnected connection.
func (rl *RateLimiter) Forget(connID string) {
	prefix := connID + ":"
	for key := range rl.seen {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(rl.seen, key)
		}
	}
}
