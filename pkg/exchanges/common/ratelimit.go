package common

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter tracks the remaining request budget the exchange reports in
// its Remaining-Req header, e.g. "group=order; min=1799; sec=7".
type RateLimiter struct {
	mu     sync.RWMutex
	groups map[string]remaining
	now    func() time.Time
}

type remaining struct {
	sec       int
	min       int
	updatedAt time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{groups: make(map[string]remaining), now: time.Now}
}

// ParseRemainingReq parses a Remaining-Req header value.
func ParseRemainingReq(v string) (group string, min, sec int, ok bool) {
	if v == "" {
		return "", 0, 0, false
	}
	min, sec = -1, -1
	for _, part := range strings.Split(v, ";") {
		k, val, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "group":
			group = val
		case "min":
			min, _ = strconv.Atoi(val)
		case "sec":
			sec, _ = strconv.Atoi(val)
		}
	}
	if group == "" || sec < 0 {
		return "", 0, 0, false
	}
	return group, min, sec, true
}

// UpdateFromHeader records the budget carried by a Remaining-Req header.
// It returns the group name and remaining per-second budget.
func (rl *RateLimiter) UpdateFromHeader(v string) (string, int, bool) {
	group, min, sec, ok := ParseRemainingReq(v)
	if !ok {
		return "", 0, false
	}
	rl.mu.Lock()
	rl.groups[group] = remaining{sec: sec, min: min, updatedAt: rl.now()}
	rl.mu.Unlock()
	return group, sec, true
}

// Delay returns how long to wait before the next call in group. The
// per-second budget refills after one second.
func (rl *RateLimiter) Delay(group string) time.Duration {
	rl.mu.RLock()
	r, ok := rl.groups[group]
	rl.mu.RUnlock()
	if !ok || r.sec > 0 {
		return 0
	}
	wait := time.Second - rl.now().Sub(r.updatedAt)
	if wait < 0 {
		return 0
	}
	return wait
}

// Remaining returns the last reported per-second and per-minute budgets.
func (rl *RateLimiter) Remaining(group string) (sec, min int, ok bool) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	r, ok := rl.groups[group]
	return r.sec, r.min, ok
}
