// Package health implements liveness and readiness checks for the server.
package health

import (
	"context"
	"sync"
	"time"
)

// Check probes one dependency. Returns nil when the dependency is usable.
type Check func(ctx context.Context) error

// Checker runs a named set of dependency checks with a shared timeout.
type Checker struct {
	mu      sync.Mutex
	checks  map[string]Check
	timeout time.Duration
}

// NewChecker creates a Checker with a 5 second per-run timeout.
func NewChecker() *Checker {
	return &Checker{
		checks:  make(map[string]Check),
		timeout: 5 * time.Second,
	}
}

// Register adds a named check. Re-registering a name replaces the check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Ready runs all checks and reports per-check status. The bool is true only
// when every check passed.
func (c *Checker) Ready(ctx context.Context) (bool, map[string]string) {
	c.mu.Lock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ok := true
	statuses := make(map[string]string, len(checks))
	for name, check := range checks {
		if err := check(ctx); err != nil {
			ok = false
			statuses[name] = err.Error()
			continue
		}
		statuses[name] = "ok"
	}
	return ok, statuses
}
