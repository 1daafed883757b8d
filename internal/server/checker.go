package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pinger is a dependency readiness depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

var _ HealthChecker = (*Checker)(nil)

// Checker reports ready while every dependency answers a ping.
type Checker struct {
	timeout  time.Duration
	names    []string
	pingers  map[string]Pinger
	draining atomic.Bool

	mu     sync.RWMutex
	status map[string]string
}

// NewChecker creates a checker with a per-ping timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{
		timeout: timeout,
		pingers: make(map[string]Pinger),
		status:  make(map[string]string),
	}
}

// Add registers a dependency under name. It is not safe to call
// concurrently with Readiness.
func (c *Checker) Add(name string, p Pinger) *Checker {
	if _, ok := c.pingers[name]; !ok {
		c.names = append(c.names, name)
	}
	c.pingers[name] = p
	return c
}

// SetDraining marks the service as shutting down; readiness fails from
// then on while liveness holds.
func (c *Checker) SetDraining() {
	c.draining.Store(true)
}

// Liveness reports whether the process is alive.
func (c *Checker) Liveness() bool {
	return true
}

// Readiness pings every dependency and records the outcome per name.
func (c *Checker) Readiness(ctx context.Context) bool {
	ready := !c.draining.Load()
	status := make(map[string]string, len(c.names)+1)
	if !ready {
		status["service"] = "draining"
	}

	for _, name := range c.names {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.pingers[name].Ping(pctx)
		cancel()
		if err != nil {
			ready = false
			status[name] = "error: " + err.Error()
			continue
		}
		status[name] = "ok"
	}

	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	return ready
}

// GetStatus returns the outcome of the last readiness check.
func (c *Checker) GetStatus() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.status))
	for k, v := range c.status {
		out[k] = v
	}
	return out
}
