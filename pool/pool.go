// Package pool runs homogeneous tasks with a concurrency limit that adapts
// to provider pushback.
package pool

import (
	"context"
	"log/slog"
	"sync"
)

// Policy controls how the limit reacts to task outcomes. After GrowAfter
// consecutive successes the limit grows by GrowStep up to Max; a throttling
// error halves it down to Floor.
type Policy struct {
	Baseline  int
	Max       int
	Floor     int
	GrowAfter int
	GrowStep  int

	// Throttled reports whether an error should shrink the limit. A nil
	// Throttled treats every error as pushback.
	Throttled func(error) bool
}

// DefaultPolicy mirrors the tuning used for AI classification calls.
func DefaultPolicy() Policy {
	return Policy{
		Baseline:  5,
		Max:       20,
		Floor:     1,
		GrowAfter: 3,
		GrowStep:  2,
	}
}

// Pool dispatches tasks while holding the adaptive limit.
type Pool struct {
	policy Policy

	mu        sync.Mutex
	cond      *sync.Cond
	limit     int
	active    int
	streak    int
	failures  int
	completed int
}

// New builds a pool from a policy, normalising degenerate values.
func New(policy Policy) *Pool {
	if policy.Baseline <= 0 {
		policy.Baseline = 1
	}
	if policy.Floor <= 0 {
		policy.Floor = 1
	}
	if policy.Max < policy.Baseline {
		policy.Max = policy.Baseline
	}
	if policy.GrowAfter <= 0 {
		policy.GrowAfter = 3
	}
	if policy.GrowStep <= 0 {
		policy.GrowStep = 1
	}
	p := &Pool{policy: policy, limit: policy.Baseline}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Limit returns the current concurrency limit.
func (p *Pool) Limit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limit
}

// Failures returns how many tasks returned an error.
func (p *Pool) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// Run executes fn for every index in [0, n) under the adaptive limit. Task
// errors adjust the limit but do not abort the batch; only context
// cancellation stops dispatch early.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	var wg sync.WaitGroup

	stop := context.AfterFunc(ctx, func() {
		p.cond.Broadcast()
	})
	defer stop()

	for i := 0; i < n; i++ {
		if err := p.acquire(ctx); err != nil {
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := fn(ctx, i)
			p.release(err)
		}(i)
	}

	wg.Wait()
	return ctx.Err()
}

func (p *Pool) acquire(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.active >= p.limit {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.cond.Wait()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.active++
	return nil
}

func (p *Pool) release(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active--
	p.completed++

	switch {
	case err == nil:
		p.streak++
		if p.streak >= p.policy.GrowAfter && p.limit < p.policy.Max {
			p.limit += p.policy.GrowStep
			if p.limit > p.policy.Max {
				p.limit = p.policy.Max
			}
			p.streak = 0
			slog.Debug("pool limit raised", slog.Int("limit", p.limit))
		}
	case p.policy.Throttled == nil || p.policy.Throttled(err):
		p.failures++
		p.streak = 0
		if p.limit > p.policy.Floor {
			p.limit /= 2
			if p.limit < p.policy.Floor {
				p.limit = p.policy.Floor
			}
			slog.Debug("pool limit halved", slog.Int("limit", p.limit))
		}
	default:
		p.failures++
		p.streak = 0
	}

	p.cond.Broadcast()
}
