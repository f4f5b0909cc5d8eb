// Package resources tracks computing slots split across named pools.
//
// A Counter starts with every slot unallocated. Slots move between pools
// with Transfer, workers claim them with Request and hand them back with
// Release or RegisterCompletion. The unallocated pool is addressed by the
// empty string.
//
// Requests are all-or-nothing: a request that cannot be filled before its
// context ends puts back whatever it had claimed and reports false. Pulls
// on the same pool are serialized, so two multi-slot requests cannot starve
// each other by each grabbing half.
package resources

import (
	"context"
	"fmt"

	"github.com/steerkit/steerkit/errors"
)

// Unallocated is the name of the pool holding slots not yet assigned to
// any task.
const Unallocated = ""

// pool is a counting semaphore plus a lock that serializes multi-slot
// pulls.
type pool struct {
	slots   chan struct{}
	pulling chan struct{}
}

// Counter tracks slots available to different task types.
// It is safe for concurrent use.
type Counter struct {
	total int
	pools map[string]*pool
}

// NewCounter creates a counter for total slots shared by the named pools.
// All slots start in the unallocated pool. The empty name is reserved for
// that pool.
func NewCounter(total int, pools []string) (*Counter, error) {
	if total < 0 {
		return nil, errors.Config(fmt.Sprintf("slot count %d is negative", total))
	}

	c := &Counter{
		total: total,
		pools: make(map[string]*pool, len(pools)+1),
	}

	names := append([]string{Unallocated}, pools...)
	for _, name := range names {
		if name == Unallocated && len(c.pools) > 0 {
			return nil, errors.Config("the empty pool name is reserved for unallocated slots")
		}
		if _, dup := c.pools[name]; dup {
			return nil, errors.Config(fmt.Sprintf("pool %q declared twice", name))
		}
		c.pools[name] = &pool{
			slots:   make(chan struct{}, total),
			pulling: make(chan struct{}, 1),
		}
	}

	for i := 0; i < total; i++ {
		c.pools[Unallocated].slots <- struct{}{}
	}
	return c, nil
}

func (c *Counter) get(name string) (*pool, error) {
	p, ok := c.pools[name]
	if !ok {
		return nil, errors.New(errors.CodeUnknownPool, fmt.Sprintf("unknown pool %q", name))
	}
	return p, nil
}

// Total returns the number of slots the counter was built with.
func (c *Counter) Total() int {
	return c.total
}

// Unallocated returns the number of slots not assigned to any pool.
func (c *Counter) Unallocated() int {
	return len(c.pools[Unallocated].slots)
}

// Available returns the number of claimable slots in a pool.
func (c *Counter) Available(name string) (int, error) {
	p, err := c.get(name)
	if err != nil {
		return 0, err
	}
	return len(p.slots), nil
}

// Request claims n slots from a pool, drawing only from that pool's
// allocation. It blocks until the claim is filled or ctx ends; an
// unfinished claim is rolled back and reported as false.
func (c *Counter) Request(ctx context.Context, name string, n int) (bool, error) {
	p, err := c.get(name)
	if err != nil {
		return false, err
	}
	if n < 0 {
		return false, errors.Config(fmt.Sprintf("slot count %d is negative", n))
	}
	if n == 0 {
		return true, nil
	}

	// One pull at a time per pool, or two multi-slot requests could each
	// hold half the slots and wait forever for the rest.
	select {
	case p.pulling <- struct{}{}:
	case <-ctx.Done():
		return false, nil
	}
	defer func() { <-p.pulling }()

	claimed := 0
	for claimed < n {
		select {
		case <-p.slots:
			claimed++
		case <-ctx.Done():
			for i := 0; i < claimed; i++ {
				p.slots <- struct{}{}
			}
			return false, nil
		}
	}
	return true, nil
}

// Release returns n slots to a pool.
func (c *Counter) Release(name string, n int) error {
	p, err := c.get(name)
	if err != nil {
		return err
	}
	if n < 0 {
		return errors.Config(fmt.Sprintf("slot count %d is negative", n))
	}

	for i := 0; i < n; i++ {
		select {
		case p.slots <- struct{}{}:
		default:
			return errors.Internal(fmt.Sprintf("pool %q released beyond the counter total", name))
		}
	}
	return nil
}

// RegisterCompletion marks n slots of a pool as available again and, when
// rerequest is set, immediately claims the same count back. The bool
// reports the re-request and is always false when none was asked for.
func (c *Counter) RegisterCompletion(ctx context.Context, name string, n int, rerequest bool) (bool, error) {
	if err := c.Release(name, n); err != nil {
		return false, err
	}
	if !rerequest {
		return false, nil
	}
	return c.Request(ctx, name, n)
}

// Transfer moves n slots from one pool to another. Use the empty name to
// pull from or push to the unallocated pool. Reports false when the source
// pool could not supply the slots before ctx ended.
func (c *Counter) Transfer(ctx context.Context, from, to string, n int) (bool, error) {
	if _, err := c.get(to); err != nil {
		return false, err
	}

	ok, err := c.Request(ctx, from, n)
	if err != nil || !ok {
		return ok, err
	}
	if err := c.Release(to, n); err != nil {
		return false, err
	}
	return true, nil
}
