// Package reconcile implements the sync reconciliation engine: the per-profile
// view projection, the push pipeline shared by manual and scheduled syncs, and the
// scheduler that reconciles every profile on an interval.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
)

const (
	// LeaseName is the store lease backing the exclusion across processes.
	LeaseName = "reconcile"

	// DefaultLeaseTTL bounds how long a crashed holder blocks other processes.
	DefaultLeaseTTL = 2 * time.Minute
)

// State is the connection and exclusion state shared by every push path.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateReconciling
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconciling:
		return "reconciling"
	default:
		return "disconnected"
	}
}

// Controller owns the single exclusion domain. Scheduled ticks, manual batches and
// single-file pushes all enter StateReconciling through TryBegin, so at most one
// of them runs at a time. With a lease store the exclusion also spans every
// process sharing that store.
type Controller struct {
	mu        sync.Mutex
	state     State
	holder    string
	listeners map[int]func(State)
	nextID    int

	leases   ports.LeaseStore
	owner    string
	leaseTTL time.Duration
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLease backs TryBegin with a lease in store. owner tells this process apart
// from others holding the same store.
func WithLease(store ports.LeaseStore, owner string, ttl time.Duration) ControllerOption {
	return func(c *Controller) {
		c.leases = store
		c.owner = owner
		c.leaseTTL = ttl
	}
}

// NewController returns a controller in StateDisconnected.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{listeners: make(map[int]func(State))}
	for _, opt := range opts {
		opt(c)
	}
	if c.leaseTTL <= 0 {
		c.leaseTTL = DefaultLeaseTTL
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Holder names whoever currently holds StateReconciling, or "".
func (c *Controller) Holder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holder
}

// IsConnected reports whether the file store session is usable.
func (c *Controller) IsConnected() bool {
	return c.State() != StateDisconnected
}

// Connect marks the session usable. It is a no-op unless disconnected.
func (c *Controller) Connect() {
	c.transition(func() bool {
		if c.state != StateDisconnected {
			return false
		}
		c.state = StateConnected
		return true
	})
}

// Disconnect marks the session unusable. A holder that is still running keeps
// going; its release will not bring the state back to connected.
func (c *Controller) Disconnect() {
	c.transition(func() bool {
		if c.state == StateDisconnected {
			return false
		}
		c.state = StateDisconnected
		c.holder = ""
		return true
	})
}

// TryBegin enters StateReconciling on behalf of holder. It fails with ErrBusy when
// another holder is active, here or in another process, and ErrDisconnected when
// there is no session. The returned release is safe to call more than once.
func (c *Controller) TryBegin(ctx context.Context, holder string) (release func(), err error) {
	c.mu.Lock()
	switch c.state {
	case StateDisconnected:
		c.mu.Unlock()
		return nil, domainErrors.ErrDisconnected
	case StateReconciling:
		busy := c.holder
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: held by %s", domainErrors.ErrBusy, busy)
	}
	// Reserved without notifying until the lease is ours.
	c.state = StateReconciling
	c.holder = holder
	c.mu.Unlock()

	stopRenew := func() {}
	if c.leases != nil {
		leaseHolder := c.owner + "/" + holder
		if err := c.acquireLease(ctx, leaseHolder); err != nil {
			c.mu.Lock()
			if c.state == StateReconciling && c.holder == holder {
				c.state = StateConnected
				c.holder = ""
			}
			c.mu.Unlock()
			return nil, err
		}
		stopRenew = c.renewLease(leaseHolder)

		c.mu.Lock()
		kept := c.state == StateReconciling && c.holder == holder
		c.mu.Unlock()
		if !kept {
			stopRenew()
			return nil, domainErrors.ErrDisconnected
		}
	}
	c.notify(StateReconciling)

	var once sync.Once
	return func() {
		once.Do(func() {
			stopRenew()
			c.transition(func() bool {
				if c.state != StateReconciling || c.holder != holder {
					return false
				}
				c.state = StateConnected
				c.holder = ""
				return true
			})
		})
	}, nil
}

func (c *Controller) acquireLease(ctx context.Context, leaseHolder string) error {
	current, ok, err := c.leases.AcquireLease(ctx, LeaseName, leaseHolder, c.leaseTTL)
	if err != nil {
		return fmt.Errorf("failed to take reconcile lease: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: held by %s", domainErrors.ErrBusy, current)
	}
	return nil
}

// renewLease extends the lease every third of its ttl and drops it once the
// returned stop is called. A failed renewal is retried on the next beat; the
// ttl still ends a holder that died.
func (c *Controller) renewLease(leaseHolder string) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(c.leaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_, _, _ = c.leases.AcquireLease(context.Background(), LeaseName, leaseHolder, c.leaseTTL)
			}
		}
	}()
	return func() {
		close(done)
		<-finished
		_ = c.leases.ReleaseLease(context.Background(), LeaseName, leaseHolder)
	}
}

// Subscribe registers fn to be called after every state change. Listeners run
// outside the controller lock, on the goroutine that caused the change.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Controller) transition(apply func() bool) {
	c.mu.Lock()
	if !apply() {
		c.mu.Unlock()
		return
	}
	state := c.state
	c.mu.Unlock()
	c.notify(state)
}

func (c *Controller) notify(state State) {
	c.mu.Lock()
	listeners := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}
