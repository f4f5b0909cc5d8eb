package thinker

import (
	"github.com/steerkit/steerkit/logging"
	"github.com/steerkit/steerkit/queue"
	"github.com/steerkit/steerkit/resources"
)

// Context is the execution context handed to every agent goroutine. It
// carries the collaborators an agent body needs and views of the run's
// termination flag. All methods are safe for concurrent use.
type Context struct {
	controller string
	agent      string
	log        *logging.Logger
	queues     queue.Client
	resources  *resources.Counter
	flag       *Flag
}

// Controller returns the owning controller's name.
func (c *Context) Controller() string {
	return c.controller
}

// Agent returns the agent's registered name.
func (c *Context) Agent() string {
	return c.agent
}

// Name returns "<controller>.<agent>".
func (c *Context) Name() string {
	return c.controller + "." + c.agent
}

// Log returns the logger scoped to this agent's component name.
func (c *Context) Log() *logging.Logger {
	return c.log
}

// Queues returns the controller's queue client.
func (c *Context) Queues() queue.Client {
	return c.queues
}

// Resources returns the run's slot counter, or nil when the controller
// was built without one.
func (c *Context) Resources() *resources.Counter {
	return c.resources
}

// Done returns a channel closed when the run is winding down.
func (c *Context) Done() <-chan struct{} {
	return c.flag.Done()
}

// Stopping reports whether the termination flag is set.
func (c *Context) Stopping() bool {
	return c.flag.IsSet()
}

// RequestStop sets the termination flag so cooperating agents wind down.
func (c *Context) RequestStop() {
	c.flag.Set()
}
