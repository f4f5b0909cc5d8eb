package thinker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/steerkit/steerkit/errors"
	"github.com/steerkit/steerkit/logging"
	"github.com/steerkit/steerkit/queue"
	"github.com/steerkit/steerkit/resources"
	"github.com/steerkit/steerkit/telemetry"
)

// DefaultReactionTime is the bounded wait polling agents use between
// checks of the termination flag.
const DefaultReactionTime = 1 * time.Second

// Fault is one captured agent failure.
type Fault struct {
	// Agent is the registered name of the agent that failed.
	Agent string

	// Err is the error it returned or the panic it was recovered from.
	Err error
}

// Controller supervises the agents of one steering run.
type Controller struct {
	name      string
	log       *logging.Logger
	queues    queue.Client
	resources *resources.Counter
	telemetry *telemetry.Recorder
	reaction  time.Duration
	flag      *Flag

	mu      sync.Mutex
	agents  []Agent
	running bool
	faults  []Fault
}

// Option customizes a Controller.
type Option func(*Controller)

// WithName names the controller; logs and telemetry carry it.
// Default: "thinker".
func WithName(name string) Option {
	return func(c *Controller) {
		c.name = name
	}
}

// WithLogger supplies the root logger. Default: logging.New().
func WithLogger(log *logging.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithResources attaches a slot counter shared by every agent through
// its Context.
func WithResources(counter *resources.Counter) Option {
	return func(c *Controller) {
		c.resources = counter
	}
}

// WithReactionTime sets the default bounded wait for polling agents.
// Default: DefaultReactionTime.
func WithReactionTime(d time.Duration) Option {
	return func(c *Controller) {
		c.reaction = d
	}
}

// WithTelemetry attaches a recorder that receives run lifecycle events.
func WithTelemetry(rec *telemetry.Recorder) Option {
	return func(c *Controller) {
		c.telemetry = rec
	}
}

// New creates a controller around the given queue client.
func New(queues queue.Client, opts ...Option) *Controller {
	c := &Controller{
		name:     "thinker",
		queues:   queues,
		reaction: DefaultReactionTime,
		flag:     NewFlag(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.New()
	}
	if c.reaction <= 0 {
		c.reaction = DefaultReactionTime
	}
	return c
}

// Name returns the controller name.
func (c *Controller) Name() string {
	return c.name
}

// RegisterAgent adds an agent to the run. Agents launch in registration
// order. Names must be unique and non-empty; registering after Run has
// started is an error.
func (c *Controller) RegisterAgent(name string, fn AgentFunc, opts ...AgentOption) error {
	if name == "" {
		return errors.Config("agent name must not be empty")
	}
	if fn == nil {
		return errors.Config("agent " + name + " has no body")
	}

	o := defaultAgentOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.Config("agent " + name + " registered after Run started")
	}
	for _, a := range c.agents {
		if a.Name == name {
			return errors.Config("agent " + name + " already registered")
		}
	}
	c.agents = append(c.agents, Agent{
		Name:     name,
		Critical: o.critical,
		Run:      fn,
	})
	return nil
}

// RegisterResultProcessor wraps a result handler in a polling agent. The
// poller waits up to the reaction time for a record on the topic,
// dispatches it to the handler in the polling goroutine, and re-checks
// the termination flag between polls. A poll timeout just re-checks the
// flag; any other queue error, and any handler error, ends the loop as
// the agent's fault.
func (c *Controller) RegisterResultProcessor(name string, fn ResultHandler, opts ...AgentOption) error {
	if fn == nil {
		return errors.Config("result processor " + name + " has no handler")
	}

	o := defaultAgentOptions()
	for _, opt := range opts {
		opt(&o)
	}
	topic := o.topic
	reaction := o.reaction
	if reaction <= 0 {
		reaction = c.reaction
	}

	poller := func(ctx *Context) error {
		for !ctx.Stopping() {
			res, err := ctx.Queues().GetResult(context.Background(), topic, reaction)
			if err != nil {
				if errors.Is(err, errors.CodeTimeout) {
					continue
				}
				return err
			}
			if err := fn(ctx, res); err != nil {
				return err
			}
		}
		return nil
	}

	return c.RegisterAgent(name, poller, opts...)
}

// Agents returns the registered agents in registration order.
func (c *Controller) Agents() []Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Agent, len(c.agents))
	copy(out, c.agents)
	return out
}

// Faults returns the agent failures captured so far, in completion order.
func (c *Controller) Faults() []Fault {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Fault, len(c.faults))
	copy(out, c.faults)
	return out
}

// Done returns a channel closed when the termination flag is set.
func (c *Controller) Done() <-chan struct{} {
	return c.flag.Done()
}

// Stopping reports whether the termination flag is set.
func (c *Controller) Stopping() bool {
	return c.flag.IsSet()
}

// RequestStop sets the termination flag.
func (c *Controller) RequestStop() {
	c.flag.Set()
}

// SendKillSignal forwards the shutdown sentinel through the queue client
// so execution-side workers wind down too.
func (c *Controller) SendKillSignal(ctx context.Context) error {
	if err := c.queues.SendKillSignal(ctx); err != nil {
		return err
	}
	c.emit(telemetry.KindKillSignal, "", "")
	return nil
}

// Run launches every registered agent and waits for all of them to
// complete. Faults are captured and logged, never re-raised, and never
// cancel sibling agents. Cancelling ctx sets the termination flag so
// agents wind down on their own; they are never killed. Run may be
// called at most once; later calls are no-ops.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.log.WithComponent(c.name).Warn("Run already called; ignoring")
		return
	}
	c.running = true
	agents := make([]Agent, len(c.agents))
	copy(agents, c.agents)
	c.mu.Unlock()

	log := c.log.WithComponent(c.name)
	log.Info(fmt.Sprintf("started. Process id: %d", os.Getpid()))
	c.emit(telemetry.KindRunStarted, "", "")

	if len(agents) == 0 {
		log.Info("no agents registered")
		log.Info("completed")
		c.emit(telemetry.KindRunCompleted, "", "no agents registered")
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}

	// Translate ctx cancellation into the termination flag. The watcher
	// exits with Run so a long-lived ctx does not leak it.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			c.flag.Set()
		case <-stopWatch:
		}
	}()

	var wg sync.WaitGroup
	for _, agent := range agents {
		wg.Add(1)
		go func(a Agent) {
			defer wg.Done()
			c.launch(a, log)
		}(agent)
	}
	log.Info(fmt.Sprintf("Launched all %d agents", len(agents)))

	wg.Wait()
	log.Info("completed")
	c.emit(telemetry.KindRunCompleted, "", "")
}

// launch runs one agent to completion in the calling goroutine.
func (c *Controller) launch(a Agent, sup *logging.Logger) {
	alog := c.log.WithComponent(c.name + "." + a.Name)
	actx := &Context{
		controller: c.name,
		agent:      a.Name,
		log:        alog,
		queues:     c.queues,
		resources:  c.resources,
		flag:       c.flag,
	}

	alog.Info(a.Name + " started")
	c.emit(telemetry.KindAgentStarted, a.Name, "")

	err := c.invoke(a, actx)

	// Finalizer: runs on every exit path, before the fault surfaces.
	if a.Critical {
		c.flag.Set()
	}
	alog.Info(a.Name + " completed")

	if err != nil {
		c.recordFault(a.Name, err)
		var fields map[string]interface{}
		if serr := errors.AsError(err); serr != nil && len(serr.Stack()) > 0 {
			fields = map[string]interface{}{"stack": string(serr.Stack())}
		}
		sup.Warn("agent "+a.Name+" failed: "+err.Error(), fields)
		c.emit(telemetry.KindAgentFailed, a.Name, err.Error())
		return
	}
	sup.Info("agent " + a.Name + " completed without problems")
	c.emit(telemetry.KindAgentCompleted, a.Name, "")
}

// invoke calls the agent body, converting a panic into a structured
// error with the goroutine stack attached.
func (c *Controller) invoke(a Agent, actx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
	}()
	return a.Run(actx)
}

func (c *Controller) recordFault(agent string, err error) {
	c.mu.Lock()
	c.faults = append(c.faults, Fault{Agent: agent, Err: err})
	c.mu.Unlock()
}

// emit forwards a run event when a telemetry recorder is attached.
func (c *Controller) emit(kind telemetry.Kind, agent, detail string) {
	if c.telemetry == nil {
		return
	}
	c.telemetry.Emit(kind, c.name, agent, detail)
}
