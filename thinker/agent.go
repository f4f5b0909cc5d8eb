package thinker

import (
	"time"

	"github.com/steerkit/steerkit/task"
)

// AgentFunc is an agent body. It runs in its own goroutine for the length
// of the run and receives the run's execution context.
type AgentFunc func(ctx *Context) error

// ResultHandler processes one completed task record. Handlers registered
// through RegisterResultProcessor are called serially, in arrival order,
// from the polling goroutine.
type ResultHandler func(ctx *Context, res *task.Result) error

// Agent is one registered member of a run.
type Agent struct {
	// Name identifies the agent in logs and fault reports. Unique within
	// a controller.
	Name string

	// Critical marks an agent whose exit ends the run: whenever it
	// returns, errors, or panics, the termination flag is set.
	Critical bool

	// Run is the agent body.
	Run AgentFunc
}

// agentOptions collects per-registration settings.
type agentOptions struct {
	critical bool
	topic    string
	reaction time.Duration
}

func defaultAgentOptions() agentOptions {
	return agentOptions{
		critical: true,
		topic:    task.DefaultTopic,
	}
}

// AgentOption customizes one agent registration.
type AgentOption func(*agentOptions)

// NonCritical registers an agent whose exit does not end the run. Agents
// are critical by default.
func NonCritical() AgentOption {
	return func(o *agentOptions) {
		o.critical = false
	}
}

// WithTopic sets the result topic a result-processing agent polls.
// Ignored for plain agents.
func WithTopic(topic string) AgentOption {
	return func(o *agentOptions) {
		o.topic = topic
	}
}

// WithReaction overrides the controller's reaction time for one
// result-processing agent. Ignored for plain agents.
func WithReaction(d time.Duration) AgentOption {
	return func(o *agentOptions) {
		o.reaction = d
	}
}
