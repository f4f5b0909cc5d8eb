// Package thinker runs the steering side of a computational campaign: a
// controller supervising named agents, each in its own goroutine, that
// decide what work to submit and how to react to completed results.
//
// # Agents
//
// Agents are registered explicitly before the run starts. Each agent is a
// function receiving an execution Context that carries a scoped logger,
// the queue client, an optional resource counter, and views of the run's
// termination flag. Agents are critical by default: when a critical agent
// exits for any reason, the flag is set and cooperating agents wind down.
//
// # Result Processors
//
// RegisterResultProcessor wraps a per-record handler in a polling agent.
// The poller waits on the result queue in bounded slices (the reaction
// time, one second unless overridden) and re-checks the flag between
// polls, so a stop request is honored within one reaction interval while
// no completed record is ever dropped. Records are dispatched to the
// handler one at a time in arrival order.
//
// # Faults
//
// An agent error or panic becomes a captured Fault: logged with its stack,
// available through Faults after the run, never re-raised, and never the
// cause of sibling cancellation. Siblings always run to their own
// completion, subject only to the termination flag.
//
// # Usage
//
//	client, server := queue.NewMemoryQueues()
//	ctrl := thinker.New(client, thinker.WithName("opt"))
//	ctrl.RegisterAgent("dispatcher", dispatch, thinker.NonCritical())
//	ctrl.RegisterResultProcessor("collector", collect)
//	ctrl.Run(context.Background())
//
// Run returns once every agent has completed. Cancelling the context sets
// the termination flag; agents are never killed.
package thinker
