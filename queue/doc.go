// Package queue connects agents to execution services through task and
// result queues.
//
// # Overview
//
// A Client submits method invocations and polls completed records back; a
// Server pulls submitted tasks and routes results to per-topic result
// queues. The two sides share a wire format (the task package's JSON
// envelope) so any client backend can face any server backend of the same
// kind.
//
// # Available Backends
//
//   - Memory: linked client/server pair over buffered channels, for tests
//     and single-process runs
//   - Redis: list-backed queues (RPUSH/BLPOP), for persistent multi-process
//     deployments
//   - NATS: subject-based queues with a load-balancing queue group on the
//     task side
//
// # Topics
//
// Result queues are split by topic so independent consumers can poll for
// their own records without seeing anyone else's. Topics are declared when
// the backend is built; sending to or polling an undeclared topic is an
// error. Every backend declares the "default" topic unless told otherwise.
//
// # Usage
//
// Submit and poll:
//
//	taskID, _ := client.SendInputs(ctx, "simulate", []any{"ethanol"},
//	    queue.WithTopic("screening"))
//	res, err := client.GetResult(ctx, "screening", time.Second)
//
// Serve tasks:
//
//	for {
//	    t, err := server.GetTask(ctx, time.Second)
//	    if errors.Is(err, queue.ErrKillSignal) {
//	        return
//	    }
//	    ...
//	    server.SendResult(ctx, t)
//	}
//
// # Shutdown
//
// SendKillSignal delivers a sentinel through the task queue. Servers
// surface it as ErrKillSignal from GetTask, one sentinel per server
// process.
//
// # NATS Delivery
//
// The NATS backend uses core NATS subjects, which do not retain messages.
// Build the client (which subscribes to its result topics) before any
// server publishes results, and keep one client per result topic set.
package queue
