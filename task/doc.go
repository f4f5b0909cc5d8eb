// Package task defines the record that travels between agents and execution
// services: the method to run, its inputs, the outcome, and the timestamps
// that describe the round trip.
//
// # Lifecycle
//
// A Result is created on the client side with New, which assigns a task ID
// and records the creation time. The execution side marks the record as it
// moves: MarkInputReceived when the task is pulled off the queue,
// MarkComputeStarted when the method begins, then SetResult or SetFailure
// when it finishes. The client marks the record received when it polls it
// back, at which point TotalTime reports the full round trip.
//
// # Serialization
//
// Records cross the wire as JSON envelopes. With SerializationJSON the
// payload fields (Args, Kwargs, Value) travel inline and must be JSON
// encodable. With SerializationGob the payloads are gob-encoded and carried
// as hex strings, which preserves Go types that JSON flattens: ints stay
// ints, named structs stay structs. Concrete types stored inside interface
// values must be registered with gob.Register by the caller; the package
// registers []any, map[string]any and time.Time itself.
package task
