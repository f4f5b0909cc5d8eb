// Package errors provides the structured error taxonomy for steerkit. It
// defines stable codes and categories so callers can make retry and
// shutdown decisions without matching on message text.
//
// # Error Categories
//
// Errors fall into four categories:
//
//   - Transient: temporary failures where retry may succeed (poll timeouts,
//     broker connectivity)
//   - Permanent: failures where retry will not help (kill signal, closed
//     queue, invalid record, undeclared topic)
//   - Resource: slot exhaustion
//   - Internal: unexpected errors, including recovered agent panics
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.CodeTimeout, "no result within reaction time")
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "polling topic simulate")
//
// Check codes through the chain, or against a sentinel:
//
//	if errors.Is(err, errors.CodeTimeout) { ... }
//	if stderrors.Is(err, queue.ErrTimeout) { ... }
//
// Recover an agent panic into a structured fault with its stack:
//
//	defer func() {
//	    if e := errors.RecoverPanic(recover()); e != nil {
//	        fault = e
//	    }
//	}()
//
// # JSON Serialization
//
// Errors marshal to JSON for embedding in task failure records and
// telemetry events:
//
//	data, _ := json.Marshal(err)
package errors
