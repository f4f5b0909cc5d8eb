package errors

// Category classifies errors by their nature and retry semantics.
type Category string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: queue poll timeouts, broker connectivity blips.
	CategoryTransient Category = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: malformed task records, undeclared topics, closed queues.
	CategoryPermanent Category = "permanent"

	// CategoryResource indicates slot or capacity exhaustion.
	// Examples: no computing slots left in a pool.
	CategoryResource Category = "resource"

	// CategoryInternal indicates unexpected errors, bugs, or panics.
	CategoryInternal Category = "internal"
)

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c Category) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// Code identifies specific error types within categories.
type Code string

// Error codes for the failure scenarios of a steering run.
const (
	// Transient errors
	CodeTimeout     Code = "TIMEOUT"     // Bounded wait expired without a message
	CodeConnection  Code = "CONNECTION"  // Broker connectivity failure
	CodeUnavailable Code = "UNAVAILABLE" // Backing service temporarily unavailable

	// Permanent errors
	CodeKillSignal    Code = "KILL_SIGNAL"   // Shutdown sentinel received from a client
	CodeClosed        Code = "CLOSED"        // Operation on a closed queue or store
	CodeInvalidTask   Code = "INVALID_TASK"  // Malformed or incomplete task record
	CodeUnknownTopic  Code = "UNKNOWN_TOPIC" // Topic was not declared at construction
	CodeSerialization Code = "SERIALIZATION" // Payload could not be encoded or decoded
	CodeNotFound      Code = "NOT_FOUND"     // Record does not exist
	CodeCanceled      Code = "CANCELED"      // Context canceled before completion
	CodeConfig        Code = "CONFIG"        // Invalid or unreadable configuration

	// Resource errors
	CodeExhausted   Code = "EXHAUSTED"    // Slot request could not be fulfilled
	CodeUnknownPool Code = "UNKNOWN_POOL" // Pool was not declared at construction

	// Internal errors
	CodeInternal   Code = "INTERNAL"    // Unexpected internal error
	CodeAgentPanic Code = "AGENT_PANIC" // Agent goroutine recovered from a panic
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c Code) DefaultCategory() Category {
	switch c {
	case CodeTimeout, CodeConnection, CodeUnavailable:
		return CategoryTransient

	case CodeKillSignal, CodeClosed, CodeInvalidTask, CodeUnknownTopic,
		CodeSerialization, CodeNotFound, CodeCanceled, CodeConfig, CodeUnknownPool:
		return CategoryPermanent

	case CodeExhausted:
		return CategoryResource

	case CodeInternal, CodeAgentPanic:
		return CategoryInternal

	default:
		return CategoryInternal
	}
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[Code]string{
	CodeTimeout:       "timed out waiting",
	CodeConnection:    "connection failure",
	CodeUnavailable:   "service temporarily unavailable",
	CodeKillSignal:    "kill signal received",
	CodeClosed:        "already closed",
	CodeInvalidTask:   "invalid task record",
	CodeUnknownTopic:  "topic not declared",
	CodeSerialization: "serialization failure",
	CodeNotFound:      "record not found",
	CodeCanceled:      "operation canceled",
	CodeConfig:        "invalid configuration",
	CodeExhausted:     "slots exhausted",
	CodeUnknownPool:   "pool not declared",
	CodeInternal:      "internal error",
	CodeAgentPanic:    "agent panicked",
}

// Description returns a human-readable description for the error code.
func (c Code) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
