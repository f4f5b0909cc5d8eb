package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/steerkit/steerkit/errors"
)

// DefaultTopic is the result topic used when a task does not name one.
const DefaultTopic = "default"

// Serialization identifies how payload fields are encoded for transport.
type Serialization string

const (
	// SerializationJSON carries payloads inline as JSON values.
	SerializationJSON Serialization = "json"

	// SerializationGob carries payloads as hex-encoded gob blobs.
	SerializationGob Serialization = "gob"
)

// Valid returns true if the serialization is a known value.
func (s Serialization) Valid() bool {
	switch s {
	case SerializationJSON, SerializationGob:
		return true
	default:
		return false
	}
}

// FailureInfo describes why a task failed.
type FailureInfo struct {
	// Message is the error text.
	Message string `json:"message"`

	// Stack is the stack trace at the failure point, when one was captured.
	Stack string `json:"stack,omitempty"`
}

// Result is the envelope for one work item as it moves between a client and
// an execution service. The same record carries the request out and the
// outcome back.
type Result struct {
	// Identity & Routing
	TaskID string `json:"task_id"` // Unique identifier, assigned at creation
	Method string `json:"method"`  // Name of the method to invoke
	Topic  string `json:"topic"`   // Result queue the completed record returns on

	// Payload
	Args   []any          `json:"args,omitempty"`   // Positional inputs
	Kwargs map[string]any `json:"kwargs,omitempty"` // Keyword inputs
	Value  any            `json:"value,omitempty"`  // Method output, set by the execution side

	// Outcome
	Success bool         `json:"success"`           // True once SetResult has run
	Failure *FailureInfo `json:"failure,omitempty"` // Populated by SetFailure

	// Transport Control
	Serialization Serialization  `json:"serialization"`       // Payload encoding, json or gob
	KeepInputs    bool           `json:"keep_inputs"`         // False strips inputs before the result is routed back
	TaskInfo      map[string]any `json:"task_info,omitempty"` // Caller metadata, passed through untouched

	// Timestamps
	CreatedAt         time.Time  `json:"created_at"`
	InputReceivedAt   *time.Time `json:"input_received_at,omitempty"`   // Execution side pulled the task
	ComputeStartedAt  *time.Time `json:"compute_started_at,omitempty"`  // Method began executing
	ResultCompletedAt *time.Time `json:"result_completed_at,omitempty"` // Method finished
	ResultReceivedAt  *time.Time `json:"result_received_at,omitempty"`  // Client polled the record back

	// Runtime is how long the method itself ran.
	Runtime time.Duration `json:"runtime_ns,omitempty"`

	// Raw payloads, populated during gob encoding. Hex-encoded gob blobs
	// standing in for Args, Kwargs and Value on the wire.
	RawArgs   string `json:"raw_args,omitempty"`
	RawKwargs string `json:"raw_kwargs,omitempty"`
	RawValue  string `json:"raw_value,omitempty"`
}

// Option customizes a new task record.
type Option func(*Result)

// WithKwargs sets keyword inputs for the method.
func WithKwargs(kwargs map[string]any) Option {
	return func(r *Result) {
		r.Kwargs = kwargs
	}
}

// WithTopic routes the completed record to the named result topic.
func WithTopic(topic string) Option {
	return func(r *Result) {
		r.Topic = topic
	}
}

// WithTaskInfo attaches caller metadata that travels with the record.
func WithTaskInfo(info map[string]any) Option {
	return func(r *Result) {
		r.TaskInfo = info
	}
}

// WithSerialization selects the payload encoding.
func WithSerialization(s Serialization) Option {
	return func(r *Result) {
		r.Serialization = s
	}
}

// WithoutInputs drops Args and Kwargs from the record once the result is
// computed, for inputs too large to round-trip.
func WithoutInputs() Option {
	return func(r *Result) {
		r.KeepInputs = false
	}
}

// New creates a work-item record for a method invocation.
func New(method string, args []any, opts ...Option) *Result {
	r := &Result{
		TaskID:        uuid.NewString(),
		Method:        method,
		Topic:         DefaultTopic,
		Args:          args,
		Serialization: SerializationJSON,
		KeepInputs:    true,
		CreatedAt:     time.Now(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// MarkInputReceived records that the execution side pulled the task.
func (r *Result) MarkInputReceived() {
	now := time.Now()
	r.InputReceivedAt = &now
}

// MarkComputeStarted records that the method began executing.
func (r *Result) MarkComputeStarted() {
	now := time.Now()
	r.ComputeStartedAt = &now
}

// MarkResultReceived records that the client polled the record back.
func (r *Result) MarkResultReceived() {
	now := time.Now()
	r.ResultReceivedAt = &now
}

// SetResult records a successful outcome and how long the method ran.
func (r *Result) SetResult(value any, runtime time.Duration) {
	now := time.Now()
	r.Value = value
	r.Success = true
	r.Failure = nil
	r.Runtime = runtime
	r.ResultCompletedAt = &now
}

// SetFailure records a failed outcome. The stack trace is included when the
// error chain carries one.
func (r *Result) SetFailure(err error) {
	now := time.Now()
	r.Value = nil
	r.Success = false

	fail := &FailureInfo{Message: err.Error()}
	if serr := errors.AsError(err); serr != nil && len(serr.Stack()) > 0 {
		fail.Stack = string(serr.Stack())
	}
	r.Failure = fail
	r.ResultCompletedAt = &now
}

// TotalTime reports the full round trip, creation to receipt. The second
// return is false until the record has been marked received.
func (r *Result) TotalTime() (time.Duration, bool) {
	if r.ResultReceivedAt == nil {
		return 0, false
	}
	return r.ResultReceivedAt.Sub(r.CreatedAt), true
}

// Clone returns a deep copy of the record. Slices, maps and timestamp
// pointers are duplicated; payload values themselves are shared.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}

	clone := *r

	if r.Args != nil {
		clone.Args = make([]any, len(r.Args))
		copy(clone.Args, r.Args)
	}

	if r.Kwargs != nil {
		clone.Kwargs = make(map[string]any, len(r.Kwargs))
		for k, v := range r.Kwargs {
			clone.Kwargs[k] = v
		}
	}

	if r.TaskInfo != nil {
		clone.TaskInfo = make(map[string]any, len(r.TaskInfo))
		for k, v := range r.TaskInfo {
			clone.TaskInfo[k] = v
		}
	}

	if r.Failure != nil {
		fail := *r.Failure
		clone.Failure = &fail
	}

	clone.InputReceivedAt = cloneTime(r.InputReceivedAt)
	clone.ComputeStartedAt = cloneTime(r.ComputeStartedAt)
	clone.ResultCompletedAt = cloneTime(r.ResultCompletedAt)
	clone.ResultReceivedAt = cloneTime(r.ResultReceivedAt)

	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// StripInputs clears the inputs from the record. The execution side calls
// this before routing a result whose KeepInputs is false.
func (r *Result) StripInputs() {
	r.Args = nil
	r.Kwargs = nil
	r.RawArgs = ""
	r.RawKwargs = ""
}

// Validate checks that the record is well formed.
func (r *Result) Validate() error {
	if r.TaskID == "" {
		return errors.InvalidTask("task ID is required")
	}
	if r.Method == "" {
		return errors.InvalidTask("method is required")
	}
	if r.Topic == "" {
		return errors.InvalidTask("topic is required")
	}
	if !r.Serialization.Valid() {
		return errors.InvalidTask(fmt.Sprintf("unknown serialization %q", r.Serialization))
	}
	return nil
}
