package errors

import (
	"encoding/json"
	"fmt"
)

// Error is the structured error used throughout steerkit. It carries a
// stable code, a category for retry decisions, optional metadata, and, for
// recovered panics, the goroutine stack at the point of failure.
type Error struct {
	code      Code
	category  Category
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool // nil means use the category default
	stack     []byte
	agent     string // agent that produced the error, if applicable
	task      string // related task ID, if applicable
}

// Ensure Error implements error and json.Marshaler.
var (
	_ error          = (*Error)(nil)
	_ json.Marshaler = (*Error)(nil)
)

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() Code {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() Category {
	return e.category
}

// Retryable returns whether this error is retryable.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.category.IsRetryable()
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	if e.metadata == nil {
		return nil
	}
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Stack returns the captured goroutine stack, or nil.
func (e *Error) Stack() []byte {
	return e.stack
}

// Agent returns the agent name attached to the error, if any.
func (e *Error) Agent() string {
	return e.agent
}

// Task returns the related task ID, if any.
func (e *Error) Task() string {
	return e.task
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code. This lets
// stdlib errors.Is match any error of a code against a package sentinel,
// regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// errorJSON is the JSON representation of an Error.
type errorJSON struct {
	Code      Code              `json:"code"`
	Category  Category          `json:"category"`
	Message   string            `json:"message"`
	Cause     string            `json:"cause,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Retryable bool              `json:"retryable"`
	Agent     string            `json:"agent,omitempty"`
	Task      string            `json:"task,omitempty"`
	Stack     string            `json:"stack,omitempty"`
}

// MarshalJSON implements json.Marshaler so faults can travel inside task
// records and telemetry events.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:      e.code,
		Category:  e.category,
		Message:   e.message,
		Metadata:  e.metadata,
		Retryable: e.Retryable(),
		Agent:     e.agent,
		Task:      e.task,
		Stack:     string(e.stack),
	}
	if e.cause != nil {
		j.Cause = e.cause.Error()
	}
	return json.Marshal(j)
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCategory overrides the default category.
func WithCategory(cat Category) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithRetryable explicitly sets whether the error is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithMeta adds a metadata key-value pair.
func WithMeta(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// WithStack attaches a captured goroutine stack.
func WithStack(stack []byte) Option {
	return func(e *Error) {
		e.stack = stack
	}
}

// WithAgent tags the error with the agent that produced it.
func WithAgent(name string) Option {
	return func(e *Error) {
		e.agent = name
	}
}

// WithTask tags the error with the related task ID.
func WithTask(id string) Option {
	return func(e *Error) {
		e.task = id
	}
}

// New creates a new Error with the given code and message.
func New(code Code, message string, opts ...Option) *Error {
	e := &Error{
		code:     code,
		category: code.DefaultCategory(),
		message:  message,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Timeout creates a timeout error.
func Timeout(message string, opts ...Option) *Error {
	return New(CodeTimeout, message, opts...)
}

// KillSignal creates a kill-signal error.
func KillSignal(message string, opts ...Option) *Error {
	return New(CodeKillSignal, message, opts...)
}

// Closed creates an already-closed error.
func Closed(message string, opts ...Option) *Error {
	return New(CodeClosed, message, opts...)
}

// NotFound creates a not-found error.
func NotFound(message string, opts ...Option) *Error {
	return New(CodeNotFound, message, opts...)
}

// InvalidTask creates an invalid-task error.
func InvalidTask(message string, opts ...Option) *Error {
	return New(CodeInvalidTask, message, opts...)
}

// Serialization creates a serialization error.
func Serialization(message string, opts ...Option) *Error {
	return New(CodeSerialization, message, opts...)
}

// Config creates a configuration error.
func Config(message string, opts ...Option) *Error {
	return New(CodeConfig, message, opts...)
}

// Exhausted creates a slots-exhausted error.
func Exhausted(message string, opts ...Option) *Error {
	return New(CodeExhausted, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(CodeInternal, message, opts...)
}
