package errors

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// Wrap wraps an error with additional context while preserving the chain.
// If err is nil, Wrap returns nil.
// If err is already an *Error, code, category, and tags are preserved.
// Context errors map to CodeTimeout / CodeCanceled; everything else
// becomes CodeInternal.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var serr *Error
	if errors.As(err, &serr) {
		wrapped := &Error{
			code:      serr.code,
			category:  serr.category,
			message:   message,
			cause:     err,
			metadata:  serr.Metadata(),
			retryable: serr.retryable,
			stack:     serr.stack,
			agent:     serr.agent,
			task:      serr.task,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(CodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(CodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(CodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapCode wraps an error under a specific error code.
func WrapCode(err error, code Code, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsError extracts an *Error from the chain, or nil.
func AsError(err error) *Error {
	var serr *Error
	if errors.As(err, &serr) {
		return serr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code Code) bool {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category Category) bool {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable. Non-structured errors are
// not retryable.
func IsRetryable(err error) bool {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Retryable()
	}
	return false
}

// GetCode extracts the error code from an error, or "" if it is not
// a structured error.
func GetCode(err error) Code {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.code
	}
	return ""
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}

// Join combines multiple errors into a single error using errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// RecoverPanic converts a recovered panic value into an Error carrying the
// goroutine stack. Returns nil when recovered is nil so it can be called
// unconditionally from a deferred function.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(CodeAgentPanic, message,
		WithStack(debug.Stack()),
		WithMeta("panic_type", fmt.Sprintf("%T", recovered)))
}
