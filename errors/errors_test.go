package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// ============================================================================
// 1. Error creation with different codes/categories
// ============================================================================

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		code         Code
		message      string
		wantCategory Category
	}{
		{"timeout", CodeTimeout, "no result in time", CategoryTransient},
		{"connection", CodeConnection, "broker unreachable", CategoryTransient},
		{"kill_signal", CodeKillSignal, "kill signal received", CategoryPermanent},
		{"closed", CodeClosed, "queue closed", CategoryPermanent},
		{"unknown_topic", CodeUnknownTopic, "topic not declared", CategoryPermanent},
		{"exhausted", CodeExhausted, "no slots left", CategoryResource},
		{"agent_panic", CodeAgentPanic, "index out of range", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message)
			if err.Code() != tt.code {
				t.Errorf("Code() = %v, want %v", err.Code(), tt.code)
			}
			if err.Category() != tt.wantCategory {
				t.Errorf("Category() = %v, want %v", err.Category(), tt.wantCategory)
			}
			if err.Error() != tt.message {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.message)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CodeUnknownTopic, "topic %q not declared", "simulate")
	want := `topic "simulate" not declared`
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

// ============================================================================
// 2. Retryable vs non-retryable errors
// ============================================================================

func TestRetryable(t *testing.T) {
	tests := []struct {
		name      string
		code      Code
		wantRetry bool
	}{
		{"timeout is retryable", CodeTimeout, true},
		{"connection is retryable", CodeConnection, true},
		{"exhausted is retryable", CodeExhausted, true},
		{"kill_signal is not retryable", CodeKillSignal, false},
		{"closed is not retryable", CodeClosed, false},
		{"serialization is not retryable", CodeSerialization, false},
		{"agent_panic is not retryable", CodeAgentPanic, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "test")
			if err.Retryable() != tt.wantRetry {
				t.Errorf("Retryable() = %v, want %v", err.Retryable(), tt.wantRetry)
			}
		})
	}
}

func TestWithRetryableOverride(t *testing.T) {
	err := New(CodeTimeout, "give up", WithRetryable(false))
	if err.Retryable() {
		t.Error("expected error to be non-retryable after override")
	}

	err2 := New(CodeNotFound, "eventually consistent", WithRetryable(true))
	if !err2.Retryable() {
		t.Error("expected error to be retryable after override")
	}
}

// ============================================================================
// 3. Wrapping and the error chain
// ============================================================================

func TestWrapPreservesCode(t *testing.T) {
	inner := New(CodeTimeout, "poll expired", WithAgent("consume"), WithTask("abc"))
	wrapped := Wrap(inner, "reading results")

	if wrapped.Code() != CodeTimeout {
		t.Errorf("Code() = %v, want %v", wrapped.Code(), CodeTimeout)
	}
	if wrapped.Agent() != "consume" {
		t.Errorf("Agent() = %q, want %q", wrapped.Agent(), "consume")
	}
	if wrapped.Task() != "abc" {
		t.Errorf("Task() = %q, want %q", wrapped.Task(), "abc")
	}
	if !errors.Is(wrapped, inner) {
		t.Error("wrapped error should match inner via errors.Is")
	}
	if !strings.Contains(wrapped.Error(), "reading results") {
		t.Errorf("Error() = %q, want context prefix", wrapped.Error())
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "nothing") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapContextErrors(t *testing.T) {
	if got := Wrap(context.DeadlineExceeded, "waiting").Code(); got != CodeTimeout {
		t.Errorf("deadline exceeded mapped to %v, want %v", got, CodeTimeout)
	}
	if got := Wrap(context.Canceled, "waiting").Code(); got != CodeCanceled {
		t.Errorf("canceled mapped to %v, want %v", got, CodeCanceled)
	}
}

func TestWrapUnknownError(t *testing.T) {
	err := Wrap(fmt.Errorf("disk on fire"), "archiving")
	if err.Code() != CodeInternal {
		t.Errorf("Code() = %v, want %v", err.Code(), CodeInternal)
	}
	if Cause(err).Error() != "disk on fire" {
		t.Errorf("Cause() = %v, want the original error", Cause(err))
	}
}

func TestWrapCode(t *testing.T) {
	err := WrapCode(fmt.Errorf("EOF"), CodeSerialization, "decoding record")
	if err.Code() != CodeSerialization {
		t.Errorf("Code() = %v, want %v", err.Code(), CodeSerialization)
	}
	if Cause(err).Error() != "EOF" {
		t.Errorf("Cause() = %v, want EOF", Cause(err))
	}
}

// ============================================================================
// 4. Sentinel matching via errors.Is
// ============================================================================

func TestIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeTimeout, "timed out")
	other := Newf(CodeTimeout, "no result on topic %q after %s", "default", "1s")

	if !errors.Is(other, sentinel) {
		t.Error("two timeout errors should match via errors.Is")
	}
	if errors.Is(New(CodeClosed, "closed"), sentinel) {
		t.Error("closed should not match a timeout sentinel")
	}
}

func TestIsHelpers(t *testing.T) {
	err := Wrap(New(CodeKillSignal, "kill signal received"), "server loop")

	if !Is(err, CodeKillSignal) {
		t.Error("Is should find the code through the chain")
	}
	if Is(err, CodeTimeout) {
		t.Error("Is should not match a different code")
	}
	if !IsCategory(err, CategoryPermanent) {
		t.Error("IsCategory should find permanent")
	}
	if IsRetryable(err) {
		t.Error("kill signal is not retryable")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain errors are not retryable")
	}
	if GetCode(fmt.Errorf("plain")) != "" {
		t.Error("GetCode on a plain error should be empty")
	}
}

// ============================================================================
// 5. Panic recovery
// ============================================================================

func TestRecoverPanic(t *testing.T) {
	tests := []struct {
		name      string
		recovered interface{}
		wantMsg   string
	}{
		{"string panic", "boom", "boom"},
		{"error panic", fmt.Errorf("broken invariant"), "broken invariant"},
		{"value panic", 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RecoverPanic(tt.recovered)
			if err.Code() != CodeAgentPanic {
				t.Errorf("Code() = %v, want %v", err.Code(), CodeAgentPanic)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
			if len(err.Stack()) == 0 {
				t.Error("expected a captured stack")
			}
		})
	}
}

func TestRecoverPanicNil(t *testing.T) {
	if RecoverPanic(nil) != nil {
		t.Error("RecoverPanic(nil) should return nil")
	}
}

func TestRecoverPanicFromDefer(t *testing.T) {
	var fault *Error
	func() {
		defer func() {
			fault = RecoverPanic(recover())
		}()
		panic("agent exploded")
	}()

	if fault == nil {
		t.Fatal("expected a fault from the deferred recovery")
	}
	if fault.Error() != "agent exploded" {
		t.Errorf("Error() = %q, want %q", fault.Error(), "agent exploded")
	}
	if !strings.Contains(string(fault.Stack()), "TestRecoverPanicFromDefer") {
		t.Error("stack should include the panicking frame")
	}
}

// ============================================================================
// 6. JSON form
// ============================================================================

func TestMarshalJSON(t *testing.T) {
	err := New(CodeSerialization, "bad payload",
		WithCause(fmt.Errorf("unexpected token")),
		WithMeta("topic", "simulate"),
		WithAgent("submit"),
		WithTask("task-1"))

	data, jerr := json.Marshal(err)
	if jerr != nil {
		t.Fatalf("Marshal failed: %v", jerr)
	}

	var decoded map[string]interface{}
	if jerr := json.Unmarshal(data, &decoded); jerr != nil {
		t.Fatalf("Unmarshal failed: %v", jerr)
	}

	if decoded["code"] != "SERIALIZATION" {
		t.Errorf("code = %v, want SERIALIZATION", decoded["code"])
	}
	if decoded["cause"] != "unexpected token" {
		t.Errorf("cause = %v, want unexpected token", decoded["cause"])
	}
	if decoded["agent"] != "submit" {
		t.Errorf("agent = %v, want submit", decoded["agent"])
	}
	if decoded["retryable"] != false {
		t.Errorf("retryable = %v, want false", decoded["retryable"])
	}
}

// ============================================================================
// 7. Metadata isolation
// ============================================================================

func TestMetadataCopy(t *testing.T) {
	err := New(CodeInternal, "oops", WithMeta("k", "v"))
	m := err.Metadata()
	m["k"] = "mutated"

	if err.Metadata()["k"] != "v" {
		t.Error("Metadata() must return a copy")
	}
}
