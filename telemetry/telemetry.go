// Package telemetry records controller run events and ships them to an
// exporter. Exporters are deliberately small: a JSON-lines file, a batching
// HTTP poster, and a noop. The Recorder adds timestamping and periodic
// flushing on top of any Exporter.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/steerkit/steerkit/errors"
)

// Common errors.
var (
	ErrAlreadyStarted = errors.Internal("telemetry recorder already started")
	ErrNotStarted     = errors.Internal("telemetry recorder not started")
)

// batchSize is the buffered-event threshold that forces an HTTP flush.
const batchSize = 100

// Kind identifies the lifecycle moment an event records.
type Kind string

// Event kinds emitted during a controller run.
const (
	KindRunStarted     Kind = "run_started"
	KindRunCompleted   Kind = "run_completed"
	KindAgentStarted   Kind = "agent_started"
	KindAgentCompleted Kind = "agent_completed"
	KindAgentFailed    Kind = "agent_failed"
	KindKillSignal     Kind = "kill_signal"
)

// Event is a single run observation.
type Event struct {
	Time       time.Time      `json:"time"`
	Kind       Kind           `json:"kind"`
	Controller string         `json:"controller,omitempty"`
	Agent      string         `json:"agent,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// Exporter is the interface for telemetry exporters.
type Exporter interface {
	// Record accepts a single event. Implementations may buffer.
	Record(ev Event)
	// Flush sends any buffered events.
	Flush() error
	// Close flushes and releases the exporter.
	Close() error
}

// NewExporter creates a new exporter based on protocol. For "file" the
// endpoint is a path; for "http" a URL. An empty protocol means noop.
func NewExporter(protocol, endpoint string) (Exporter, error) {
	switch protocol {
	case "http":
		return NewHTTPExporter(endpoint), nil
	case "file":
		return NewFileExporter(endpoint)
	case "noop", "":
		return NewNoopExporter(), nil
	default:
		return nil, errors.Config("unknown telemetry protocol: " + protocol)
	}
}

// --- HTTP Exporter ---

// HTTPExporter posts batches of events to an HTTP endpoint as a JSON array.
type HTTPExporter struct {
	endpoint string
	client   *http.Client
	buffer   []Event
	mu       sync.Mutex
}

// NewHTTPExporter creates a new HTTP exporter.
func NewHTTPExporter(endpoint string) *HTTPExporter {
	return &HTTPExporter{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		buffer: make([]Event, 0, batchSize),
	}
}

func (e *HTTPExporter) Record(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = append(e.buffer, ev)
	if len(e.buffer) >= batchSize {
		e.flush()
	}
}

func (e *HTTPExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flush()
}

func (e *HTTPExporter) flush() error {
	if len(e.buffer) == 0 {
		return nil
	}

	data, err := json.Marshal(e.buffer)
	if err != nil {
		return errors.Serialization("encoding telemetry batch", errors.WithCause(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "building telemetry request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return errors.New(errors.CodeConnection, "posting telemetry batch", errors.WithCause(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Newf(errors.CodeConnection, "telemetry endpoint returned %d", resp.StatusCode)
	}

	e.buffer = e.buffer[:0]
	return nil
}

func (e *HTTPExporter) Close() error {
	return e.Flush()
}

// --- File Exporter ---

// FileExporter appends events to a JSON-lines file, one object per line.
type FileExporter struct {
	file *os.File
	mu   sync.Mutex
}

// NewFileExporter creates a new file exporter.
func NewFileExporter(path string) (*FileExporter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Config("opening telemetry file "+path, errors.WithCause(err))
	}
	return &FileExporter{file: file}, nil
}

func (e *FileExporter) Record(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.file.Write(data)
	e.file.Write([]byte("\n"))
}

func (e *FileExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Sync()
}

func (e *FileExporter) Close() error {
	e.Flush()
	return e.file.Close()
}

// --- Noop Exporter ---

// NoopExporter discards all events.
type NoopExporter struct{}

// NewNoopExporter creates a new noop exporter.
func NewNoopExporter() *NoopExporter {
	return &NoopExporter{}
}

func (e *NoopExporter) Record(ev Event) {}
func (e *NoopExporter) Flush() error    { return nil }
func (e *NoopExporter) Close() error    { return nil }
