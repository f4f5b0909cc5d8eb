package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/steerkit/steerkit/errors"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// Exporter receives recorded events (required).
	Exporter Exporter

	// FlushInterval between periodic exporter flushes.
	// Default: 5 seconds
	FlushInterval time.Duration
}

// Validate checks the configuration.
func (c *RecorderConfig) Validate() error {
	if c.Exporter == nil {
		return errors.Config("telemetry recorder requires an exporter")
	}
	return nil
}

// DefaultRecorderConfig returns configuration with sensible defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		FlushInterval: 5 * time.Second,
	}
}

// Recorder forwards run events to an exporter and flushes it on a ticker.
// A Recorder is safe for concurrent use; Record works before Start, so a
// controller can emit events even when nobody started the flush loop.
type Recorder struct {
	exporter Exporter
	interval time.Duration

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRecorder creates a recorder around the configured exporter.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultRecorderConfig().FlushInterval
	}

	return &Recorder{
		exporter: cfg.Exporter,
		interval: interval,
	}, nil
}

// Start begins flushing the exporter at the configured interval.
func (r *Recorder) Start() error {
	if r.running.Swap(true) {
		return ErrAlreadyStarted
	}

	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.run()
	return nil
}

// run is the periodic flush loop.
func (r *Recorder) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.exporter.Flush()
		}
	}
}

// Stop halts periodic flushing and performs a final flush.
func (r *Recorder) Stop() error {
	if !r.running.Swap(false) {
		return ErrNotStarted
	}
	close(r.stopCh)
	<-r.doneCh
	return r.exporter.Flush()
}

// Record stamps the event time if unset and forwards it to the exporter.
func (r *Recorder) Record(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.exporter.Record(ev)
}

// Emit builds an event from its parts and records it.
func (r *Recorder) Emit(kind Kind, controller, agent, detail string) {
	r.Record(Event{
		Kind:       kind,
		Controller: controller,
		Agent:      agent,
		Detail:     detail,
	})
}

// Close stops the recorder if it is running and closes the exporter.
func (r *Recorder) Close() error {
	if r.running.Load() {
		if err := r.Stop(); err != nil {
			return err
		}
	}
	return r.exporter.Close()
}
