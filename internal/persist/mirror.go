package persist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"rollcall/internal/core"
)

// MirrorMetrics observes mirror writes.
type MirrorMetrics interface {
	ObserveMirrorWrite(ctx context.Context, success bool, duration time.Duration)
}

type noopMirrorMetrics struct{}

func (noopMirrorMetrics) ObserveMirrorWrite(context.Context, bool, time.Duration) {}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithMirrorLogger sets the logger used for write failures.
func WithMirrorLogger(logger core.Logger) MirrorOption {
	return func(m *Mirror) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMirrorMetrics sets the write metrics sink.
func WithMirrorMetrics(metrics MirrorMetrics) MirrorOption {
	return func(m *Mirror) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithWhitelist restricts the buckets the mirror writes.
func WithWhitelist(whitelist Whitelist) MirrorOption {
	return func(m *Mirror) {
		m.whitelist = whitelist.Normalize()
	}
}

// WithWriteTimeout bounds each background write.
func WithWriteTimeout(d time.Duration) MirrorOption {
	return func(m *Mirror) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// Mirror writes the store to a backend after commits. Notifications coalesce:
// a single background writer saves the latest snapshot, so a burst of commits
// costs at most one write in flight plus one pending. Failures are logged and
// counted, never returned to the committing caller.
type Mirror struct {
	backend   Backend
	source    Snapshotter
	whitelist Whitelist
	logger    core.Logger
	metrics   MirrorMetrics
	timeout   time.Duration

	writeMu sync.Mutex
	pending chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once

	writes   atomic.Uint64
	failures atomic.Uint64
}

// NewMirror starts the background writer.
func NewMirror(backend Backend, source Snapshotter, opts ...MirrorOption) *Mirror {
	m := &Mirror{
		backend:   backend,
		source:    source,
		whitelist: DefaultWhitelist(),
		logger:    discardLogger{},
		metrics:   noopMirrorMetrics{},
		timeout:   10 * time.Second,
		pending:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.loop()
	return m
}

// Notify schedules a write. It matches core.CommitHook and never blocks.
func (m *Mirror) Notify(_ context.Context, _ string) {
	select {
	case m.pending <- struct{}{}:
	default:
	}
}

func (m *Mirror) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.pending:
			m.write()
		case <-m.stop:
			return
		}
	}
}

func (m *Mirror) write() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	_ = m.Flush(ctx)
}

// Flush writes the current snapshot synchronously.
func (m *Mirror) Flush(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	started := time.Now()
	err := Save(ctx, m.backend, m.source, m.whitelist)
	m.metrics.ObserveMirrorWrite(ctx, err == nil, time.Since(started))
	if err != nil {
		m.failures.Add(1)
		m.logger.Error("persistence mirror write failed", "buckets", m.whitelist.String(), "error", err)
		return err
	}
	m.writes.Add(1)
	m.logger.Debug("persistence mirror wrote snapshot", "buckets", m.whitelist.String(), "duration", time.Since(started))
	return nil
}

// Close stops the writer and performs a final flush. It waits for the writer
// to exit or ctx to end, whichever is first.
func (m *Mirror) Close(ctx context.Context) error {
	var err error
	m.once.Do(func() {
		close(m.stop)
		select {
		case <-m.done:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
		err = m.Flush(ctx)
	})
	return err
}

// Writes reports the number of successful writes.
func (m *Mirror) Writes() uint64 { return m.writes.Load() }

// Failures reports the number of failed writes.
func (m *Mirror) Failures() uint64 { return m.failures.Load() }

// Whitelist returns the buckets the mirror writes.
func (m *Mirror) Whitelist() Whitelist { return m.whitelist }

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
