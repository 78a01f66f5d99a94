package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/donorhub/donorhub/internal/shared"
)

const defaultSinkTimeout = 3 * time.Second

// Drop reasons reported on the dropped counter.
const (
	DropInvalid   = "invalid"
	DropNoSink    = "no_sink"
	DropSinkError = "sink_error"
)

// Sink persists audit entries.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// Metrics counts written and dropped audit entries.
type Metrics struct {
	written prometheus.Counter
	dropped *prometheus.CounterVec
}

// NewMetrics registers audit collectors on registerer, or the default
// registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	written := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "donorhub_audit_written_total",
		Help: "Audit entries handed to the sink successfully.",
	})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "donorhub_audit_dropped_total",
		Help: "Audit entries dropped without retry, by reason.",
	}, []string{"reason"})
	registerer.MustRegister(written, dropped)
	return &Metrics{written: written, dropped: dropped}
}

func (m *Metrics) recordWritten() {
	if m != nil {
		m.written.Inc()
	}
}

func (m *Metrics) recordDropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

// LoggerOptions configures a Logger.
type LoggerOptions struct {
	Clock   shared.Clock
	Logger  *slog.Logger
	Metrics *Metrics
	// Timeout bounds each sink call. Defaults to three seconds.
	Timeout time.Duration
	// Detach runs each sink call on its own goroutine so Log returns before
	// the write. Wait drains calls still in flight.
	Detach bool
}

// Logger appends entries to the audit journal on a fire-and-forget basis.
// Each entry is attempted at most once; failures are counted and traced at
// debug level but never reach the caller.
type Logger struct {
	sink    Sink
	clock   shared.Clock
	logger  *slog.Logger
	metrics *Metrics
	timeout time.Duration
	detach  bool

	inflight sync.WaitGroup
}

// NewLogger constructs a Logger writing to sink.
func NewLogger(sink Sink, opts LoggerOptions) *Logger {
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSinkTimeout
	}
	return &Logger{
		sink:    sink,
		clock:   opts.Clock,
		logger:  opts.Logger.With(slog.String("component", "audit")),
		metrics: opts.Metrics,
		timeout: opts.Timeout,
		detach:  opts.Detach,
	}
}

// Log records action performed by actor. It never fails the calling
// operation and ignores caller cancellation so that an entry for a committed
// mutation is still attempted.
func (l *Logger) Log(ctx context.Context, action string, actor shared.Actor, details string) {
	if l == nil {
		return
	}
	action = strings.TrimSpace(action)
	if action == "" {
		l.metrics.recordDropped(DropInvalid)
		l.logger.Debug("audit entry dropped", slog.String("reason", DropInvalid))
		return
	}
	if l.sink == nil {
		l.metrics.recordDropped(DropNoSink)
		l.logger.Debug("audit entry dropped", slog.String("reason", DropNoSink), slog.String("action", action))
		return
	}
	entry := Entry{
		ID:         uuid.NewString(),
		Action:     action,
		UserID:     actor.ID,
		UserName:   actor.DisplayName(),
		UserAvatar: actor.Avatar,
		Details:    details,
		Timestamp:  l.clock.Now(),
	}

	sinkCtx := context.WithoutCancel(ctx)
	if !l.detach {
		l.deliver(sinkCtx, entry)
		return
	}
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		l.deliver(sinkCtx, entry)
	}()
}

// Wait blocks until every detached sink call has returned.
func (l *Logger) Wait() {
	if l != nil {
		l.inflight.Wait()
	}
}

func (l *Logger) deliver(ctx context.Context, entry Entry) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.appendSafely(ctx, entry); err != nil {
		l.metrics.recordDropped(DropSinkError)
		l.logger.Debug("audit entry dropped",
			slog.String("reason", DropSinkError),
			slog.String("action", entry.Action),
			slog.Any("error", err),
		)
		return
	}
	l.metrics.recordWritten()
}

func (l *Logger) appendSafely(ctx context.Context, entry Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("audit: sink panicked")
		}
	}()
	return l.sink.Append(ctx, entry)
}
