// Package observe provides application-wide observability primitives for
// Botnek: OpenTelemetry metrics, tracing, context-scoped structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Botnek metrics.
const meterName = "github.com/MrWong99/botnek"

// Status values used with the "status" attribute.
const (
	StatusOK       = "ok"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Playback ---

	// PlaybackRequests counts requests that left the queue. Use with attributes:
	//   attribute.String("guild_id", ...), attribute.String("status", ...)
	PlaybackRequests metric.Int64Counter

	// PlaybackStartDuration tracks the time from enqueue until the player
	// started the track.
	PlaybackStartDuration metric.Float64Histogram

	// QueueDepth tracks the number of pending requests across all guilds.
	QueueDepth metric.Int64UpDownCounter

	// --- Voice lifecycle ---

	// VoiceRejoins counts rejoin attempts after a non-kick disconnect.
	VoiceRejoins metric.Int64Counter

	// VoiceDestroys counts connection teardowns. Use with attribute:
	//   attribute.String("reason", ...)
	VoiceDestroys metric.Int64Counter

	// ActiveConnections tracks the number of live voice connections.
	ActiveConnections metric.Int64UpDownCounter

	// --- Media ---

	// MediaFetchErrors counts failures to open a track's audio. Use with
	// attribute:
	//   attribute.String("source", ...)
	MediaFetchErrors metric.Int64Counter

	// CircuitTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("name", ...), attribute.String("state", ...)
	CircuitTransitions metric.Int64Counter

	// --- Commands ---

	// Commands counts handled chat commands. Use with attributes:
	//   attribute.String("command", ...), attribute.String("status", ...)
	Commands metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// startBuckets defines histogram bucket boundaries (in seconds) for the
// enqueue-to-audio latency, which includes joining a voice channel and
// spinning up a decoder.
var startBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PlaybackRequests, err = m.Int64Counter("botnek.playback.requests",
		metric.WithDescription("Total playback requests by guild and outcome."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackStartDuration, err = m.Float64Histogram("botnek.playback.start.duration",
		metric.WithDescription("Time from enqueue until audio started."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(startBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("botnek.playback.queue.depth",
		metric.WithDescription("Number of pending playback requests."),
	); err != nil {
		return nil, err
	}

	if met.VoiceRejoins, err = m.Int64Counter("botnek.voice.rejoins",
		metric.WithDescription("Total voice rejoin attempts."),
	); err != nil {
		return nil, err
	}
	if met.VoiceDestroys, err = m.Int64Counter("botnek.voice.destroys",
		metric.WithDescription("Total voice connection teardowns by reason."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConnections, err = m.Int64UpDownCounter("botnek.voice.active_connections",
		metric.WithDescription("Number of live voice connections."),
	); err != nil {
		return nil, err
	}

	if met.MediaFetchErrors, err = m.Int64Counter("botnek.media.fetch.errors",
		metric.WithDescription("Total failures to open track audio by source."),
	); err != nil {
		return nil, err
	}
	if met.CircuitTransitions, err = m.Int64Counter("botnek.circuit.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	if met.Commands, err = m.Int64Counter("botnek.commands",
		metric.WithDescription("Total chat commands by command and status."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("botnek.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordPlaybackRequest records the outcome of one dequeued request.
func (m *Metrics) RecordPlaybackRequest(ctx context.Context, guildID, status string) {
	m.PlaybackRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("guild_id", guildID),
			attribute.String("status", status),
		),
	)
}

// RecordPlaybackStart records how long a request waited before it played.
func (m *Metrics) RecordPlaybackStart(ctx context.Context, guildID string, waited time.Duration) {
	m.PlaybackStartDuration.Record(ctx, waited.Seconds(),
		metric.WithAttributes(attribute.String("guild_id", guildID)),
	)
}

// RecordVoiceDestroy records a connection teardown.
func (m *Metrics) RecordVoiceDestroy(ctx context.Context, reason string) {
	m.VoiceDestroys.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordMediaFetchError records a failure to open a track's audio.
func (m *Metrics) RecordMediaFetchError(ctx context.Context, source string) {
	m.MediaFetchErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordCircuitTransition records a circuit breaker state change.
func (m *Metrics) RecordCircuitTransition(ctx context.Context, name, state string) {
	m.CircuitTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("name", name),
			attribute.String("state", state),
		),
	)
}

// RecordCommand records a handled chat command.
func (m *Metrics) RecordCommand(ctx context.Context, command, status string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}
