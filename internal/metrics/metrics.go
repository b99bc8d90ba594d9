// Package metrics holds the Prometheus collectors exported by the MamIRC
// daemons on their ops endpoint.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Connector
	EventsTotal          *prometheus.CounterVec
	ArchiveCommits       prometheus.Counter
	ArchiveBatchSize     prometheus.Observer
	ArchiveCommitSeconds prometheus.Observer
	ArchiveQueueDepth    prometheus.Gauge
	IRCConnections       prometheus.Gauge
	SubscriberAttaches   prometheus.Counter
	SubscriberDrops      prometheus.Counter
	AuthFailures         prometheus.Counter
	CommandsTotal        *prometheus.CounterVec

	// Processor
	EventsApplied     *prometheus.CounterVec
	SequenceGaps      prometheus.Counter
	DuplicateEvents   prometheus.Counter
	ReconnectAttempts prometheus.Counter
	Sessions          prometheus.Gauge
	WindowLines       prometheus.Counter

	// Processor message store
	StorageWriteSeconds  prometheus.Observer
	StorageReadSeconds   prometheus.Observer
	StorageCommitSeconds prometheus.Observer
	StorageBytes         *prometheus.CounterVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "mamirc_connector_events_total", Help: "Events emitted by the connector"}, []string{"type"})
		ArchiveCommits = promauto.NewCounter(prometheus.CounterOpts{Name: "mamirc_archive_commits_total", Help: "Archive transactions committed"})
		ArchiveBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{Name: "mamirc_archive_batch_events", Help: "Events per archive transaction", Buckets: prometheus.ExponentialBuckets(1, 4, 7)})
		ArchiveCommitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "mamirc_archive_commit_seconds", Help: "Archive transaction duration seconds", Buckets: prometheus.DefBuckets})
		ArchiveQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{Name: "mamirc_archive_queue_depth", Help: "Events waiting to be archived"})
		IRCConnections = promauto.NewGauge(prometheus.GaugeOpts{Name: "mamirc_connector_irc_connections", Help: "Live IRC server connections"})
		SubscriberAttaches = promauto.NewCounter(prometheus.CounterOpts{Name: "mamirc_connector_attaches_total", Help: "Processor attaches accepted"})
		SubscriberDrops = promauto.NewCounter(prometheus.CounterOpts{Name: "mamirc_connector_subscriber_drops_total", Help: "Processors detached because their queue overflowed"})
		AuthFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "mamirc_connector_auth_failures_total", Help: "Rejected processor handshakes"})
		CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "mamirc_connector_commands_total", Help: "Processor commands received"}, []string{"command"})

		EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{Name: "mamirc_processor_events_applied_total", Help: "Events applied to session state"}, []string{"mode"})
		SequenceGaps = promauto.NewCounter(prometheus.CounterOpts{Name: "mamirc_processor_sequence_gaps_total", Help: "Live events that skipped sequence numbers"})
		DuplicateEvents = promauto.NewCounter(prometheus.CounterOpts{Name: "mamirc_processor_duplicate_events_total", Help: "Live events dropped as already applied"})
		ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "mamirc_processor_reconnect_attempts_total", Help: "Reconnect attempts issued"})
		Sessions = promauto.NewGauge(prometheus.GaugeOpts{Name: "mamirc_processor_sessions", Help: "Live IRC sessions tracked by the processor"})
		WindowLines = promauto.NewCounter(prometheus.CounterOpts{Name: "mamirc_processor_window_lines_total", Help: "Lines appended to window logs"})

		StorageWriteSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "mamirc_storage_write_seconds", Help: "Message store write duration seconds", Buckets: prometheus.DefBuckets})
		StorageReadSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "mamirc_storage_read_seconds", Help: "Message store read duration seconds", Buckets: prometheus.DefBuckets})
		StorageCommitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "mamirc_storage_commit_seconds", Help: "Message store batch commit duration seconds", Buckets: prometheus.DefBuckets})
		StorageBytes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "mamirc_storage_bytes_total", Help: "Bytes moved through the message store"}, []string{"op"})
	})
}

// Archive adapts the archive collectors to the archiver's Metrics hook.
type Archive struct{}

// ObserveCommit records one committed batch.
func (Archive) ObserveCommit(events int, elapsed time.Duration) {
	Init()
	ArchiveCommits.Inc()
	ArchiveBatchSize.Observe(float64(events))
	ArchiveCommitSeconds.Observe(elapsed.Seconds())
}

// SetQueueDepth records the archiver backlog.
func (Archive) SetQueueDepth(n int) {
	Init()
	ArchiveQueueDepth.Set(float64(n))
}

// Storage adapts the storage collectors to the pebble store's MetricsHook.
type Storage struct{}

func (Storage) ObserveWrite(elapsed time.Duration, bytes int) {
	Init()
	StorageWriteSeconds.Observe(elapsed.Seconds())
	StorageBytes.WithLabelValues("write").Add(float64(bytes))
}

func (Storage) ObserveRead(elapsed time.Duration, bytes int) {
	Init()
	StorageReadSeconds.Observe(elapsed.Seconds())
	StorageBytes.WithLabelValues("read").Add(float64(bytes))
}

func (Storage) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	Init()
	StorageCommitSeconds.Observe(elapsed.Seconds())
	StorageBytes.WithLabelValues("commit").Add(float64(bytes))
}

// CountEvent records an emitted event by type name.
func CountEvent(typ string) {
	Init()
	EventsTotal.WithLabelValues(typ).Inc()
}

// CountCommand records a processor command by verb.
func CountCommand(verb string) {
	Init()
	CommandsTotal.WithLabelValues(verb).Inc()
}

// CountApplied records an event applied in the given mode.
func CountApplied(mode string) {
	Init()
	EventsApplied.WithLabelValues(mode).Inc()
}

// CountReconnect records a reconnect attempt issued by the scheduler.
func CountReconnect() {
	Init()
	ReconnectAttempts.Inc()
}

// CountSequence records a live event that was a duplicate or skipped ahead.
func CountSequence(duplicate bool) {
	Init()
	if duplicate {
		DuplicateEvents.Inc()
		return
	}
	SequenceGaps.Inc()
}

// SetSessions records the number of tracked sessions.
func SetSessions(n int) {
	Init()
	Sessions.Set(float64(n))
}

// AddWindowLines records lines appended to window logs.
func AddWindowLines(n int) {
	Init()
	WindowLines.Add(float64(n))
}
