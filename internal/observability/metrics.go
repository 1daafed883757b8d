package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Pool metrics
	PoolsMinted prometheus.Counter
	PoolUsage   *prometheus.GaugeVec
	StuckPools  prometheus.Gauge

	// Buffer metrics
	Appends         prometheus.Counter
	AppendedBytes   prometheus.Counter
	AppendErrors    *prometheus.CounterVec
	ThresholdDrains prometheus.Counter

	// Flush metrics
	Drains        *prometheus.CounterVec
	DrainDuration prometheus.Histogram
	BatchSize     prometheus.Histogram

	// Partition metrics
	PartitionsCreated *prometheus.CounterVec

	// Consumer metrics
	MessagesConsumed   *prometheus.CounterVec
	EventsProcessed    *prometheus.CounterVec
	OffsetCommits      *prometheus.CounterVec
	Rebalances         *prometheus.CounterVec
	RebalanceDuration  *prometheus.HistogramVec
	PartitionsAssigned *prometheus.GaugeVec
	CommitLatency      *prometheus.HistogramVec

	// Archive metrics
	FilesWritten         *prometheus.CounterVec
	StorageWriteDuration *prometheus.HistogramVec
	FileSize             *prometheus.HistogramVec
	StorageErrors        *prometheus.CounterVec

	// Load generator metrics
	EventsProduced  *prometheus.CounterVec
	ProduceDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		PoolsMinted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "poolstore_pools_minted_total",
				Help: "Total number of pool names minted",
			},
		),
		PoolUsage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "poolstore_pool_usage_bytes",
				Help: "Bytes buffered in a pool since its last release",
			},
			[]string{"pool"},
		),
		StuckPools: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "poolstore_stuck_pools",
				Help: "Number of pools whose batch failed to commit",
			},
		),

		Appends: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "poolstore_appends_total",
				Help: "Total number of mutations appended to pools",
			},
		),
		AppendedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "poolstore_appended_bytes_total",
				Help: "Total serialized bytes appended to pools",
			},
		),
		AppendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolstore_append_errors_total",
				Help: "Total number of failed appends",
			},
			[]string{"reason"},
		),
		ThresholdDrains: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "poolstore_threshold_drains_total",
				Help: "Total number of drains triggered by a pool reaching the package size",
			},
		),

		Drains: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolstore_drains_total",
				Help: "Total number of drains by outcome",
			},
			[]string{"status"},
		),
		DrainDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "poolstore_drain_duration_seconds",
				Help:    "Duration of drains including the grace period",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "poolstore_batch_size_mutations",
				Help:    "Number of mutations per drained batch",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),

		PartitionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolstore_partitions_created_total",
				Help: "Total number of partition tables created",
			},
			[]string{"keyword"},
		),

		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		EventsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_processed_total",
				Help: "Total number of events processed",
			},
			[]string{"topic", "status"},
		),
		OffsetCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_offset_commit_total",
				Help: "Total number of offset commits",
			},
			[]string{"topic", "partition", "status"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		RebalanceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_rebalance_duration_seconds",
				Help:    "Duration of consumer group rebalances",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),
		CommitLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_commit_latency_seconds",
				Help:    "Latency of offset commit operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"topic", "partition"},
		),

		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_files_written_total",
				Help: "Total number of stuck batches archived to storage",
			},
			[]string{"backend", "format", "status"},
		),
		StorageWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_write_duration_seconds",
				Help:    "Duration of archive writes including encoding",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_file_size_bytes",
				Help:    "Size of archived files",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"format"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),

		EventsProduced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolstore_loadgen_events_produced_total",
				Help: "Total number of synthetic mutation events sent by the load generator",
			},
			[]string{"topic", "status"},
		),
		ProduceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poolstore_loadgen_produce_duration_seconds",
				Help:    "Duration of a synchronous produce in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		),
	}
}

// IncPoolsMinted increments the minted pools counter.
func (m *Metrics) IncPoolsMinted() {
	m.PoolsMinted.Inc()
}

// SetPoolUsage sets the usage gauge of pool.
func (m *Metrics) SetPoolUsage(pool string, bytes int64) {
	m.PoolUsage.WithLabelValues(pool).Set(float64(bytes))
}

// SetStuckPools sets the stuck pools gauge.
func (m *Metrics) SetStuckPools(count int) {
	m.StuckPools.Set(float64(count))
}

// IncAppends increments the appends counter.
func (m *Metrics) IncAppends() {
	m.Appends.Inc()
}

// AddAppendedBytes adds n to the appended bytes counter.
func (m *Metrics) AddAppendedBytes(n int) {
	m.AppendedBytes.Add(float64(n))
}

// IncAppendErrors increments append errors by reason.
func (m *Metrics) IncAppendErrors(reason string) {
	m.AppendErrors.WithLabelValues(reason).Inc()
}

// IncThresholdDrains increments threshold drains counter.
func (m *Metrics) IncThresholdDrains() {
	m.ThresholdDrains.Inc()
}

// IncDrains increments drains by status.
func (m *Metrics) IncDrains(status string) {
	m.Drains.WithLabelValues(status).Inc()
}

// ObserveDrainDuration observes drain duration.
func (m *Metrics) ObserveDrainDuration(seconds float64) {
	m.DrainDuration.Observe(seconds)
}

// ObserveBatchSize observes the number of mutations in a batch.
func (m *Metrics) ObserveBatchSize(count int) {
	m.BatchSize.Observe(float64(count))
}

// IncPartitionsCreated increments partitions created counter.
func (m *Metrics) IncPartitionsCreated(keyword string) {
	m.PartitionsCreated.WithLabelValues(keyword).Inc()
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncEventsProcessed increments events processed counter.
func (m *Metrics) IncEventsProcessed(topic string, status string) {
	m.EventsProcessed.WithLabelValues(topic, status).Inc()
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// IncOffsetCommits increments offset commits counter.
func (m *Metrics) IncOffsetCommits(topic string, partition int32, status string) {
	m.OffsetCommits.WithLabelValues(topic, fmt.Sprintf("%d", partition), status).Inc()
}

// ObserveRebalanceDuration observes rebalance duration.
func (m *Metrics) ObserveRebalanceDuration(groupID string, duration float64) {
	m.RebalanceDuration.WithLabelValues(groupID).Observe(duration)
}

// ObserveCommitLatency observes commit latency.
func (m *Metrics) ObserveCommitLatency(topic string, partition int32, duration float64) {
	m.CommitLatency.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Observe(duration)
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncFilesWritten increments archived files counter.
func (m *Metrics) IncFilesWritten(backend string, format string, status string) {
	m.FilesWritten.WithLabelValues(backend, format, status).Inc()
}

// ObserveFileSize observes archived file size.
func (m *Metrics) ObserveFileSize(format string, size float64) {
	m.FileSize.WithLabelValues(format).Observe(size)
}

// ObserveStorageWriteDuration observes archive write duration.
func (m *Metrics) ObserveStorageWriteDuration(backend string, duration float64) {
	m.StorageWriteDuration.WithLabelValues(backend).Observe(duration)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// IncEventsProduced increments the load generator's produced events counter.
func (m *Metrics) IncEventsProduced(topic string, status string) {
	m.EventsProduced.WithLabelValues(topic, status).Inc()
}

// ObserveProduceDuration records the duration of one produce.
func (m *Metrics) ObserveProduceDuration(topic string, duration float64) {
	m.ProduceDuration.WithLabelValues(topic).Observe(duration)
}
