package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carlocorradini/sea-streamer/stream"
)

// Metric name constants following prometheus naming conventions.
// Format: seastreamer_{component}_{metric}_{unit}
const (
	MetricMessagesSentTotal     = "seastreamer_messages_sent_total"
	MetricMessagesReceivedTotal = "seastreamer_messages_received_total"
	MetricDecodeErrorsTotal     = "seastreamer_decode_errors_total"
	MetricBufferDepth           = "seastreamer_shard_buffer_depth"
	MetricFlushDuration         = "seastreamer_flush_duration_seconds"
	MetricRebalancesTotal       = "seastreamer_group_rebalances_total"
	MetricCommitsTotal          = "seastreamer_offset_commits_total"
)

// Label name constants.
const (
	LabelBackend = "backend"
	LabelStream  = "stream"
	LabelShard   = "shard"
	LabelGroup   = "group"
)

// StreamerMetrics tracks producer, consumer, and coordinator activity. A nil
// receiver is a no-op so instrumentation can stay optional.
type StreamerMetrics struct {
	messagesSentTotal     *prometheus.CounterVec
	messagesReceivedTotal *prometheus.CounterVec
	decodeErrorsTotal     *prometheus.CounterVec
	bufferDepth           *prometheus.GaugeVec
	flushDuration         *prometheus.HistogramVec
	rebalancesTotal       *prometheus.CounterVec
	commitsTotal          *prometheus.CounterVec
}

// NewStreamerMetrics initializes streamer metrics with the collector.
func NewStreamerMetrics(collector *Collector) *StreamerMetrics {
	return &StreamerMetrics{
		messagesSentTotal: collector.RegisterCounter(
			MetricMessagesSentTotal,
			"Total number of messages sent",
			[]string{LabelBackend, LabelStream, LabelShard},
		),
		messagesReceivedTotal: collector.RegisterCounter(
			MetricMessagesReceivedTotal,
			"Total number of messages received",
			[]string{LabelBackend, LabelStream, LabelShard},
		),
		decodeErrorsTotal: collector.RegisterCounter(
			MetricDecodeErrorsTotal,
			"Total number of lines skipped because they failed to decode",
			[]string{LabelBackend},
		),
		bufferDepth: collector.RegisterGauge(
			MetricBufferDepth,
			"Retained messages per shard buffer",
			[]string{LabelStream, LabelShard},
		),
		flushDuration: collector.RegisterHistogram(
			MetricFlushDuration,
			"Duration of producer flush operations in seconds",
			[]string{LabelBackend},
			prometheus.DefBuckets,
		),
		rebalancesTotal: collector.RegisterCounter(
			MetricRebalancesTotal,
			"Total number of consumer group rebalances",
			[]string{LabelGroup},
		),
		commitsTotal: collector.RegisterCounter(
			MetricCommitsTotal,
			"Total number of committed offsets",
			[]string{LabelBackend, LabelGroup},
		),
	}
}

// RecordSend records one sent message.
func (m *StreamerMetrics) RecordSend(backend string, key stream.StreamKey, shard stream.ShardID) {
	if m == nil {
		return
	}
	m.messagesSentTotal.WithLabelValues(backend, string(key), formatShard(shard)).Inc()
}

// RecordReceive records one delivered message.
func (m *StreamerMetrics) RecordReceive(backend string, key stream.StreamKey, shard stream.ShardID) {
	if m == nil {
		return
	}
	m.messagesReceivedTotal.WithLabelValues(backend, string(key), formatShard(shard)).Inc()
}

// RecordDecodeError records one skipped undecodable line.
func (m *StreamerMetrics) RecordDecodeError(backend string) {
	if m == nil {
		return
	}
	m.decodeErrorsTotal.WithLabelValues(backend).Inc()
}

// SetBufferDepth reports the current retained window size of a shard.
func (m *StreamerMetrics) SetBufferDepth(key stream.StreamKey, shard stream.ShardID, depth int) {
	if m == nil {
		return
	}
	m.bufferDepth.WithLabelValues(string(key), formatShard(shard)).Set(float64(depth))
}

// ObserveFlush records the duration of one flush.
func (m *StreamerMetrics) ObserveFlush(backend string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.flushDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// RecordRebalance records one group rebalance.
func (m *StreamerMetrics) RecordRebalance(group string) {
	if m == nil {
		return
	}
	m.rebalancesTotal.WithLabelValues(group).Inc()
}

// RecordCommit records one committed offset.
func (m *StreamerMetrics) RecordCommit(backend, group string) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(backend, group).Inc()
}

func formatShard(shard stream.ShardID) string {
	return strconv.FormatUint(uint64(shard), 10)
}
