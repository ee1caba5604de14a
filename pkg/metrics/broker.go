package metrics

import "github.com/prometheus/client_golang/prometheus"

// Primary side.
var (
	RecordsAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_records_appended_total",
		Help: "Total number of records appended to the primary log",
	})

	BytesAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_bytes_appended_total",
		Help: "Total bytes (header included) appended to the primary log",
	})

	SegmentRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_segment_rotations_total",
		Help: "Total number of segment rotations on the primary",
	})

	CurrentSerial = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logship_current_serial",
		Help: "Serial of the segment currently open for appends",
	})

	SegmentsCleaned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_segments_cleaned_total",
		Help: "Finalized segments removed by retention cleanup",
	}, []string{"result"}) // deleted, failed

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logship_active_sessions",
		Help: "Replication connections currently open on the primary",
	})

	PullsServed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_pulls_served_total",
		Help: "Pull requests answered by the primary",
	}, []string{"reply"}) // push, setPos, logNotExists

	PushBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "logship_push_bytes",
		Help:    "Size of push batches sent to replicas",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	})

	AuthFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_auth_failures_total",
		Help: "Connections rejected with authFailed",
	})

	SessionsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_sessions_expired_total",
		Help: "Connections closed by the liveness sweep",
	})
)

// Replica and relay side.
var (
	ReplicaBytesApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_replica_bytes_applied_total",
		Help: "Bytes written into local mirror segments",
	})

	ReplicaReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_replica_reconnects_total",
		Help: "Reconnect cycles started by the replica",
	})

	ReplicaPosition = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logship_replica_position",
		Help: "Durable replica cursor",
	}, []string{"field"}) // serial, offset

	RelayRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_relay_records_total",
		Help: "Records dispatched by the relay",
	})

	RelaySegmentsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_relay_segments_consumed_total",
		Help: "Mirror segments fully consumed and deleted by the relay",
	})
)
