package metrics

import (
	"fmt"
	"net/http"

	"github.com/downfa11-org/logship/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	prometheus.MustRegister(RecordsAppended, BytesAppended, SegmentRotations, CurrentSerial, SegmentsCleaned)
	prometheus.MustRegister(ActiveSessions, PullsServed, PushBytes, AuthFailures, SessionsExpired)
	prometheus.MustRegister(ReplicaBytesApplied, ReplicaReconnects, ReplicaPosition, RelayRecords, RelaySegmentsConsumed)
}

func StartMetricsServer(port int) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", port)
		util.Info("prometheus exporter listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			util.Error("failed to start metrics server: %v", err)
		}
	}()
}

// ObserveAppend updates the primary counters for one appended record.
func ObserveAppend(recordBytes int) {
	RecordsAppended.Inc()
	BytesAppended.Add(float64(recordBytes))
}

// ObservePush records one pull answered with a push batch.
func ObservePush(bytes int64) {
	PullsServed.WithLabelValues("push").Inc()
	PushBytes.Observe(float64(bytes))
}

// SetReplicaPosition publishes the replica's durable cursor.
func SetReplicaPosition(serial uint32, offset int64) {
	ReplicaPosition.WithLabelValues("serial").Set(float64(serial))
	ReplicaPosition.WithLabelValues("offset").Set(float64(offset))
}
