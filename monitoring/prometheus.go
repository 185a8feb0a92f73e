package monitoring

import (
	"net/http"

	"memdev/logx"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OOMStage labels which allocation point inside the growth path failed.
type OOMStage string

var (
	OOMAppend  OOMStage = "append"
	OOMResize  OOMStage = "resize"
	OOMReserve OOMStage = "reserve"
)

type devPromMetrics struct {
	deviceUpUnixSeconds prometheus.Gauge
	readOpCount         prometheus.Counter
	writeOpCount        prometheus.Counter
	readBytes           prometheus.Histogram
	writeBytes          prometheus.Histogram
	blocksAllocated     prometheus.Gauge
	bytesMaterialized   prometheus.Gauge
	oomCount            *prometheus.CounterVec
	rpcRequestCount     *prometheus.CounterVec
	openHandles         prometheus.Gauge
	panicCount          prometheus.Counter
}

func newDevPromMetrics() *devPromMetrics {
	return &devPromMetrics{
		deviceUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "memdev_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the device process",
			},
		),
		readOpCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "memdev_read_op_count",
				Help: "The total number of read operations served",
			},
		),
		writeOpCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "memdev_write_op_count",
				Help: "The total number of write operations served",
			},
		),
		readBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "memdev_read_bytes",
				Help:    "Bytes transferred per read operation",
				Buckets: prometheus.ExponentialBuckets(64, 2, 10),
			},
		),
		writeBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "memdev_write_bytes",
				Help:    "Bytes transferred per write operation",
				Buckets: prometheus.ExponentialBuckets(64, 2, 10),
			},
		),
		blocksAllocated: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "memdev_blocks_allocated",
				Help: "The current number of block slots held by the store",
			},
		),
		bytesMaterialized: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "memdev_bytes_materialized",
				Help: "The total bytes of zero-filled block storage",
			},
		),
		oomCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memdev_oom_count",
				Help: "The total number of allocation budget failures",
			},
			[]string{"stage"},
		),
		rpcRequestCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memdev_rpc_request_count",
				Help: "The total number of JSON-RPC requests by method",
			},
			[]string{"method"},
		),
		openHandles: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "memdev_open_handles",
				Help: "The current number of open device handles",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "memdev_panic_count",
				Help: "The total number of recovered panics",
			},
		),
	}
}

var devMetrics *devPromMetrics

// InitMetrics initializes metrics for the device process but does not expose
// them yet. Callers that never init (library use, tests) get no-op recording.
func InitMetrics() {
	devMetrics = newDevPromMetrics()
	devMetrics.deviceUpUnixSeconds.SetToCurrentTime()
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func RecordRead(bytes int) {
	if devMetrics == nil {
		return
	}
	devMetrics.readOpCount.Inc()
	devMetrics.readBytes.Observe(float64(bytes))
}

func RecordWrite(bytes int) {
	if devMetrics == nil {
		return
	}
	devMetrics.writeOpCount.Inc()
	devMetrics.writeBytes.Observe(float64(bytes))
}

func SetBlocksAllocated(blocks int) {
	if devMetrics == nil {
		return
	}
	devMetrics.blocksAllocated.Set(float64(blocks))
}

func SetBytesMaterialized(bytes uint64) {
	if devMetrics == nil {
		return
	}
	devMetrics.bytesMaterialized.Set(float64(bytes))
}

func RecordOOM(stage OOMStage) {
	if devMetrics == nil {
		return
	}
	devMetrics.oomCount.With(prometheus.Labels{
		"stage": string(stage),
	}).Inc()
}

func RecordRPCRequest(method string) {
	if devMetrics == nil {
		return
	}
	devMetrics.rpcRequestCount.With(prometheus.Labels{
		"method": method,
	}).Inc()
}

func SetOpenHandles(handles int) {
	if devMetrics == nil {
		return
	}
	devMetrics.openHandles.Set(float64(handles))
}

func IncreasePanicCount() {
	if devMetrics == nil {
		return
	}
	devMetrics.panicCount.Inc()
}
