package agent

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a prometheus.Collector tracking per-connection decode
// and dispatch activity: a struct holding prometheus.Desc values plus
// mutex-guarded counters, with Describe/Collect satisfying
// prometheus.Collector directly rather than registering individual
// prometheus.Counter/Gauge objects.
type Metrics struct {
	mu sync.Mutex

	decodesByType     map[uint16]uint64
	decodeErrors      uint64
	unregisteredDrops uint64
	handlerFailures   uint64
	cacheSize         int

	decodesDesc     *prometheus.Desc
	decodeErrDesc   *prometheus.Desc
	unregDesc       *prometheus.Desc
	handlerFailDesc *prometheus.Desc
	cacheSizeDesc   *prometheus.Desc
}

// NewMetrics builds a Metrics collector. labelName/labelValue (e.g.
// "connection", a remote address) are attached as a constant label to
// every series, so several connections can be registered against the
// same prometheus.Registry without collisions.
func NewMetrics(labelName, labelValue string) *Metrics {
	constLabels := prometheus.Labels{labelName: labelValue}
	return &Metrics{
		decodesByType: make(map[uint16]uint64),

		decodesDesc: prometheus.NewDesc(
			"freeciv_agent_packets_decoded_total",
			"Number of packets successfully decoded, by packet type.",
			[]string{"packet_type"}, constLabels,
		),
		decodeErrDesc: prometheus.NewDesc(
			"freeciv_agent_decode_errors_total",
			"Number of packets that failed to decode.",
			nil, constLabels,
		),
		unregDesc: prometheus.NewDesc(
			"freeciv_agent_unregistered_packets_total",
			"Number of frames dropped for an unregistered packet type.",
			nil, constLabels,
		),
		handlerFailDesc: prometheus.NewDesc(
			"freeciv_agent_handler_failures_total",
			"Number of dispatched handlers that returned an error or panicked.",
			nil, constLabels,
		),
		cacheSizeDesc: prometheus.NewDesc(
			"freeciv_agent_delta_cache_entries",
			"Current number of entries in the per-connection delta cache.",
			nil, constLabels,
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(descs chan<- *prometheus.Desc) {
	descs <- m.decodesDesc
	descs <- m.decodeErrDesc
	descs <- m.unregDesc
	descs <- m.handlerFailDesc
	descs <- m.cacheSizeDesc
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(metrics chan<- prometheus.Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for packetType, count := range m.decodesByType {
		metrics <- prometheus.MustNewConstMetric(
			m.decodesDesc, prometheus.CounterValue, float64(count), strconv.FormatUint(uint64(packetType), 10),
		)
	}
	metrics <- prometheus.MustNewConstMetric(m.decodeErrDesc, prometheus.CounterValue, float64(m.decodeErrors))
	metrics <- prometheus.MustNewConstMetric(m.unregDesc, prometheus.CounterValue, float64(m.unregisteredDrops))
	metrics <- prometheus.MustNewConstMetric(m.handlerFailDesc, prometheus.CounterValue, float64(m.handlerFailures))
	metrics <- prometheus.MustNewConstMetric(m.cacheSizeDesc, prometheus.GaugeValue, float64(m.cacheSize))
}

func (m *Metrics) recordDecode(packetType uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decodesByType[packetType]++
}

func (m *Metrics) recordDecodeError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decodeErrors++
}

func (m *Metrics) recordUnregistered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregisteredDrops++
}

func (m *Metrics) recordHandlerFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlerFailures++
}

func (m *Metrics) setCacheSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheSize = n
}

