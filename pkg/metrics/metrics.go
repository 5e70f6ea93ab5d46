package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Commands = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amh_commands_total",
		Help: "Total shutter commands written to the serial link.",
	})
	DeviceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amh_device_errors_total",
		Help: "Error answers reported by the device, by device error number.",
	}, []string{"code"})
	ExchangeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "amh_exchange_duration_seconds",
		Help:    "Duration of a command/answer round trip on the serial link.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
	PropertyChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "property_changes_total",
		Help: "Committed property changes by device and property.",
	}, []string{"device", "property"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrSerialPurge  = "serial_purge"
	ErrSerialWrite  = "serial_write"
	ErrSerialRead   = "serial_read"
	ErrBadAnswer    = "bad_answer"
	ErrMQTTPublish  = "mqtt_publish"
	ErrHTTPResponse = "http_response"
)

func IncError(where string) { Errors.WithLabelValues(where).Inc() }

func IncDeviceError(errNo int) {
	DeviceErrors.WithLabelValues(strconv.Itoa(errNo)).Inc()
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler { return promhttp.Handler() }

// PropertyListener counts committed property changes.
type PropertyListener struct{}

func (PropertyListener) OnPropertyChanged(device, name, _ string) {
	PropertyChanges.WithLabelValues(device, name).Inc()
}
