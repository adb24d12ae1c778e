package envelope

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the provider's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	keyOperations   *prometheus.CounterVec
	keyServiceTime  *prometheus.HistogramVec
	keyServiceError *prometheus.CounterVec
}

// NewMetrics registers the envelope collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		keyOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "envelope_key_operations_total",
				Help: "Total number of envelope key operations",
			},
			[]string{"operation", "result"}, // operation: "encrypt" or "decrypt"
		),
		keyServiceTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "envelope_key_service_duration_seconds",
				Help:    "KMS round trip duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		keyServiceError: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "envelope_key_service_errors_total",
				Help: "Total number of failed KMS calls by error code",
			},
			[]string{"operation", "code"},
		),
	}
}

// Result labels for envelope_key_operations_total.
const (
	resultOK            = "ok"
	resultConfigError   = "config_error"
	resultFormatError   = "format_error"
	resultKeyServiceErr = "key_service_error"
	resultInternalError = "internal_error"
)

func (m *Metrics) recordOperation(op, result string) {
	if m == nil {
		return
	}
	m.keyOperations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) observeKeyService(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.keyServiceTime.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		code := "transport"
		var kerr *KeyServiceError
		if errors.As(err, &kerr) && kerr.Code != "" {
			code = kerr.Code
		}
		m.keyServiceError.WithLabelValues(op, code).Inc()
	}
}
