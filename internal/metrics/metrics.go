// Package metrics exposes the daemon's operational counters in
// Prometheus format. Readings themselves are never retained here;
// only cycle and delivery health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Send outcome label values
const (
	OutcomeOK           = "ok"
	OutcomeHTTPError    = "http_error"
	OutcomeConnectError = "connect_error"
)

var (
	Cycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udsd_cycles_total",
		Help: "Completed poll and send cycles per module.",
	}, []string{"module"})

	ReadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udsd_read_failures_total",
		Help: "Device reads and UPS queries that failed.",
	}, []string{"module"})

	ConnectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udsd_connect_failures_total",
		Help: "Failed connection attempts per target.",
	}, []string{"module", "target"})

	DevicesReporting = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "udsd_devices_reporting",
		Help: "Devices that reported successfully in the last cycle.",
	}, []string{"module"})

	SendAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udsd_send_attempts_total",
		Help: "Push attempts per endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	EndpointRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "udsd_endpoint_requests_total",
		Help: "Requests served by the passive data endpoint.",
	}, []string{"route", "code"})
)
