package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Device Flow Metrics
	DeviceCodesTotal                *prometheus.CounterVec
	DeviceCodesAuthorizedTotal      prometheus.Counter
	DeviceCodeValidationTotal       *prometheus.CounterVec
	DeviceCodesActive               prometheus.Gauge
	DeviceCodesPendingAuthorization prometheus.Gauge

	// Token Metrics
	TokensIssuedTotal       *prometheus.CounterVec
	TokensRefreshedTotal    *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokenValidationTotal    *prometheus.CounterVec
	TokenGenerationDuration prometheus.Histogram

	// Authentication Metrics
	AuthLoginTotal  *prometheus.CounterVec
	AuthLogoutTotal prometheus.Counter

	// Credit Ledger Metrics
	CreditsDeductedTotal     *prometheus.CounterVec
	CreditsCreditedTotal     prometheus.Counter
	InsufficientCreditsTotal prometheus.Counter
	LedgerWriteFailuresTotal prometheus.Counter
	LedgerTransactionsCount  prometheus.Gauge
	CreditsOutstanding       prometheus.Gauge
	RegisteredUsersCount     prometheus.Gauge

	// Upstream Gateway Metrics
	UpstreamCallsTotal   *prometheus.CounterVec
	UpstreamCallDuration *prometheus.HistogramVec
	StreamsAbortedTotal  prometheus.Counter

	// HTTP Request Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Database Query Metrics
	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag.
// If enabled=true, returns Prometheus-based Metrics.
// If enabled=false, returns NoopMetrics (zero overhead).
// Uses sync.Once to ensure Prometheus metrics are only registered once.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

// initMetrics creates and registers all Prometheus metrics
func initMetrics() *Metrics {
	m := &Metrics{
		// Device Flow Metrics
		DeviceCodesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "device_codes_total",
				Help: "Total number of device codes generated",
			},
			[]string{"result"}, // success, error
		),
		DeviceCodesAuthorizedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "device_codes_authorized_total",
				Help: "Total number of device codes authorized by users",
			},
		),
		DeviceCodeValidationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "device_code_validation_total",
				Help: "Total number of device code consumption attempts",
			},
			[]string{"result"}, // success, expired, invalid, pending, slow_down
		),
		DeviceCodesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "device_codes_active",
				Help: "Current number of active device codes",
			},
		),
		DeviceCodesPendingAuthorization: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "device_codes_pending_authorization",
				Help: "Current number of device codes pending user authorization",
			},
		),

		// Token Metrics
		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{
				"token_kind",
				"grant_type",
			}, // token_kind: access, refresh; grant_type: device_code, refresh_token
		),
		TokensRefreshedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokens_refreshed_total",
				Help: "Total number of token refresh attempts",
			},
			[]string{"result"}, // success, error
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokens_revoked_total",
				Help: "Total number of tokens revoked",
			},
			[]string{"token_kind"},
		),
		TokenValidationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_validation_total",
				Help: "Total number of token validations",
			},
			[]string{"result"}, // valid, invalid, expired
		),
		TokenGenerationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "token_generation_duration_seconds",
				Help:    "Time taken to generate token pairs",
				Buckets: prometheus.DefBuckets,
			},
		),

		// Authentication Metrics
		AuthLoginTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_login_total",
				Help: "Total number of login attempts",
			},
			[]string{"result"}, // success, failure
		),
		AuthLogoutTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "auth_logout_total",
				Help: "Total number of logouts",
			},
		),

		// Credit Ledger Metrics
		CreditsDeductedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credits_deducted_total",
				Help: "Total credits deducted for metered calls",
			},
			[]string{"estimated"}, // true when usage was reconstructed
		),
		CreditsCreditedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credits_credited_total",
				Help: "Total credits granted (bonus, purchase, adjustment)",
			},
		),
		InsufficientCreditsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "insufficient_credits_total",
				Help: "Total requests rejected by the balance pre-check",
			},
		),
		LedgerWriteFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_write_failures_total",
				Help: "Total settlements that could not be persisted",
			},
		),
		LedgerTransactionsCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_transactions_count",
				Help: "Current number of ledger transaction rows",
			},
		),
		CreditsOutstanding: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "credits_outstanding",
				Help: "Sum of all user credit balances",
			},
		),
		RegisteredUsersCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "registered_users_count",
				Help: "Current number of registered users",
			},
		),

		// Upstream Gateway Metrics
		UpstreamCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_calls_total",
				Help: "Total calls forwarded to the upstream provider",
			},
			[]string{"mode", "status"}, // mode: buffered, streamed
		),
		UpstreamCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "upstream_call_duration_seconds",
				Help: "Upstream call latency in seconds",
				Buckets: []float64{
					0.1,
					0.25,
					0.5,
					1.0,
					2.5,
					5.0,
					10.0,
					30.0,
					60.0,
					120.0,
				},
			},
			[]string{"mode"},
		),
		StreamsAbortedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "streams_aborted_total",
				Help: "Total streamed calls the client disconnected from",
			},
		),

		// HTTP Request Metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP request latency in seconds",
				Buckets: []float64{
					0.001,
					0.005,
					0.010,
					0.025,
					0.050,
					0.100,
					0.250,
					0.500,
					1.0,
					2.5,
					5.0,
					10.0,
				},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),

		// Database Query Metrics
		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors during metric collection",
			},
			[]string{"operation"}, // count_users, count_transactions, sum_credits
		),
	}

	return m
}
