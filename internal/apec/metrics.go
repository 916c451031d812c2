package apec

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalRequests tracks the number of HTTP requests dispatched.
	TotalRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apec_requests_total",
		Help: "The total number of HTTP requests sent to the APEC API.",
	})
	// TotalRequestErrors tracks requests that failed after the retry budget.
	TotalRequestErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apec_request_errors_total",
		Help: "The total number of APEC API requests that ultimately failed.",
	})
	// TotalRetries tracks individual retry attempts.
	TotalRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apec_request_retries_total",
		Help: "The total number of retry attempts against the APEC API.",
	})
	// TotalRateLimitHits tracks HTTP 429 responses.
	TotalRateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apec_rate_limit_hits_total",
		Help: "The total number of times the APEC API rate limited us.",
	})
)
