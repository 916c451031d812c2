package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalPagesFetched tracks result pages fetched and committed.
	TotalPagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_fetched_total",
		Help: "The total number of result pages fetched and committed.",
	})
	// TotalAdsNew tracks ads observed for the first time.
	TotalAdsNew = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_ads_new_total",
		Help: "The total number of ads inserted for the first time.",
	})
	// TotalAdsUpdated tracks re-observed ads.
	TotalAdsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_ads_updated_total",
		Help: "The total number of already-known ads refreshed.",
	})
	// TotalAdsSkipped tracks records dropped for invalid identifiers.
	TotalAdsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_ads_skipped_total",
		Help: "The total number of records skipped for missing or non-numeric ids.",
	})
)
