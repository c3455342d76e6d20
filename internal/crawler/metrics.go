package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fetchAttempts counts every fetch attempt partitioned by outcome.
	fetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beachwatch_fetch_attempts_total",
		Help: "Fetch attempts partitioned by result (ok, retry, failed).",
	}, []string{"result"})
	// fieldSentinels counts fields that fell back to their selector string.
	fieldSentinels = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beachwatch_field_sentinels_total",
		Help: "Fields that could not be extracted, labeled by field label.",
	}, []string{"label"})
	// sinkWrites counts sink outcomes.
	sinkWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beachwatch_sink_writes_total",
		Help: "Sink writes partitioned by sink and result.",
	}, []string{"sink", "result"})
	// tableRows records the size of the last built table.
	tableRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beachwatch_table_rows",
		Help: "Rows in the most recently built daily table.",
	})
)
