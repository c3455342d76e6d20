package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var promotions = promauto.NewCounter(prometheus.CounterOpts{
	Name: "beachwatch_headless_promotions_total",
	Help: "Pages re-fetched with the headless browser after the plain HTTP probe.",
})
