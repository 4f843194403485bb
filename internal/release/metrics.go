package release

import "github.com/prometheus/client_golang/prometheus"

var (
	releasesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "legacyvault_release_total",
		Help: "Completed releases by trigger (inactivity or manual).",
	}, []string{"trigger"})

	deliveryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "legacyvault_delivery_failures_total",
		Help: "Trustee emails that could not be delivered during a release.",
	})
)

func init() {
	prometheus.MustRegister(releasesTotal, deliveryFailures)
}
