package backup

import "github.com/prometheus/client_golang/prometheus"

var backupsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "legacyvault_backup_emails_total",
	Help: "Backup emails by result.",
}, []string{"result"})

func init() {
	prometheus.MustRegister(backupsSent)
}
