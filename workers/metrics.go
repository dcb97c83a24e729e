package workers

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	_transfersMtc = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_transfers_total",
		Help: "Outbox transfer delivery attempts by kind and result.",
	}, []string{"kind", "result"})
	_dispatchRunsMtc = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_dispatch_runs_total",
		Help: "Dispatcher runs by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(_transfersMtc)
	prometheus.MustRegister(_dispatchRunsMtc)
}
