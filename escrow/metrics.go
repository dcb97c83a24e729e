package escrow

import (
	"github.com/prometheus/client_golang/prometheus"
)

var _bountyOpsMtc = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "escrow_bounty_ops_total",
	Help: "Escrow engine entry point calls by operation and result kind.",
}, []string{"op", "result"})

func init() {
	prometheus.MustRegister(_bountyOpsMtc)
}
