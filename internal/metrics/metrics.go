package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransactionsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zenux_transactions_confirmed_total",
		Help: "Transactions the server confirmed.",
	})
	TransactionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zenux_transactions_failed_total",
		Help: "Transactions that reached the failed state.",
	})
	ValidationRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zenux_validation_rejections_total",
		Help: "Drafts the policy engine declined.",
	})
	DispatchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zenux_dispatch_retries_total",
		Help: "Dispatch attempts beyond the first.",
	})
	RelayBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zenux_relay_broadcasts_total",
		Help: "Envelopes fanned out by the relay.",
	})
	RelayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zenux_relay_connections",
		Help: "Currently connected relay sockets.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
