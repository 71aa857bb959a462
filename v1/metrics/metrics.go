package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// IssueCounter tracks coupon issuance attempts by outcome.
	IssueCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_coupon_issue_total",
		Help: "Total number of coupon issuance attempts by outcome",
	}, []string{"outcome"})
	// StockCounter tracks stock mutations by direction.
	StockCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_stock_ops_total",
		Help: "Total number of stock decrements and increments",
	}, []string{"op"})
	// WalletCounter tracks balance mutations by kind.
	WalletCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_wallet_ops_total",
		Help: "Total number of wallet charges and uses",
	}, []string{"kind"})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers the go-claim core metrics on the provided
// registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(IssueCounter, StockCounter, WalletCounter)
}
