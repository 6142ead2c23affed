// Package handlers wires the HTTP surface: checkout creation, payment
// verification, balance reads, and the Stripe webhook endpoint.
package handlers

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	stripeapi "github.com/stripe/stripe-go/v82"

	"bursar/internal/ledger"
	"bursar/internal/providers"
	"bursar/internal/reconcile"
	"bursar/pkg/logging"
	"bursar/pkg/monitoring"
)

// WebhookVerifier checks a webhook payload's signature and parses the event.
type WebhookVerifier interface {
	VerifyAndParseWebhook(payload []byte, signature string) (*stripeapi.Event, error)
}

// Metrics holds the counters the payment path emits.
type Metrics struct {
	CheckoutsCreated  *prometheus.CounterVec
	Verifications     *prometheus.CounterVec
	CreditsGranted    *prometheus.CounterVec
	WebhooksProcessed *prometheus.CounterVec
}

// NewMetrics registers the payment-path counters on the collector.
func NewMetrics(mc *monitoring.MetricsCollector) *Metrics {
	return &Metrics{
		CheckoutsCreated: mc.NewCounter("checkouts_created_total",
			"Checkout sessions created", []string{"provider", "plan"}),
		Verifications: mc.NewCounter("verifications_total",
			"Payment verifications by outcome", []string{"provider", "outcome"}),
		CreditsGranted: mc.NewCounter("credits_granted_total",
			"Credits granted to users", []string{"plan"}),
		WebhooksProcessed: mc.NewCounter("webhooks_processed_total",
			"Webhook deliveries by result", []string{"provider", "result"}),
	}
}

var (
	db              *sql.DB
	logger          logging.Logger
	store           *ledger.Store
	balances        *ledger.Balances
	engine          *reconcile.Engine
	stripeAdapter   providers.Adapter
	razorpayAdapter providers.Adapter
	stripeWebhooks  WebhookVerifier
	replay          *ReplayGuard
	appOrigin       string
	bursarMetrics   *Metrics
)

// Config collects everything the handlers need.
type Config struct {
	DB             *sql.DB
	Logger         logging.Logger
	Stripe         providers.Adapter
	Razorpay       providers.Adapter
	StripeWebhooks WebhookVerifier
	Redis          *goredis.Client // optional; replay guard degrades to in-memory
	AppOrigin      string
	Metrics        *Metrics
}

// Init initializes the handlers.
func Init(cfg Config) {
	db = cfg.DB
	logger = cfg.Logger
	store = ledger.NewStore(cfg.DB, cfg.Logger)
	balances = ledger.NewBalances(cfg.DB, cfg.Logger)
	engine = reconcile.NewEngine(store, balances, cfg.Logger)
	stripeAdapter = cfg.Stripe
	razorpayAdapter = cfg.Razorpay
	stripeWebhooks = cfg.StripeWebhooks
	replay = NewReplayGuard(cfg.Redis, cfg.Logger)
	appOrigin = cfg.AppOrigin
	bursarMetrics = cfg.Metrics
}

// Store exposes the transaction store for the sweeper wiring in main.
func Store() *ledger.Store { return store }

// Balances exposes the balance store for the sweeper wiring in main.
func Balances() *ledger.Balances { return balances }
