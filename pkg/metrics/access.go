package metrics

import "github.com/prometheus/client_golang/prometheus"

// AccessMetrics counts entitlement decisions and webhook deliveries.
type AccessMetrics struct {
	allowed  *prometheus.CounterVec
	denied   *prometheus.CounterVec
	webhooks *prometheus.CounterVec
}

// NewAccessMetrics registers guard and webhook counters on the registerer.
func NewAccessMetrics(reg prometheus.Registerer) *AccessMetrics {
	if reg == nil {
		return &AccessMetrics{}
	}
	allowed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feature_access_allowed_total",
		Help: "Protected operations that passed the usage pre-check.",
	}, []string{"feature"})
	denied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feature_access_denied_total",
		Help: "Protected operations denied by quota or missing capability.",
	}, []string{"feature"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Payment provider webhook deliveries by outcome.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(allowed, denied, webhooks)
	return &AccessMetrics{
		allowed:  allowed,
		denied:   denied,
		webhooks: webhooks,
	}
}

// IncAllowed increments the allow counter for the feature.
func (a *AccessMetrics) IncAllowed(feature string) {
	if a == nil || a.allowed == nil {
		return
	}
	a.allowed.WithLabelValues(normalizeLabel(feature)).Inc()
}

// IncDenied increments the deny counter for the feature.
func (a *AccessMetrics) IncDenied(feature string) {
	if a == nil || a.denied == nil {
		return
	}
	a.denied.WithLabelValues(normalizeLabel(feature)).Inc()
}

// IncWebhook records a webhook delivery outcome for the provider.
func (a *AccessMetrics) IncWebhook(provider, outcome string) {
	if a == nil || a.webhooks == nil {
		return
	}
	a.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}
