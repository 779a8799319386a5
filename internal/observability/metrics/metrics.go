package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for the reply pipeline.
type BotMetrics struct {
	webhookTotal  *prometheus.CounterVec
	outcomeTotal  *prometheus.CounterVec
	skippedTotal  *prometheus.CounterVec
	decideLatency *prometheus.HistogramVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipl",
			Subsystem: "support_bot",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound Intercom webhooks",
		}, []string{"topic", "status"}),
		outcomeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipl",
			Subsystem: "support_bot",
			Name:      "reply_outcome_total",
			Help:      "Total reply decisions by outcome",
		}, []string{"outcome"}),
		skippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipl",
			Subsystem: "support_bot",
			Name:      "conversations_skipped_total",
			Help:      "Conversations skipped during a poll cycle",
		}, []string{"reason"}),
		decideLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pipl",
			Subsystem: "support_bot",
			Name:      "decide_latency_seconds",
			Help:      "Latency of a full waterfall decision",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.outcomeTotal, m.skippedTotal, m.decideLatency)
	return m
}

func (m *BotMetrics) ObserveWebhook(topic, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(topic, status).Inc()
}

func (m *BotMetrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomeTotal.WithLabelValues(outcome).Inc()
}

func (m *BotMetrics) ObserveSkip(reason string) {
	if m == nil {
		return
	}
	m.skippedTotal.WithLabelValues(reason).Inc()
}

func (m *BotMetrics) ObserveDecideLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.decideLatency.WithLabelValues(outcome).Observe(seconds)
}
