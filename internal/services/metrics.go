package services

import "github.com/prometheus/client_golang/prometheus"

// Domain counters. Labels are closed sets so cardinality stays bounded; no
// workspace or entity ids are used as label values.
var (
	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_webhook_events_total",
			Help: "Inbound provider events by dedup outcome (new, duplicate).",
		},
		[]string{"outcome"},
	)

	assignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_assignments_total",
			Help: "Routing mutations by kind (auto, manual, transfer, takeover, release, category).",
		},
		[]string{"kind"},
	)

	outboxOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_outbox_attempts_total",
			Help: "Outbox drain attempts by outcome (sent, retry, failed).",
		},
		[]string{"outcome"},
	)

	providerLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wa_provider_send_seconds",
			Help:    "Latency of provider send calls.",
			Buckets: prometheus.DefBuckets,
		},
	)

	campaignRecipients = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_campaign_recipients_total",
			Help: "Campaign recipients by outcome (inserted, skipped).",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(webhookEvents, assignments, outboxOutcomes, providerLatency, campaignRecipients)
}
