// Package metrics holds the prometheus collectors of the service. Every
// method is safe on a nil receiver so components can run without metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "queuebot"

// Metrics exposes counters and histograms for the webhook, engine, ticket
// and notification paths.
type Metrics struct {
	webhookEvents   *prometheus.CounterVec
	engineMessages  *prometheus.CounterVec
	engineFailures  prometheus.Counter
	engineLatency   prometheus.Histogram
	ticketsIssued   prometheus.Counter
	ticketsCancel   prometheus.Counter
	ticketsCalled   prometheus.Counter
	notifications   *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	realtimeClients prometheus.Gauge
}

// New creates and registers the collectors. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Inbound provider webhook events by outcome",
		}, []string{"result"}),
		engineMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "messages_total",
			Help:      "Customer messages processed by conversation state",
		}, []string{"state"}),
		engineFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "failures_total",
			Help:      "Messages answered with the generic apology",
		}),
		engineLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "process_seconds",
			Help:      "Time to produce a reply",
			Buckets:   prometheus.DefBuckets,
		}),
		ticketsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tickets",
			Name:      "issued_total",
			Help:      "Tickets issued",
		}),
		ticketsCancel: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tickets",
			Name:      "cancelled_total",
			Help:      "Tickets cancelled by customers",
		}),
		ticketsCalled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tickets",
			Name:      "called_total",
			Help:      "Tickets called to a counter",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Notification deliveries by channel and status",
		}, []string{"channel", "status"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_depth",
			Help:      "Notification jobs waiting in the queue",
		}),
		realtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "clients",
			Help:      "Connected dashboard websocket clients",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.webhookEvents, m.engineMessages, m.engineFailures, m.engineLatency,
		m.ticketsIssued, m.ticketsCancel, m.ticketsCalled,
		m.notifications, m.queueDepth, m.realtimeClients,
	)
	return m
}

func (m *Metrics) ObserveWebhook(result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveMessage(state string, seconds float64) {
	if m == nil {
		return
	}
	m.engineMessages.WithLabelValues(state).Inc()
	m.engineLatency.Observe(seconds)
}

func (m *Metrics) ObserveFailure() {
	if m == nil {
		return
	}
	m.engineFailures.Inc()
}

func (m *Metrics) TicketIssued() {
	if m == nil {
		return
	}
	m.ticketsIssued.Inc()
}

func (m *Metrics) TicketCancelled() {
	if m == nil {
		return
	}
	m.ticketsCancel.Inc()
}

func (m *Metrics) TicketCalled() {
	if m == nil {
		return
	}
	m.ticketsCalled.Inc()
}

func (m *Metrics) ObserveNotification(channel string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.notifications.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) SetQueueDepth(n int64) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetRealtimeClients(n int) {
	if m == nil {
		return
	}
	m.realtimeClients.Set(float64(n))
}
