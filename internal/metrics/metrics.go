package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classbook_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classbook_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classbook_bookings_total",
			Help: "Total number of bookings created",
		},
		[]string{"status", "payment_source"},
	)

	BookingCancellationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classbook_booking_cancellations_total",
			Help: "Total number of booking cancellations",
		},
		[]string{"late"},
	)

	WaitlistPromotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classbook_waitlist_promotions_total",
			Help: "Total number of waitlisted bookings promoted to confirmed",
		},
	)

	PackCreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classbook_pack_credits_total",
			Help: "Class pack credits used or refunded",
		},
		[]string{"direction"},
	)

	SessionsGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classbook_sessions_generated_total",
			Help: "Total number of sessions generated from schedules",
		},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classbook_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "classbook_email_queue_length",
			Help: "Current length of email queue",
		},
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classbook_webhook_deliveries_total",
			Help: "Webhook delivery attempts by event and outcome",
		},
		[]string{"event", "status"},
	)

	WalletTopUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classbook_wallet_topups_total",
			Help: "Total number of wallet top-ups",
		},
	)

	MembershipsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classbook_memberships_created_total",
			Help: "Total number of memberships created",
		},
		[]string{"metered"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordBooking(status, paymentSource string) {
	BookingsTotal.WithLabelValues(status, paymentSource).Inc()
}

func RecordBookingCancellation(late bool) {
	BookingCancellationsTotal.WithLabelValues(boolLabel(late)).Inc()
}

func RecordWaitlistPromotion() {
	WaitlistPromotionsTotal.Inc()
}

func RecordPackCreditUsed() {
	PackCreditsTotal.WithLabelValues("used").Inc()
}

func RecordPackCreditRefunded() {
	PackCreditsTotal.WithLabelValues("refunded").Inc()
}

func RecordSessionsGenerated(n int) {
	SessionsGeneratedTotal.Add(float64(n))
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}

func SetEmailQueueLength(n int64) {
	EmailQueueLength.Set(float64(n))
}

func RecordWebhookDelivery(event, status string) {
	WebhookDeliveriesTotal.WithLabelValues(event, status).Inc()
}

func RecordWalletTopUp() {
	WalletTopUpsTotal.Inc()
}

func RecordMembership(metered bool) {
	MembershipsCreatedTotal.WithLabelValues(boolLabel(metered)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
