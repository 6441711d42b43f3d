package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("GET", "/api/bookings", "200", 0.5)
	RecordHTTPRequest("GET", "/api/bookings", "200", 0.1)
	RecordHTTPRequest("GET", "/api/bookings", "404", 0.05)

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/bookings", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/bookings", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(HTTPRequestDuration))
}

func TestRecordBooking(t *testing.T) {
	BookingsTotal.Reset()

	RecordBooking("CONFIRMED", "CLASS_PACK")
	RecordBooking("CONFIRMED", "MEMBERSHIP")
	RecordBooking("WAITLISTED", "CLASS_PACK")

	assert.Equal(t, float64(1), testutil.ToFloat64(BookingsTotal.WithLabelValues("CONFIRMED", "CLASS_PACK")))
	assert.Equal(t, float64(1), testutil.ToFloat64(BookingsTotal.WithLabelValues("CONFIRMED", "MEMBERSHIP")))
	assert.Equal(t, float64(1), testutil.ToFloat64(BookingsTotal.WithLabelValues("WAITLISTED", "CLASS_PACK")))
}

func TestRecordBookingCancellation(t *testing.T) {
	BookingCancellationsTotal.Reset()

	RecordBookingCancellation(true)
	RecordBookingCancellation(false)
	RecordBookingCancellation(false)

	assert.Equal(t, float64(1), testutil.ToFloat64(BookingCancellationsTotal.WithLabelValues("true")))
	assert.Equal(t, float64(2), testutil.ToFloat64(BookingCancellationsTotal.WithLabelValues("false")))
}

func TestRecordPackCredits(t *testing.T) {
	PackCreditsTotal.Reset()

	RecordPackCreditUsed()
	RecordPackCreditUsed()
	RecordPackCreditRefunded()

	assert.Equal(t, float64(2), testutil.ToFloat64(PackCreditsTotal.WithLabelValues("used")))
	assert.Equal(t, float64(1), testutil.ToFloat64(PackCreditsTotal.WithLabelValues("refunded")))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(WaitlistPromotionsTotal)
	RecordWaitlistPromotion()
	assert.Equal(t, before+1, testutil.ToFloat64(WaitlistPromotionsTotal))

	before = testutil.ToFloat64(SessionsGeneratedTotal)
	RecordSessionsGenerated(7)
	assert.Equal(t, before+7, testutil.ToFloat64(SessionsGeneratedTotal))

	before = testutil.ToFloat64(WalletTopUpsTotal)
	RecordWalletTopUp()
	assert.Equal(t, before+1, testutil.ToFloat64(WalletTopUpsTotal))
}

func TestEmailAndWebhookMetrics(t *testing.T) {
	EmailsSentTotal.Reset()
	WebhookDeliveriesTotal.Reset()

	RecordEmail("booking_confirmed", "success")
	RecordWebhookDelivery("booking.created", "failed")
	SetEmailQueueLength(12)

	assert.Equal(t, float64(1), testutil.ToFloat64(EmailsSentTotal.WithLabelValues("booking_confirmed", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(WebhookDeliveriesTotal.WithLabelValues("booking.created", "failed")))
	assert.Equal(t, float64(12), testutil.ToFloat64(EmailQueueLength))
}

func TestRecordMembership(t *testing.T) {
	MembershipsCreatedTotal.Reset()

	RecordMembership(true)

	assert.Equal(t, float64(1), testutil.ToFloat64(MembershipsCreatedTotal.WithLabelValues("true")))
	assert.Equal(t, float64(0), testutil.ToFloat64(MembershipsCreatedTotal.WithLabelValues("false")))
}
