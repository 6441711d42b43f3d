package webhook

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Event types an endpoint can subscribe to.
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingPromoted  = "booking.promoted"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCheckedIn = "booking.checked_in"
	EventBookingNoShow    = "booking.no_show"
	EventSessionCancelled = "session.cancelled"
)

type Endpoint struct {
	ID         int            `db:"id" json:"id"`
	URL        string         `db:"url" json:"url"`
	Secret     string         `db:"secret" json:"-"`
	EventTypes pq.StringArray `db:"event_types" json:"event_types" swaggertype:"array,string"`
	Active     bool           `db:"active" json:"active"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Accepts reports whether the endpoint wants event. An empty subscription
// list means every event.
func (e *Endpoint) Accepts(event string) bool {
	if !e.Active {
		return false
	}
	if len(e.EventTypes) == 0 {
		return true
	}
	for _, t := range e.EventTypes {
		if t == event {
			return true
		}
	}
	return false
}

// Event is what gets posted to endpoints.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// delivery is a queued unit of work. EndpointID is zero until the event has
// been fanned out, afterwards it pins a retry to one endpoint.
type delivery struct {
	Event      Event `json:"event"`
	EndpointID int   `json:"endpoint_id,omitempty"`
	Tries      int   `json:"tries"`
}

type CreateEndpointRequest struct {
	URL        string   `json:"url" validate:"required,url,max=500"`
	Secret     string   `json:"secret" validate:"required,min=16,max=128"`
	EventTypes []string `json:"event_types" validate:"omitempty,dive,oneof=booking.created booking.confirmed booking.promoted booking.cancelled booking.checked_in booking.no_show session.cancelled"`
}

type UpdateEndpointRequest struct {
	Active     *bool    `json:"active"`
	EventTypes []string `json:"event_types" validate:"omitempty,dive,oneof=booking.created booking.confirmed booking.promoted booking.cancelled booking.checked_in booking.no_show session.cancelled"`
}
