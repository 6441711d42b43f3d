package booking

import (
	"classbook/internal/gymclass"
)

// Allocate decides whether a new booking on s gets a seat or a waitlist
// place and updates the session counters accordingly. s must be locked by
// the caller.
func Allocate(s *gymclass.Session, class *gymclass.GymClass) (Status, *int, error) {
	if !s.IsBookable() {
		return "", nil, ErrSessionNotBookable
	}

	if s.BookedCount < s.Capacity {
		s.BookedCount++
		return StatusConfirmed, nil, nil
	}

	if class.WaitlistEnabled && s.WaitlistCount < class.MaxWaitlistSize {
		s.WaitlistCount++
		pos := s.WaitlistCount
		return StatusWaitlisted, &pos, nil
	}

	return "", nil, ErrSessionFull
}

// Release frees whatever the booking held before it left prev.
func Release(s *gymclass.Session, prev Status) {
	switch prev {
	case StatusConfirmed:
		if s.BookedCount > 0 {
			s.BookedCount--
		}
	case StatusWaitlisted:
		if s.WaitlistCount > 0 {
			s.WaitlistCount--
		}
	}
}

// CanPromote reports whether a seat is free and someone is waiting for it.
// Seats freed after the session started are still handed to the waitlist.
func CanPromote(s *gymclass.Session) bool {
	if s.Status == gymclass.SessionCompleted || s.Status == gymclass.SessionCancelled {
		return false
	}
	return s.BookedCount < s.Capacity && s.WaitlistCount > 0
}

// Promote moves a waitlisted booking into a free seat.
func Promote(s *gymclass.Session, b *Booking) {
	s.WaitlistCount--
	s.BookedCount++
	b.Status = StatusConfirmed
	b.WaitlistPosition = nil
}
