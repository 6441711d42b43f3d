package email

import (
	"fmt"
)

const timeLayout = "Mon, Jan 2 2006 at 15:04"

func (s *Service) render(template string, e BookingEmail) (subject, body string, err error) {
	when := e.StartsAt.In(s.cfg.Location).Format(timeLayout)
	sign := "- " + s.cfg.FromName

	switch template {
	case TemplateBookingConfirmed:
		subject = "Booking confirmed - " + e.ClassName
		body = fmt.Sprintf(`Hi %s,

Your spot is confirmed!

Class: %s
Location: %s
Time: %s

See you there!

%s`, e.MemberName, e.ClassName, e.Location, when, sign)

	case TemplateWaitlisted:
		subject = "You're on the waitlist - " + e.ClassName
		body = fmt.Sprintf(`Hi %s,

The class is full, so we added you to the waitlist at position %d.
We'll email you as soon as a spot opens up.

Class: %s
Time: %s

%s`, e.MemberName, e.WaitlistPosition, e.ClassName, when, sign)

	case TemplatePromoted:
		subject = "A spot opened up - " + e.ClassName
		body = fmt.Sprintf(`Hi %s,

Good news! A spot opened up and your booking moved off the waitlist.

Class: %s
Location: %s
Time: %s

See you there!

%s`, e.MemberName, e.ClassName, e.Location, when, sign)

	case TemplateCancelled:
		subject = "Booking cancelled - " + e.ClassName
		note := ""
		if e.LateCancellation {
			note = "\nThis was a late cancellation, so the class was not refunded.\n"
		}
		body = fmt.Sprintf(`Hi %s,

Your booking has been cancelled.

Class: %s
Time: %s
%s
%s`, e.MemberName, e.ClassName, when, note, sign)

	case TemplateSessionCancelled:
		subject = "Class cancelled - " + e.ClassName
		body = fmt.Sprintf(`Hi %s,

Unfortunately the following class has been cancelled:

Class: %s
Time: %s
Reason: %s

Your booking has been refunded.

%s`, e.MemberName, e.ClassName, when, e.Reason, sign)

	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}

	return subject, body, nil
}
