package booking

import (
	"context"
	"time"

	"classbook/internal/db"
)

const statsCounts = `
	COUNT(*) FILTER (WHERE b.status = 'CONFIRMED')  AS confirmed,
	COUNT(*) FILTER (WHERE b.status = 'WAITLISTED') AS waitlisted,
	COUNT(*) FILTER (WHERE b.status = 'CANCELLED')  AS cancelled,
	COUNT(*) FILTER (WHERE b.status = 'CHECKED_IN') AS checked_in,
	COUNT(*) FILTER (WHERE b.status = 'NO_SHOW')    AS no_show,
	COUNT(*)                                        AS total`

// StatsByDay buckets bookings by the calendar day their session starts on.
func (r *repository) StatsByDay(ctx context.Context, from, to time.Time) ([]Stats, error) {
	query := `
SELECT
  TO_CHAR(DATE(s.starts_at), 'YYYY-MM-DD') AS key,` + statsCounts + `
FROM class_bookings b
JOIN class_sessions s ON s.id = b.session_id
WHERE s.starts_at BETWEEN $1 AND $2
GROUP BY DATE(s.starts_at)
ORDER BY DATE(s.starts_at);
`
	stats := []Stats{}
	if err := db.Conn(ctx, r.db).SelectContext(ctx, &stats, query, from, to); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *repository) StatsByClass(ctx context.Context, from, to time.Time) ([]Stats, error) {
	query := `
SELECT
  g.name AS key,` + statsCounts + `
FROM class_bookings b
JOIN class_sessions s ON s.id = b.session_id
JOIN gym_classes g ON g.id = s.gym_class_id
WHERE s.starts_at BETWEEN $1 AND $2
GROUP BY g.id, g.name
ORDER BY g.id;
`
	stats := []Stats{}
	if err := db.Conn(ctx, r.db).SelectContext(ctx, &stats, query, from, to); err != nil {
		return nil, err
	}
	return stats, nil
}
