package services

import "time"

// Stored timestamps are UTC so that sqlite string comparisons stay ordered.
func now() time.Time {
	return time.Now().UTC()
}
