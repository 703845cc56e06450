package circulation

import "time"

// =============================================================================
// CLOCK - Injected time source for deterministic tests
// =============================================================================

// Clock supplies the current time. The engine never calls time.Now()
// directly; tests inject a fixed clock and move it by hand.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// DaysUntil returns the number of whole days from now until t, rounded up.
// A due date 2.5 days away counts as 3 days out; a past date is negative.
func DaysUntil(now, t time.Time) int {
	d := t.Sub(now)
	days := int(d.Hours() / 24)
	if d > 0 && d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// DaysLate returns the number of whole days t is past due, rounded down.
// Returns 0 when t is not after due.
func DaysLate(due, t time.Time) int {
	if !t.After(due) {
		return 0
	}
	return int(t.Sub(due).Hours() / 24)
}
