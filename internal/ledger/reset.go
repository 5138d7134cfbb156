package ledger

import "time"

// DefaultResetInterval is how long a slot trades before it is wiped back to its initial funding.
const DefaultResetInterval = 24 * time.Hour

// ShouldReset reports whether a slot last reset at last is due for a wipe at now.
// A slot that was never stamped is always due.
func ShouldReset(last, now time.Time, period time.Duration) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) > period
}
