package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// DrainTimer empties a stopped timer's channel without blocking.
func DrainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}

// ResetTimer stops, drains, and re-arms a timer. d < 0 is coerced to 0.
func ResetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		DrainTimer(t)
	}
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}
