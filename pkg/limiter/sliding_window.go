package limiter

import (
	"sort"
	"time"
)

// windowEntry is one admitted request. The sequence number keeps entries
// distinct when several requests land on the same millisecond.
type windowEntry struct {
	tsMs int64
	seq  int64
}

// windowLog is the ordered request log for one key, kept in (tsMs, seq)
// order. seq is drawn from a counter that never repeats for the key's
// lifetime.
type windowLog struct {
	entries []windowEntry
	nextSeq int64
}

// prune drops every entry at or before cutoffMs. The cutoff itself is
// outside the window.
func (l *windowLog) prune(cutoffMs int64) {
	i := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].tsMs > cutoffMs })
	if i == 0 {
		return
	}
	n := copy(l.entries, l.entries[i:])
	l.entries = l.entries[:n]
}

// applyWindow prunes the log to the trailing window ending at nowMs and
// decides whether one more request fits. It mutates l in place; the caller
// must hold the key's guard. The Redis script in sliding_window.lua mirrors
// this function against a sorted set.
func applyWindow(l *windowLog, nowMs, windowMs int64, maxRequests int) Decision {
	l.prune(nowMs - windowMs)

	count := len(l.entries)
	if count < maxRequests {
		l.entries = append(l.entries, windowEntry{tsMs: nowMs, seq: l.nextSeq})
		l.nextSeq++
		return Decision{Allow: true, Remaining: float64(maxRequests - (count + 1))}
	}

	var retryAfter time.Duration
	if count > 0 {
		// Time until the oldest entry ages out of the window.
		if wait := windowMs - (nowMs - l.entries[0].tsMs); wait > 0 {
			retryAfter = time.Duration(wait) * time.Millisecond
		}
	}
	return Decision{Allow: false, RetryAfter: retryAfter}
}
