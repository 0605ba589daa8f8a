// Package triggerlog records, per sensor, the timestamp of its most recent
// accepted trigger and answers confirmation-window queries.
package triggerlog

import "time"

// Log maps sensor ids to their last trigger time.
// It is not safe for concurrent use; callers serialize access.
type Log struct {
	last map[string]time.Time
}

// New creates an empty log.
func New() *Log {
	return &Log{last: make(map[string]time.Time)}
}

// Record stores ts as the sensor's last trigger, replacing any older one.
func (l *Log) Record(id string, ts time.Time) {
	l.last[id] = ts
}

// Last returns the sensor's last trigger time.
func (l *Log) Last(id string) (time.Time, bool) {
	ts, ok := l.last[id]

	return ts, ok
}

// Clear forgets the sensor's last trigger.
func (l *Log) Clear(id string) {
	delete(l.last, id)
}

// Reset forgets every trigger.
func (l *Log) Reset() {
	clear(l.last)
}

// Len returns the number of sensors with a recorded trigger.
func (l *Log) Len() int {
	return len(l.last)
}

// Recent reports whether the sensor triggered within threshold before now.
// A trigger stamped after now counts as recent.
func (l *Log) Recent(id string, now time.Time, threshold time.Duration) bool {
	ts, ok := l.last[id]
	if !ok {
		return false
	}

	return now.Sub(ts) <= threshold
}

// Correlated reports whether both sensors have triggers at most threshold apart.
func (l *Log) Correlated(a, b string, threshold time.Duration) bool {
	ta, ok := l.last[a]
	if !ok {
		return false
	}

	tb, ok := l.last[b]
	if !ok {
		return false
	}

	d := ta.Sub(tb)
	if d < 0 {
		d = -d
	}

	return d <= threshold
}
