// Package presence derives attendance sessions from status-change events.
// Time in office is computed from STATUS TRANSITIONS (IN_OFFICE → OUT_OF_OFFICE),
// not from periodic ticks.
package presence

import "time"

type Status string

const (
	StatusInOffice    Status = "IN_OFFICE"
	StatusOutOfOffice Status = "OUT_OF_OFFICE"
	StatusUnknown     Status = "UNKNOWN"
)

// Event is a single timestamped status report for one subject. Device and
// beacon metadata are recorded alongside events for audit but never reach
// this package.
type Event struct {
	Timestamp time.Time
	Status    Status
}

// Session is one continuous span of presence. Sessions are derived values,
// recomputed on every query and never persisted.
type Session struct {
	Start           time.Time
	End             time.Time
	DurationMinutes float64
}

type Result struct {
	Sessions             []Session
	TotalDurationMinutes float64
}

// Reconstruct converts a timestamp-ascending event sequence into sessions.
//   - A session opens at the first IN_OFFICE while none is open; a repeated
//     IN_OFFICE is a no-op, which absorbs duplicate or retried beacons.
//   - A session closes at the first OUT_OF_OFFICE while one is open; an OUT
//     with no matching open produces nothing.
//   - UNKNOWN never opens or closes a session; it only advances the last
//     event time.
//   - A trailing open session closes at min(now, lastEventTime + timeout):
//     the device going silent ends presence at the timeout boundary, never
//     extrapolated past now.
//
// Callers must supply events sorted ascending for a single subject; this
// function does not sort. timeoutMinutes must be positive (validated at
// config load). Durations are exact fractional minutes; any rounding is a
// presentation concern.
//
// Two calls with an advancing now can report different totals while a
// trailing session is still open — presence is defined relative to query
// time, not a bug.
func Reconstruct(events []Event, now time.Time, timeoutMinutes int) Result {
	var sessions []Session
	var openStart time.Time
	var lastEventTime time.Time
	open := false

	for _, e := range events {
		lastEventTime = e.Timestamp

		switch e.Status {
		case StatusInOffice:
			if !open {
				openStart = e.Timestamp
				open = true
			}
		case StatusOutOfOffice:
			if open {
				sessions = append(sessions, Session{
					Start:           openStart,
					End:             e.Timestamp,
					DurationMinutes: e.Timestamp.Sub(openStart).Minutes(),
				})
				open = false
			}
		}
	}

	if open {
		end := lastEventTime.Add(time.Duration(timeoutMinutes) * time.Minute)
		if now.Before(end) {
			end = now
		}
		sessions = append(sessions, Session{
			Start:           openStart,
			End:             end,
			DurationMinutes: end.Sub(openStart).Minutes(),
		})
	}

	return Result{
		Sessions:             sessions,
		TotalDurationMinutes: SumMinutes(sessions),
	}
}

// Clip truncates each session to its intersection with [rangeStart, rangeEnd],
// recomputing the duration from the clipped bounds. Sessions entirely outside
// the range are dropped; surviving sessions keep their relative order. This is
// what attributes a midnight-spanning session to both calendar days
// proportionally. An inverted range yields an empty result.
func Clip(sessions []Session, rangeStart, rangeEnd time.Time) []Session {
	var clipped []Session
	for _, s := range sessions {
		start := s.Start
		if start.Before(rangeStart) {
			start = rangeStart
		}
		end := s.End
		if end.After(rangeEnd) {
			end = rangeEnd
		}
		if start.Before(end) {
			clipped = append(clipped, Session{
				Start:           start,
				End:             end,
				DurationMinutes: end.Sub(start).Minutes(),
			})
		}
	}
	return clipped
}

// SumMinutes returns the exact sum of session durations, 0 for an empty list.
func SumMinutes(sessions []Session) float64 {
	total := 0.0
	for _, s := range sessions {
		total += s.DurationMinutes
	}
	return total
}

// Classify reports the subject's current status from reconstructed sessions.
// The last session's end already encodes the timeout-closure policy, so a
// stale IN_OFFICE reading is never surfaced as current presence: no sessions
// means UNKNOWN, a last session ending within the timeout window of now means
// IN_OFFICE, anything older means OUT_OF_OFFICE.
func Classify(sessions []Session, now time.Time, timeoutMinutes int) Status {
	if len(sessions) == 0 {
		return StatusUnknown
	}
	last := sessions[len(sessions)-1]
	cutoff := now.Add(-time.Duration(timeoutMinutes) * time.Minute)
	if !last.End.Before(cutoff) {
		return StatusInOffice
	}
	return StatusOutOfOffice
}
