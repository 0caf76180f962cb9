package contacts

import (
	"math"
	"time"

	"github.com/foxzi/castmail/internal/web/castmail"
)

// Recency classifies how long ago a contact was last mailed
type Recency int

const (
	RecencyNever Recency = iota
	RecencyRecent
	RecencyStale
	RecencyOverdue
)

const (
	staleAfterDays   = 30
	overdueAfterDays = 60
)

func (r Recency) String() string {
	switch r {
	case RecencyRecent:
		return "recent"
	case RecencyStale:
		return "stale"
	case RecencyOverdue:
		return "overdue"
	default:
		return "never"
	}
}

// Color returns the badge color used on the contacts page
func (r Recency) Color() string {
	switch r {
	case RecencyRecent:
		return "green"
	case RecencyStale:
		return "amber"
	case RecencyOverdue:
		return "red"
	default:
		return ""
	}
}

// DaysSince returns whole days between lastSent and now, floored.
// ok is false when the contact was never sent to.
func DaysSince(lastSent *time.Time, now time.Time) (days int, ok bool) {
	if lastSent == nil {
		return 0, false
	}
	return int(math.Floor(now.Sub(*lastSent).Hours() / 24)), true
}

// Classify buckets lastSent: nil is never, under 30 days recent,
// 30 to 59 stale, 60 and more overdue.
func Classify(lastSent *time.Time, now time.Time) Recency {
	days, ok := DaysSince(lastSent, now)
	switch {
	case !ok:
		return RecencyNever
	case days >= overdueAfterDays:
		return RecencyOverdue
	case days >= staleAfterDays:
		return RecencyStale
	default:
		return RecencyRecent
	}
}

// Summary counts contacts per recency bucket
type Summary struct {
	Total   int
	Never   int
	Recent  int
	Stale   int
	Overdue int
}

// NotSentFor30Days reports whether the contact was last mailed 30 or more
// days ago. Never-mailed contacts are not counted.
func (r Recency) NotSentFor30Days() bool {
	return r == RecencyStale || r == RecencyOverdue
}

// NotSentFor30Days is the number of contacts last mailed 30 or more days ago
func (s Summary) NotSentFor30Days() int {
	return s.Stale + s.Overdue
}

// Summarize classifies every contact against now
func Summarize(list []castmail.Contact, now time.Time) Summary {
	s := Summary{Total: len(list)}
	for _, c := range list {
		switch Classify(c.LastSentAt, now) {
		case RecencyNever:
			s.Never++
		case RecencyRecent:
			s.Recent++
		case RecencyStale:
			s.Stale++
		case RecencyOverdue:
			s.Overdue++
		}
	}
	return s
}
