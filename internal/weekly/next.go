package weekly

import "time"

// Lead converts lead-time minutes to a duration.
func Lead(minutes int) time.Duration { return time.Duration(minutes) * time.Minute }

// NextOccurrence returns the next trigger instant for a reminder that fires
// leadMinutes before start on every day, as seen from now.
//
// The day offset is the smallest k in [0,7) that lands on day; when the
// trigger for that offset is not after now, the slot one week later is used.
// For k == 0 this is the "today's reminder already passed" case; for k > 0 it
// only happens when the lead time reaches back across now. Lead times of a week
// or more are not validated and can yield an instant that is not after now.
func NextOccurrence(day Day, start Clock, leadMinutes int, now time.Time) time.Time {
	now = now.Truncate(time.Second)
	k := (int(day.Weekday()) - int(now.Weekday()) + 7) % 7
	trigger := slot(now, k, start).Add(-Lead(leadMinutes))
	if !trigger.After(now) {
		trigger = slot(now, k+7, start).Add(-Lead(leadMinutes))
	}
	return trigger
}

// NextAfterFire returns the trigger following a fire.
//
// firedAt is the trigger instant the fired timer was armed for. The result is
// the same slot one week later; if the fire was delivered so late that this is
// no longer in the future, the next occurrence as seen from now is used
// instead. A zero firedAt (unknown) also falls back to NextOccurrence.
func NextAfterFire(day Day, start Clock, leadMinutes int, firedAt, now time.Time) time.Time {
	if firedAt.IsZero() {
		return NextOccurrence(day, start, leadMinutes, now)
	}
	next := slot(firedAt.Add(Lead(leadMinutes)).In(now.Location()), 7, start).Add(-Lead(leadMinutes))
	if !next.After(now.Truncate(time.Second)) {
		return NextOccurrence(day, start, leadMinutes, now)
	}
	return next
}

// slot builds the wall-clock instant offset days after ref's date at start.
// time.Date normalizes day overflow and DST gaps.
func slot(ref time.Time, offset int, start Clock) time.Time {
	y, m, d := ref.Date()
	return time.Date(y, m, d+offset, start.Hour, start.Minute, 0, 0, ref.Location())
}

// Upcoming lists the next n triggers starting from now. Used for previews.
func Upcoming(day Day, start Clock, leadMinutes int, now time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	t := NextOccurrence(day, start, leadMinutes, now)
	for i := 0; i < n; i++ {
		out = append(out, t)
		t = NextAfterFire(day, start, leadMinutes, t, t)
	}
	return out
}
