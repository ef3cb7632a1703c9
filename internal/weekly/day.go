package weekly

import (
	"fmt"
	"strings"
	"time"
)

// Day is a day of the week, Monday=1 .. Sunday=7. The zero value means "absent".
type Day int

const (
	Monday Day = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = [...]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// ParseDay accepts an English day name, case-insensitive ("tuesday", "Tuesday").
func ParseDay(raw string) (Day, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for d := Monday; d <= Sunday; d++ {
		if strings.ToLower(dayNames[d]) == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid day of week %q", raw)
}

func (d Day) Valid() bool { return d >= Monday && d <= Sunday }

func (d Day) String() string {
	if !d.Valid() {
		return ""
	}
	return dayNames[d]
}

// Weekday converts to the time package representation (Sunday=0).
func (d Day) Weekday() time.Weekday {
	return time.Weekday(int(d) % 7)
}

// FromWeekday converts a time.Weekday to Day.
func FromWeekday(w time.Weekday) Day {
	if w == time.Sunday {
		return Sunday
	}
	return Day(w)
}
