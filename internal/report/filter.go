// Package report filters and exports ledger records for the admin view.
package report

import (
	"strings"
	"time"

	"timeclock/internal/attendance"
)

// AllUsers selects every user in a Filter.
const AllUsers = "all"

const dayLayout = "2006-01-02"

// Filter narrows records by calendar day range and user name.
type Filter struct {
	From     *time.Time
	To       *time.Time
	UserName string
}

// ParseFilter builds a Filter from YYYY-MM-DD strings. Empty values are unset.
func ParseFilter(from, to, user string, loc *time.Location) (Filter, error) {
	var f Filter
	if from != "" {
		t, err := time.ParseInLocation(dayLayout, from, loc)
		if err != nil {
			return Filter{}, err
		}
		f.From = &t
	}
	if to != "" {
		t, err := time.ParseInLocation(dayLayout, to, loc)
		if err != nil {
			return Filter{}, err
		}
		f.To = &t
	}
	f.UserName = strings.TrimSpace(user)
	return f, nil
}

// Active reports whether the filter excludes anything.
func (f Filter) Active() bool {
	return f.From != nil || (f.UserName != "" && f.UserName != AllUsers)
}

// Apply returns the records that match f, preserving order. The range
// covers From 00:00:00 through the end of To (or of From when To is unset)
// in loc. A To without From is ignored.
func (f Filter) Apply(records []attendance.TimeRecord, loc *time.Location) []attendance.TimeRecord {
	var start, end time.Time
	byDate := f.From != nil
	if byDate {
		start = startOfDay(*f.From, loc)
		last := *f.From
		if f.To != nil {
			last = *f.To
		}
		end = startOfDay(last, loc).AddDate(0, 0, 1)
	}
	byUser := f.UserName != "" && f.UserName != AllUsers

	out := make([]attendance.TimeRecord, 0, len(records))
	for _, rec := range records {
		if byDate && (rec.Timestamp.Before(start) || !rec.Timestamp.Before(end)) {
			continue
		}
		if byUser && rec.UserName != f.UserName {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
