package attendance

import "sort"

// DeriveStatus projects a user's clock state from the ledger history.
// Only records belonging to userID are considered; the newest one decides
// IsClockedIn. When two records share a timestamp the one that appears later
// in history wins, matching append order.
func DeriveStatus(userID string, history []TimeRecord) Status {
	var (
		latest   *TimeRecord
		latestIn *TimeRecord
	)
	for i := range history {
		rec := &history[i]
		if rec.UserID != userID {
			continue
		}
		if latest == nil || !rec.Timestamp.Before(latest.Timestamp) {
			latest = rec
		}
		if rec.Type == EventIn && (latestIn == nil || !rec.Timestamp.Before(latestIn.Timestamp)) {
			latestIn = rec
		}
	}

	var st Status
	if latest == nil {
		return st
	}
	st.IsClockedIn = latest.Type == EventIn
	if latestIn != nil {
		ts := latestIn.Timestamp
		st.LastClockIn = &ts
	}
	return st
}

// SortNewestFirst returns a copy of records ordered by timestamp descending.
// Records with equal timestamps keep reverse append order.
func SortNewestFirst(records []TimeRecord) []TimeRecord {
	out := make([]TimeRecord, len(records))
	for i := range records {
		out[len(records)-1-i] = records[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// withStatus fills the derived fields of u from history.
func withStatus(u User, history []TimeRecord) User {
	st := DeriveStatus(u.ID, history)
	u.IsClockedIn = st.IsClockedIn
	u.LastClockIn = st.LastClockIn
	return u
}
