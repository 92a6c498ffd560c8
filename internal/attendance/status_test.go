package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2025-03-14 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func rec(id, user string, typ EventType, ts time.Time) TimeRecord {
	return TimeRecord{ID: id, UserID: user, UserName: "U" + user, Type: typ, Timestamp: ts}
}

func TestDeriveStatusEmptyHistory(t *testing.T) {
	st := DeriveStatus("1", nil)
	assert.False(t, st.IsClockedIn)
	assert.Nil(t, st.LastClockIn)
}

func TestDeriveStatusInThenOut(t *testing.T) {
	history := []TimeRecord{
		rec("a", "1", EventIn, at("09:00")),
		rec("b", "1", EventOut, at("17:00")),
	}
	st := DeriveStatus("1", history)
	assert.False(t, st.IsClockedIn)
	require.NotNil(t, st.LastClockIn)
	assert.True(t, st.LastClockIn.Equal(at("09:00")))
}

func TestDeriveStatusOnlyIn(t *testing.T) {
	st := DeriveStatus("1", []TimeRecord{rec("a", "1", EventIn, at("09:00"))})
	assert.True(t, st.IsClockedIn)
	require.NotNil(t, st.LastClockIn)
	assert.True(t, st.LastClockIn.Equal(at("09:00")))
}

func TestDeriveStatusIgnoresOtherUsers(t *testing.T) {
	history := []TimeRecord{
		rec("a", "1", EventIn, at("09:00")),
		rec("b", "2", EventOut, at("10:00")),
		rec("c", "2", EventIn, at("11:00")),
	}
	assert.True(t, DeriveStatus("1", history).IsClockedIn)
	assert.True(t, DeriveStatus("2", history).IsClockedIn)
	assert.False(t, DeriveStatus("3", history).IsClockedIn)
}

func TestDeriveStatusUsesTimestampNotAppendOrder(t *testing.T) {
	// A back-filled "in" appended after a later "out" does not change state.
	history := []TimeRecord{
		rec("a", "1", EventIn, at("09:00")),
		rec("b", "1", EventOut, at("17:00")),
		rec("c", "1", EventIn, at("08:00")),
	}
	st := DeriveStatus("1", history)
	assert.False(t, st.IsClockedIn)
	require.NotNil(t, st.LastClockIn)
	assert.True(t, st.LastClockIn.Equal(at("09:00")))
}

func TestDeriveStatusTieGoesToLaterAppend(t *testing.T) {
	history := []TimeRecord{
		rec("a", "1", EventIn, at("09:00")),
		rec("b", "1", EventOut, at("09:00")),
	}
	assert.False(t, DeriveStatus("1", history).IsClockedIn)

	history[0].Type, history[1].Type = EventOut, EventIn
	assert.True(t, DeriveStatus("1", history).IsClockedIn)
}

func TestDeriveStatusUnaffectedByAppendingOtherUsers(t *testing.T) {
	history := []TimeRecord{rec("a", "1", EventIn, at("09:00"))}
	before := DeriveStatus("1", history)

	history = append(history, rec("b", "2", EventOut, at("18:00")))
	assert.Equal(t, before, DeriveStatus("1", history))
}

func TestSortNewestFirst(t *testing.T) {
	records := []TimeRecord{
		rec("a", "1", EventIn, at("09:00")),
		rec("b", "2", EventIn, at("12:00")),
		rec("c", "1", EventOut, at("09:00")),
		rec("d", "2", EventOut, at("08:00")),
	}
	sorted := SortNewestFirst(records)

	ids := make([]string, 0, len(sorted))
	for _, r := range sorted {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids)
	assert.Equal(t, "a", records[0].ID, "input must not be reordered")
}
