package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRFC2822(t *testing.T) {
	got, err := ParseRFC2822("Wed, 03 Feb 2021 16:59:09 -0500")
	require.NoError(t, err)

	want := time.Date(2021, 2, 3, 21, 59, 9, 0, time.UTC)
	assert.True(t, got.Equal(want), "got %s", got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestParseRFC2822Invalid(t *testing.T) {
	_, err := ParseRFC2822("not a date")
	assert.Error(t, err)
}

func TestNormalizeDates(t *testing.T) {
	record := map[string]interface{}{
		"modify_time": "Wed, 03 Feb 2021 16:59:09 -0500",
		"start_time":  "",
		"create_time": "2021-02-03T21:59:09Z",
		"name":        "spring launch",
	}

	NormalizeDates(record, []string{"modify_time", "start_time", "create_time", "absent"})

	assert.Equal(t, "2021-02-03T21:59:09Z", record["modify_time"])
	assert.Equal(t, "", record["start_time"])
	assert.Equal(t, "2021-02-03T21:59:09Z", record["create_time"])
	assert.Equal(t, "spring launch", record["name"])
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "profile_id", ToSnakeCase("Profile Id"))
	assert.Equal(t, "email_hash", ToSnakeCase("Email Hash"))
	assert.Equal(t, "date", ToSnakeCase("Date"))
	assert.Equal(t, "already_snake", ToSnakeCase("already_snake"))
}

func TestSnakeCaseKeys(t *testing.T) {
	record := map[string]interface{}{
		"Profile Id": "abc123",
		"Email Hash": "deadbeef",
		"extid":      "42",
	}

	SnakeCaseKeys(record)

	assert.Equal(t, map[string]interface{}{
		"profile_id": "abc123",
		"email_hash": "deadbeef",
		"extid":      "42",
	}, record)
}

func TestFlattenUserResponse(t *testing.T) {
	response := map[string]interface{}{
		"keys": map[string]interface{}{
			"sid":    "sid-1",
			"cookie": "cookie-1",
			"email":  "user@example.com",
		},
		"vars":         map[string]interface{}{"plan": "gold"},
		"lists":        map[string]interface{}{"newsletter": "2021-01-01", "vip": "2021-02-01"},
		"engagement":   "engaged",
		"optout_email": "none",
	}

	flat := FlattenUserResponse(response)

	assert.Equal(t, "sid-1", flat["profile_id"])
	assert.Equal(t, "cookie-1", flat["cookie"])
	assert.Equal(t, "user@example.com", flat["email"])
	assert.Equal(t, map[string]interface{}{"plan": "gold"}, flat["vars"])
	assert.ElementsMatch(t, []string{"newsletter", "vip"}, flat["lists"])
	assert.Equal(t, "engaged", flat["engagement"])
	assert.Equal(t, "none", flat["optout_email"])
}

func TestFlattenUserResponseMissingKeys(t *testing.T) {
	flat := FlattenUserResponse(map[string]interface{}{})

	assert.Nil(t, flat["profile_id"])
	assert.Empty(t, flat["lists"])
}

func TestSplitDateWindowsSingleDay(t *testing.T) {
	day := time.Date(2021, 3, 1, 10, 30, 0, 0, time.UTC)
	windows := SplitDateWindows(day, day, 1)

	require.Len(t, windows, 1)
	assert.Equal(t, time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), windows[0].Start)
	assert.Equal(t, windows[0].Start, windows[0].End)
}

func TestSplitDateWindowsCapsSpan(t *testing.T) {
	start := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 3, 10, 0, 0, 0, 0, time.UTC)

	windows := SplitDateWindows(start, end, 4)

	require.Len(t, windows, 3)
	assert.Equal(t, start, windows[0].Start)
	assert.Equal(t, start.AddDate(0, 0, 3), windows[0].End)
	assert.Equal(t, start.AddDate(0, 0, 4), windows[1].Start)
	assert.Equal(t, end, windows[2].End)
}

func TestSplitDateWindowsEndBeforeStart(t *testing.T) {
	start := time.Date(2021, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)

	assert.Nil(t, SplitDateWindows(start, end, 1))
}

func TestSplitDateWindowsGapFree(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 539)

	for _, maxDays := range []int{1, 7, 30, 365} {
		windows := SplitDateWindows(start, end, maxDays)
		require.NotEmpty(t, windows)

		assert.Equal(t, start, windows[0].Start)
		assert.Equal(t, end, windows[len(windows)-1].End)

		for i := 1; i < len(windows); i++ {
			// Each window starts the day after the previous one ends:
			// no gap, no overlap.
			assert.Equal(t, windows[i-1].End.AddDate(0, 0, 1), windows[i].Start,
				"maxDays=%d window=%d", maxDays, i)
		}
		for _, w := range windows {
			days := int(w.End.Sub(w.Start).Hours()/24) + 1
			assert.LessOrEqual(t, days, maxDays)
			assert.False(t, w.End.Before(w.Start))
		}
	}
}

func TestSplitDateWindowsDailyCount(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 59)

	windows := SplitDateWindows(start, end, 1)
	assert.Len(t, windows, 60)
}
