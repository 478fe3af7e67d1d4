// Package transform provides field mapping and date helpers shared by
// the stream definitions
package transform

import (
	"net/mail"
	"strings"
	"time"

	"github.com/tapstream-io/tap-sailthru/pkg/errors"
)

// ParseRFC2822 parses a date string in RFC 2822 format into UTC
func ParseRFC2822(datestring string) (time.Time, error) {
	t, err := mail.ParseDate(datestring)
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.ErrorTypeData,
			"invalid RFC 2822 date: "+datestring)
	}
	return t.UTC(), nil
}

// NormalizeDates rewrites the named keys of record from RFC 2822 to
// RFC 3339. Keys that are absent or empty are left alone; keys already
// in RFC 3339 pass through unchanged.
func NormalizeDates(record map[string]interface{}, dateKeys []string) {
	for _, key := range dateKeys {
		raw, ok := record[key]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok || s == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			continue
		}
		if t, err := ParseRFC2822(s); err == nil {
			record[key] = t.Format(time.RFC3339)
		}
	}
}

// ToSnakeCase converts a header-style key ("Profile Id") to snake case
func ToSnakeCase(key string) string {
	return strings.ToLower(strings.Join(strings.Fields(key), "_"))
}

// SnakeCaseKeys rewrites all keys of record to snake case in place
func SnakeCaseKeys(record map[string]interface{}) {
	for key, value := range record {
		snake := ToSnakeCase(key)
		if snake == key {
			continue
		}
		delete(record, key)
		record[snake] = value
	}
}

// FlattenUserResponse maps the nested /user response onto the flat
// users stream record
func FlattenUserResponse(response map[string]interface{}) map[string]interface{} {
	keys, _ := response["keys"].(map[string]interface{})

	var listNames []string
	if lists, ok := response["lists"].(map[string]interface{}); ok {
		listNames = make([]string, 0, len(lists))
		for name := range lists {
			listNames = append(listNames, name)
		}
	}

	return map[string]interface{}{
		"profile_id":   keys["sid"],
		"cookie":       keys["cookie"],
		"email":        keys["email"],
		"vars":         response["vars"],
		"lists":        listNames,
		"engagement":   response["engagement"],
		"optout_email": response["optout_email"],
	}
}

// DateWindow is an inclusive day range for one export request
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// SplitDateWindows splits [start, end] into abutting sub-windows of at
// most maxDays days each. Windows are inclusive at day granularity:
// consecutive windows share no boundary day and leave no gap. The
// server caps how many days a single export request may span, so long
// ranges must be requested piecewise.
func SplitDateWindows(start, end time.Time, maxDays int) []DateWindow {
	if maxDays < 1 {
		maxDays = 1
	}

	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return nil
	}

	var windows []DateWindow
	for cursor := start; !cursor.After(end); {
		last := cursor.AddDate(0, 0, maxDays-1)
		if last.After(end) {
			last = end
		}
		windows = append(windows, DateWindow{Start: cursor, End: last})
		cursor = last.AddDate(0, 0, 1)
	}
	return windows
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
