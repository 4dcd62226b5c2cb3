// Package daykey maps calendar dates to canonical "YYYY-MM-DD" day keys and
// "YYYY-MM" month keys. Keys are fixed-width and zero-padded, so string order
// equals chronological order. All functions are pure and safe for concurrent use.
package daykey

import (
	"fmt"
	"strings"
	"time"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// MonthKey formats a year and 1-based month as "YYYY-MM".
func MonthKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// DayKey appends a zero-padded day of month to a month key.
func DayKey(monthKey string, day int) string {
	return fmt.Sprintf("%s-%02d", monthKey, day)
}

// FromTime returns the day key of t using t's own calendar fields, not UTC.
// Pass a time in the device location to get the day the user perceives.
func FromTime(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-%02d", t.Year(), int(t.Month()), t.Day())
}

// Parse is the inverse of FromTime: it returns local midnight of the key's day.
func Parse(key string) (time.Time, error) {
	t, err := time.ParseInLocation(dayLayout, key, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("daykey: invalid day key %q: %w", key, err)
	}
	return t, nil
}

// Valid reports whether key is a well-formed, existing calendar day.
func Valid(key string) bool {
	_, err := Parse(key)
	return err == nil
}

// ValidMonth reports whether key is a well-formed "YYYY-MM" month key.
func ValidMonth(key string) bool {
	_, err := time.Parse(monthLayout, key)
	return err == nil
}

// Compare orders two keys; the result is negative, zero or positive.
func Compare(a, b string) int {
	return strings.Compare(a, b)
}

// MonthOf returns the month key prefix of a day key.
func MonthOf(dayKey string) string {
	if len(dayKey) < len(monthLayout) {
		return dayKey
	}
	return dayKey[:len(monthLayout)]
}

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Range lists every day key from start to end inclusive, in order.
// It returns an empty slice when start is after end or either key is invalid.
func Range(start, end string) []string {
	if Compare(start, end) > 0 {
		return []string{}
	}
	cursor, err := Parse(start)
	if err != nil {
		return []string{}
	}
	last, err := Parse(end)
	if err != nil {
		return []string{}
	}

	keys := make([]string, 0, DaysBetween(cursor, last)+1)
	for !cursor.After(last) {
		keys = append(keys, FromTime(cursor))
		cursor = cursor.AddDate(0, 0, 1)
	}
	return keys
}

// DaysBetween counts calendar days from a to b, ignoring time of day and DST shifts.
func DaysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// AddMonths shifts a day key by n calendar months. Day-of-month overflow
// normalizes forward the way time.AddDate does (Jan 31 + 1 month = Mar 2/3).
func AddMonths(key string, n int) (string, error) {
	t, err := Parse(key)
	if err != nil {
		return "", err
	}
	return FromTime(t.AddDate(0, n, 0)), nil
}

// AddDays shifts a day key by n calendar days.
func AddDays(key string, n int) (string, error) {
	t, err := Parse(key)
	if err != nil {
		return "", err
	}
	return FromTime(t.AddDate(0, 0, n)), nil
}

// Today returns the day key of now in the local calendar.
func Today(now time.Time) string {
	return FromTime(now.In(time.Local))
}

// Previous returns the day before key.
func Previous(key string) (string, error) { return AddDays(key, -1) }
