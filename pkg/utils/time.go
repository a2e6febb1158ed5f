package utils

import "time"

const DateLayout = "2006-01-02"

// DateKey returns the local calendar date of t, as stored in learning_progress.
func DateKey(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// DaysAgo returns the instant exactly days calendar days before now.
func DaysAgo(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

// NowUTC returns the current time in UTC
func NowUTC() time.Time {
	return time.Now().UTC()
}
