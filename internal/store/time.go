package store

import "time"

// timeLayout is fixed width so that lexical order equals time order
const timeLayout = "20060102T150405.000000000Z"

// FormatTime renders t as an order-preserving clustering key component
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime reverses FormatTime
func ParseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
