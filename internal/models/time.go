package models

import "time"

// Store timestamps are epoch milliseconds throughout; these helpers keep the
// conversions in one place.

// TimeToMillis converts a time to epoch milliseconds; zero time maps to 0.
func TimeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// MillisToTime converts epoch milliseconds to a time; 0 maps to zero time.
func MillisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// IsStoreID reports whether s looks like a store-native identifier: at
// least 25 lowercase base36 characters. Complete/fail operations silently
// ignore ids that fail this check so sites and rows fabricated in tests or
// manual flows never trip store validation.
func IsStoreID(s string) bool {
	if len(s) < 25 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
