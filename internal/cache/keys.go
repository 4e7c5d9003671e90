package cache

import "fmt"

func OverviewKey() string {
	return "analytics:overview"
}

func GridHealthKey() string {
	return "analytics:grid_health"
}

func BaselineKey(meterID int64) string {
	return fmt.Sprintf("baseline:%d", meterID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
