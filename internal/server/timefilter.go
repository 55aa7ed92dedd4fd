package server

import "time"

// Named ranges accepted by the stats endpoints' time_filter parameter.
const (
	filterToday      = "today"
	filterYesterday  = "yesterday"
	filterThisWeek   = "this_week"
	filterLastWeek   = "last_week"
	filterThisMonth  = "this_month"
	filterLastMonth  = "last_month"
	filterLast7Days  = "last_7_days"
	filterLast30Days = "last_30_days"
	filterCustom     = "custom"
)

// timeRange resolves a named filter to inclusive bounds relative to now (UTC).
// Weeks start on Monday. "custom" passes the provided bounds through; unknown
// names resolve to an open range.
func timeRange(name string, start, end, now time.Time) (time.Time, time.Time) {
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch name {
	case filterToday:
		return todayStart, now
	case filterYesterday:
		return todayStart.AddDate(0, 0, -1), todayStart
	case filterThisWeek:
		return todayStart.AddDate(0, 0, -mondayOffset(now)), now
	case filterLastWeek:
		weekStart := todayStart.AddDate(0, 0, -mondayOffset(now)-7)
		return weekStart, weekStart.AddDate(0, 0, 7)
	case filterThisMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), now
	case filterLastMonth:
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		return monthStart, monthStart.AddDate(0, 1, 0)
	case filterLast7Days:
		return now.AddDate(0, 0, -7), now
	case filterLast30Days:
		return now.AddDate(0, 0, -30), now
	case filterCustom:
		return start, end
	}
	return time.Time{}, time.Time{}
}

// mondayOffset returns days since the most recent Monday.
func mondayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
