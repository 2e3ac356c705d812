package core

import (
	"fmt"
	"time"
)

// IntervalStrategy advances a schedule point by one recurrence interval.
type IntervalStrategy interface {
	Next(from time.Time) time.Time
}

// calendarStep adds calendar fields. A day that does not exist in the target
// month rolls forward, so Jan 31 + one month lands on Mar 2 (Mar 3 outside
// leap years).
type calendarStep struct {
	years, months, days int
}

func (s calendarStep) Next(from time.Time) time.Time {
	return from.AddDate(s.years, s.months, s.days)
}

var intervalStrategies = map[RecurringInterval]IntervalStrategy{
	Daily:   calendarStep{days: 1},
	Weekly:  calendarStep{days: 7},
	Monthly: calendarStep{months: 1},
	Yearly:  calendarStep{years: 1},
}

// GetIntervalStrategy returns the strategy for interval.
func GetIntervalStrategy(interval RecurringInterval) (IntervalStrategy, error) {
	s, ok := intervalStrategies[interval]
	if !ok {
		return nil, fmt.Errorf("unknown recurring interval: %s", interval)
	}
	return s, nil
}

// NextRecurringDate advances date by one interval. Unknown intervals return
// date unchanged; drafts are validated before they get here.
func NextRecurringDate(date time.Time, interval RecurringInterval) time.Time {
	s, err := GetIntervalStrategy(interval)
	if err != nil {
		return date
	}
	return s.Next(date)
}

// IsDue reports whether a recurring template should be materialized at now.
func (t Transaction) IsDue(now time.Time) bool {
	if !t.IsRecurring || t.Status != StatusCompleted {
		return false
	}
	if t.RecurringEndDate != nil && t.RecurringEndDate.Before(now) {
		return false
	}
	if t.LastProcessed == nil {
		return true
	}
	return t.NextRecurringDate != nil && !t.NextRecurringDate.After(now)
}
