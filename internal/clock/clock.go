// Package clock resolves "today" and calendar week/month boundaries.
//
// All date math is UTC and weeks run Monday through Sunday. Locale defaults
// are never consulted.
package clock

import (
	"fmt"
	"time"

	"github.com/haasonsaas/recall/pkg/models"
)

// ISODate is the date layout used everywhere in recall.
const ISODate = "2006-01-02"

// Clock supplies the current time to the orchestrator. A run config may
// override "today" without touching the wall clock.
type Clock interface {
	NowMs() int64
	Today() string
	TimeContext() models.TimeContext
}

// System is the wall-clock implementation.
type System struct{}

// NowMs returns the current Unix time in milliseconds.
func (System) NowMs() int64 {
	return time.Now().UnixMilli()
}

// Today returns the current UTC date.
func (System) Today() string {
	return time.Now().UTC().Format(ISODate)
}

// TimeContext returns the boundaries for the current UTC date.
func (c System) TimeContext() models.TimeContext {
	tc, _ := Context(c.Today())
	return tc
}

// Fixed is a clock pinned to a specific date, used for scenario "today"
// overrides and tests. NowMs still advances so per-step latencies are real.
type Fixed struct {
	Date string
}

// NowMs returns the current Unix time in milliseconds.
func (Fixed) NowMs() int64 {
	return time.Now().UnixMilli()
}

// Today returns the pinned date.
func (f Fixed) Today() string {
	return f.Date
}

// TimeContext returns the boundaries for the pinned date.
func (f Fixed) TimeContext() models.TimeContext {
	tc, _ := Context(f.Date)
	return tc
}

// For returns a clock honoring the config's today override, falling back to
// base when no override is set.
func For(base Clock, cfg models.RunConfig) Clock {
	if cfg.Today != "" {
		return Fixed{Date: cfg.Today}
	}
	return base
}

// Context computes the week and month boundaries for an ISO date.
func Context(today string) (models.TimeContext, error) {
	t, err := time.ParseInLocation(ISODate, today, time.UTC)
	if err != nil {
		return models.TimeContext{}, fmt.Errorf("parse today %q: %w", today, err)
	}

	// Monday of the current week. time.Weekday has Sunday == 0.
	offset := (int(t.Weekday()) + 6) % 7
	thisWeekStart := t.AddDate(0, 0, -offset)
	thisWeekEnd := thisWeekStart.AddDate(0, 0, 6)
	lastWeekStart := thisWeekStart.AddDate(0, 0, -7)
	lastWeekEnd := thisWeekStart.AddDate(0, 0, -1)

	thisMonthStart := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	thisMonthEnd := thisMonthStart.AddDate(0, 1, -1)
	lastMonthStart := thisMonthStart.AddDate(0, -1, 0)
	lastMonthEnd := thisMonthStart.AddDate(0, 0, -1)

	return models.TimeContext{
		Today:          today,
		ThisWeekStart:  thisWeekStart.Format(ISODate),
		ThisWeekEnd:    thisWeekEnd.Format(ISODate),
		LastWeekStart:  lastWeekStart.Format(ISODate),
		LastWeekEnd:    lastWeekEnd.Format(ISODate),
		ThisMonthStart: thisMonthStart.Format(ISODate),
		ThisMonthEnd:   thisMonthEnd.Format(ISODate),
		LastMonthStart: lastMonthStart.Format(ISODate),
		LastMonthEnd:   lastMonthEnd.Format(ISODate),
	}, nil
}

// NowISO formats a millisecond Unix timestamp as RFC 3339 UTC.
func NowISO(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
