package cron

import (
	"time"

	"github.com/robfig/cron/v3"
)

// nextRunAtMs computes a schedule's next fire time per §4.7. It never
// fails: a malformed cron expression falls back to now+60s rather than
// propagating a parse error, matching the spec's fallback behavior.
func nextRunAtMs(schedule Schedule) int64 {
	switch schedule.Kind {
	case ScheduleKindAt:
		return nextAt(schedule.AtMs)
	case ScheduleKindEvery:
		return nextEvery(schedule.EveryMs, schedule.AnchorMs)
	case ScheduleKindCron:
		return nextCron(schedule.Expr, schedule.TZ)
	default:
		return nowMs() + 60_000
	}
}

// nextAt returns atMs if it is still in the future; otherwise it returns
// now+1s, the grace window that makes overdue one-shots fire once rather
// than never.
func nextAt(atMs int64) int64 {
	now := nowMs()
	if atMs > now {
		return atMs
	}
	return now + 1000
}

// nextEvery returns the next aligned occurrence of an interval anchored at
// anchorMs (defaulting to now when absent).
func nextEvery(everyMs int64, anchorMs *int64) int64 {
	now := nowMs()
	if everyMs <= 0 {
		return now + 60_000
	}
	anchor := now
	if anchorMs != nil {
		anchor = *anchorMs
	}
	elapsed := now - anchor
	if elapsed < 0 {
		return anchor
	}
	periods := elapsed / everyMs
	return anchor + (periods+1)*everyMs
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCron parses a standard 5-field cron expression and returns its next
// occurrence; a parse failure (or an unparseable timezone) falls back to
// now+60s rather than propagating an error.
func nextCron(expr, tz string) int64 {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nowMs() + 60_000
	}

	now := time.Now()
	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nowMs() + 60_000
		}
		now = now.In(loc)
	}

	return schedule.Next(now).UnixMilli()
}
