package reconciler

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

const DefaultInterval = time.Minute

// Schedule decides when the next sweep runs.
type Schedule interface {
	Next(now time.Time) time.Time
}

type every time.Duration

// Every runs a sweep at a fixed period. Non-positive periods use DefaultInterval.
func Every(d time.Duration) Schedule {
	if d <= 0 {
		d = DefaultInterval
	}
	return every(d)
}

func (e every) Next(now time.Time) time.Time {
	return now.Add(time.Duration(e))
}

type cron struct {
	expr string
}

// Cron runs a sweep at each tick of a standard five-field cron expression.
func Cron(expr string) (Schedule, error) {
	g := gronx.New()
	if !g.IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression %q", expr)
	}
	return cron{expr: expr}, nil
}

func (c cron) Next(now time.Time) time.Time {
	next, err := gronx.NextTickAfter(c.expr, now, false)
	if err != nil {
		return now.Add(DefaultInterval)
	}
	return next
}
