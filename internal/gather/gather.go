// Package gather fetches intraday market data from remote providers into
// the local stores.
package gather

import (
	"context"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass. It returns early when ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Day returns the 24 hours starting at midnight of date in loc.
func Day(date time.Time, loc *time.Location) DateRange {
	d := date.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return DateRange{Start: start, End: start.Add(24 * time.Hour)}
}
