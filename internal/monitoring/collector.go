package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-agent/internal/model"
)

// StatsSource is the slice of the store the collector reads.
type StatsSource interface {
	ActivityStats(ctx context.Context, since time.Time) (*model.ActivityStats, error)
}

// Collector gathers a point-in-time view of agent activity.
type Collector struct {
	source StatsSource
}

// NewCollector creates a metrics collector over the given store.
func NewCollector(source StatsSource) *Collector {
	return &Collector{source: source}
}

// Collect aggregates activity over the trailing lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*model.ActivityStats, error) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	since := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	stats, err := c.source.ActivityStats(ctx, since)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: collect activity")
	}
	return stats, nil
}
