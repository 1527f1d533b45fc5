package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-agent/internal/model"
)

type fakeSource struct {
	stats *model.ActivityStats
	since time.Time
	err   error
}

func (f *fakeSource) ActivityStats(ctx context.Context, since time.Time) (*model.ActivityStats, error) {
	f.since = since
	return f.stats, f.err
}

func TestCollector_UsesLookbackWindow(t *testing.T) {
	src := &fakeSource{stats: &model.ActivityStats{ToolCalls: 7}}
	c := NewCollector(src)

	stats, err := c.Collect(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.ToolCalls)

	wantSince := time.Now().UTC().Add(-6 * time.Hour)
	assert.WithinDuration(t, wantSince, src.since, time.Minute)
}

func TestCollector_DefaultsLookback(t *testing.T) {
	src := &fakeSource{stats: &model.ActivityStats{}}
	c := NewCollector(src)

	_, err := c.Collect(context.Background(), 0)
	require.NoError(t, err)

	wantSince := time.Now().UTC().Add(-24 * time.Hour)
	assert.WithinDuration(t, wantSince, src.since, time.Minute)
}
