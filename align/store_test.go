package align

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenResultStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()

	report := testReport(t)
	report.StartedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	report.Duration = 1500 * time.Millisecond

	require.NoError(t, store.Consume(ctx, report))
	// Storing the same run twice replaces its rows.
	require.NoError(t, store.Consume(ctx, report))

	tally, err := store.RunTally(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.Coverage.Tally, tally)

	units, err := store.UnitResults(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, units, 3)

	// Ordered by pass, then unit.
	assert.Equal(t, "clipA", units[0].Unit)
	assert.Equal(t, PassClip, units[0].Pass)
	assert.Equal(t, 6, units[0].Matched)
	assert.InDelta(t, report.ClipResults[0].Transform.S, units[0].Scale, 1e-12)
	assert.Empty(t, units[0].Error)

	assert.Equal(t, "clipZ", units[1].Unit)
	assert.Contains(t, units[1].Error, "no shared frame identifiers")
	assert.Zero(t, units[1].Scale)

	assert.Equal(t, "scan01", units[2].Unit)
	assert.Equal(t, PassScan, units[2].Pass)
}

func TestResultStore_UnknownRun(t *testing.T) {
	store, err := OpenResultStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.RunTally(context.Background(), "missing")
	assert.Error(t, err)

	units, err := store.UnitResults(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, units)
}
