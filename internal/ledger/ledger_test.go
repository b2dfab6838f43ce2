package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightcycle/internal/db"
)

func newTestLedger(t *testing.T, now *time.Time) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB).WithClock(func() time.Time { return *now })
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLedger(t, &now)

	require.NoError(t, l.Record(ctx, "hall", "switch_on", SourceAPI, "req-1", map[string]any{"index": 1}, nil))
	require.NoError(t, l.Record(ctx, "kitchen", "dim_up", SourceAPI, "", nil, errors.New("bridge down")))
	require.NoError(t, l.Record(ctx, "hall", "dynamic", SourceDynamic, "", nil, nil))

	all, err := l.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "dynamic", all[0].Operation)
	assert.Equal(t, now, all[0].Timestamp)

	failed := all[1]
	assert.Equal(t, EventOperationFailed, failed.EventType)
	assert.Equal(t, "bridge down", failed.Payload["error"])

	hall, err := l.Recent(ctx, Query{Light: "hall", Limit: 1})
	require.NoError(t, err)
	require.Len(t, hall, 1)
	assert.Equal(t, SourceDynamic, hall[0].Source)

	none, err := l.Recent(ctx, Query{Light: "attic"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHasCompleted(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	l := newTestLedger(t, &now)

	assert.False(t, l.HasCompleted(ctx, ""))
	assert.False(t, l.HasCompleted(ctx, "req-1"))

	require.NoError(t, l.Record(ctx, "hall", "switch_on", SourceAPI, "req-1", nil, errors.New("timeout")))
	assert.False(t, l.HasCompleted(ctx, "req-1"), "failures do not count")

	require.NoError(t, l.Record(ctx, "hall", "switch_on", SourceAPI, "req-1", nil, nil))
	assert.True(t, l.HasCompleted(ctx, "req-1"))

	// second completion is ignored
	require.NoError(t, l.Record(ctx, "hall", "switch_on", SourceAPI, "req-1", nil, nil))
	entries, err := l.Recent(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLedger(t, &now)

	require.NoError(t, l.Append(ctx, Entry{
		EventType: EventOperationCompleted, Light: "hall", Operation: "switch_off",
		Timestamp: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, l.Record(ctx, "hall", "switch_on", SourceAPI, "", nil, nil))

	deleted, err := l.DeleteOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err := l.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "switch_on", entries[0].Operation)
}
