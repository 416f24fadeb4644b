package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newManager(db, logger)
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func newRecord(sourceID string, ts time.Time) *models.IntelligenceRecord {
	return &models.IntelligenceRecord{
		SourceID:          sourceID,
		Timestamp:         ts,
		Author:            "Reuters",
		Content:           "Fed holds rates. Markets steady",
		URL:               "https://example.com/" + sourceID,
		UrgencyMultiplier: 1.5,
		Summary:           models.NewLocalizedText("en", "Fed holds rates steady again", "zh", "美联储维持利率"),
		SentimentScore:    0.4,
		UrgencyScore:      6,
	}
}

func TestIntelligenceStorage_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestManager(t).IntelligenceStorage()

	ts := mustTime(t, "2026-01-10T14:00:00Z")
	id1, created, err := store.SaveIntelligence(ctx, newRecord("src-1", ts))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id1)

	id2, created, err := store.SaveIntelligence(ctx, newRecord("src-1", ts.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	count, err := store.CountIntelligence(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	dup, err := store.IsDuplicate(ctx, "src-1", "")
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = store.IsDuplicate(ctx, "other", "https://example.com/src-1")
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = store.IsDuplicate(ctx, "other", "https://example.com/other")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestIntelligenceStorage_IsDuplicateByURL(t *testing.T) {
	ctx := context.Background()
	store := newTestManager(t).IntelligenceStorage()

	ts := mustTime(t, "2026-01-10T14:00:00Z")
	var ids []string
	for _, src := range []string{"a", "b", "c"} {
		id, _, err := store.SaveIntelligence(ctx, newRecord(src, ts))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	dup, err := store.IsDuplicate(ctx, "", "https://example.com/b")
	require.NoError(t, err)
	assert.True(t, dup)

	_, err = store.DeleteIntelligenceBatch(ctx, []string{ids[1]})
	require.NoError(t, err)

	// Deleting the record drops its URL from the lookup
	dup, err = store.IsDuplicate(ctx, "", "https://example.com/b")
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = store.IsDuplicate(ctx, "", "https://example.com/c")
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestIntelligenceStorage_ListAndEnrichment(t *testing.T) {
	ctx := context.Background()
	store := newTestManager(t).IntelligenceStorage()

	base := mustTime(t, "2026-01-10T00:00:00Z")
	for i, id := range []string{"c", "a", "b"} {
		_, _, err := store.SaveIntelligence(ctx, newRecord(id, base.Add(time.Duration(2-i)*time.Hour)))
		require.NoError(t, err)
	}

	records, err := store.ListIntelligence(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "b", records[0].SourceID)
	assert.Equal(t, "a", records[1].SourceID)
	assert.Equal(t, "c", records[2].SourceID)
	assert.Equal(t, "美联储维持利率", records[0].Summary.Preferred())

	windowed, err := store.ListIntelligence(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, windowed, 2)

	points, err := store.ListRecentEvents(ctx, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 1, points[0].Direction)
	assert.InDelta(t, 1.5, points[0].Weight, 1e-9)

	missing, err := store.ListMissingEnrichment(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, missing, 3)

	rec := missing[0]
	zero := 0.0
	rec.ApplySnapshot(models.Snapshot{
		Gold: models.Float(2650), DXY: models.Float(104.2), US10Y: models.Float(4.1), GVZ: models.Float(15.3),
		Price1h: models.Float(2655), Price24h: models.Float(2670),
	}, true)
	rec.ClusteringScore = &zero
	rec.ExhaustionScore = &zero
	rec.MarketSession = models.SessionAsia
	require.NoError(t, store.UpdateEnrichment(ctx, rec))

	missing, err = store.ListMissingEnrichment(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, missing, 2)

	got, err := store.GetIntelligence(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ClusteringScore)
	assert.Equal(t, 0.0, *got.ClusteringScore)
	assert.Nil(t, got.Price15m)
}

func TestIntelligenceStorage_DeleteBatch(t *testing.T) {
	ctx := context.Background()
	store := newTestManager(t).IntelligenceStorage()

	var ids []string
	for _, src := range []string{"x", "y", "z"} {
		id, _, err := store.SaveIntelligence(ctx, newRecord(src, time.Now()))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	deleted, err := store.DeleteIntelligenceBatch(ctx, []string{ids[0], ids[2], "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = store.GetIntelligence(ctx, ids[0])
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	count, err := store.CountIntelligence(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndicatorStorage(t *testing.T) {
	ctx := context.Background()
	store := newTestManager(t).IndicatorStorage()

	_, err := store.GetLatestIndicator(ctx, models.IndicatorFedRegime)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	rows := []struct {
		date  string
		value float64
	}{
		{"2021-01-01T00:00:00Z", 0},
		{"2022-03-16T00:00:00Z", -1},
		{"2024-09-18T00:00:00Z", 1},
	}
	for _, r := range rows {
		require.NoError(t, store.SaveIndicator(ctx, &models.MarketIndicator{
			Timestamp: mustTime(t, r.date),
			Name:      models.IndicatorFedRegime,
			Value:     r.value,
		}))
	}
	// Saving again overwrites instead of appending
	require.NoError(t, store.SaveIndicator(ctx, &models.MarketIndicator{
		Timestamp: mustTime(t, "2024-09-18T00:00:00Z"), Name: models.IndicatorFedRegime, Value: 1,
	}))

	all, err := store.ListIndicators(ctx, models.IndicatorFedRegime)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	latest, err := store.GetLatestIndicator(ctx, models.IndicatorFedRegime)
	require.NoError(t, err)
	assert.Equal(t, 1.0, latest.Value)

	at, err := store.GetIndicatorAt(ctx, models.IndicatorFedRegime, mustTime(t, "2023-06-01T00:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, -1.0, at.Value)

	_, err = store.GetIndicatorAt(ctx, models.IndicatorFedRegime, mustTime(t, "2020-06-01T00:00:00Z"))
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestWatchlistAndKV(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	require.NoError(t, m.WatchlistStorage().AddWatchlistCode(ctx, " gld "))
	require.NoError(t, m.WatchlistStorage().AddWatchlistCode(ctx, "IAU"))
	require.Error(t, m.WatchlistStorage().AddWatchlistCode(ctx, ""))

	codes, err := m.WatchlistStorage().GetWatchlistCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"GLD", "IAU"}, codes)

	kv := m.KeyValueStorage()
	_, err = kv.Get(ctx, "monitor_state")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	require.NoError(t, kv.Set(ctx, "Monitor_State", `{"seen":[]}`, "live monitor"))
	v, err := kv.Get(ctx, "monitor_state")
	require.NoError(t, err)
	assert.Equal(t, `{"seen":[]}`, v)

	pairs, err := kv.List(ctx)
	require.NoError(t, err)
	assert.Len(t, pairs, 1)

	require.NoError(t, kv.Delete(ctx, "monitor_state"))
	assert.ErrorIs(t, kv.Delete(ctx, "monitor_state"), interfaces.ErrKeyNotFound)
}
