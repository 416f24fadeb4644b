package sqlite

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

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	m, err := NewManager(arbor.NewLogger(), &common.SQLiteConfig{Path: filepath.Join(t.TempDir(), "aurum.db")})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestIntelligenceStorage_UniqueSourceID(t *testing.T) {
	ctx := context.Background()
	store := newTestManager(t).IntelligenceStorage()

	ts := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	rec := &models.IntelligenceRecord{
		SourceID:  "gn-1",
		Timestamp: ts,
		Content:   "Gold rallies. Fed pauses",
		URL:       "https://example.com/gn-1",
		Summary:   models.NewLocalizedText("en", "Gold rallies after the Fed pauses", "zh", "金价上涨"),
	}
	id, created, err := store.SaveIntelligence(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)

	again := *rec
	again.ID = ""
	id2, created, err := store.SaveIntelligence(ctx, &again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, id2)

	got, err := store.GetIntelligence(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "金价上涨", got.Summary.Preferred())
	assert.Nil(t, got.GoldPriceSnapshot)

	dup, err := store.IsDuplicate(ctx, "", "https://example.com/gn-1")
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestIntelligenceStorage_EnrichAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestManager(t).IntelligenceStorage()

	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id, _, err := store.SaveIntelligence(ctx, &models.IntelligenceRecord{
			SourceID:  string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Summary:   models.NewLocalizedText("en", "summary"),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	missing, err := store.ListMissingEnrichment(ctx, 2)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	assert.Equal(t, ids[0], missing[0].ID)

	zero := 0.0
	rec := missing[0]
	rec.ApplySnapshot(models.Snapshot{
		Gold: models.Float(1), DXY: models.Float(2), US10Y: models.Float(3), GVZ: models.Float(4),
		Price1h: models.Float(5), Price24h: models.Float(6),
	}, true)
	rec.ClusteringScore = &zero
	rec.ExhaustionScore = &zero
	rec.MarketSession = models.SessionUS
	require.NoError(t, store.UpdateEnrichment(ctx, rec))

	missing, err = store.ListMissingEnrichment(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, missing, 2)

	deleted, err := store.DeleteIntelligenceBatch(ctx, ids[1:])
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	records, err := store.ListIntelligence(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].ClusteringScore)
	assert.Equal(t, 0.0, *records[0].ClusteringScore)
}

func TestIndicatorAndKVStorage(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	p := 91.0
	ind := m.IndicatorStorage()
	require.NoError(t, ind.SaveIndicator(ctx, &models.MarketIndicator{
		Timestamp: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), Name: models.IndicatorCOTGoldNet, Value: 150000, Percentile: &p,
	}))
	require.NoError(t, ind.SaveIndicator(ctx, &models.MarketIndicator{
		Timestamp: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), Name: models.IndicatorCOTGoldNet, Value: 160000, Percentile: &p,
	}))

	rows, err := ind.ListIndicators(ctx, models.IndicatorCOTGoldNet)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 160000.0, rows[0].Value)

	_, err = ind.GetIndicatorAt(ctx, models.IndicatorCOTGoldNet, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	kv := m.KeyValueStorage()
	require.NoError(t, kv.Set(ctx, "STATE", "one", ""))
	require.NoError(t, kv.Set(ctx, "state", "two", ""))
	v, err := kv.Get(ctx, "state")
	require.NoError(t, err)
	assert.Equal(t, "two", v)

	require.NoError(t, m.WatchlistStorage().AddWatchlistCode(ctx, "gld"))
	require.NoError(t, m.WatchlistStorage().AddWatchlistCode(ctx, "GLD"))
	codes, err := m.WatchlistStorage().GetWatchlistCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"GLD"}, codes)
}
