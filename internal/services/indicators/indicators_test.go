package indicators

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
)

const cotHeader = `"Market_and_Exchange_Names","As_of_Date_In_Form_YYMMDD","Report_Date_as_YYYY-MM-DD","CFTC_Contract_Market_Code","CFTC_Market_Code","M_Money_Positions_Long_All","M_Money_Positions_Short_All"`

func cotCSV(rows ...string) string {
	return cotHeader + "\n" + strings.Join(rows, "\n") + "\n"
}

func zipOf(t *testing.T, name, content string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type memIndicators struct {
	mu   sync.Mutex
	rows map[string]*models.MarketIndicator
}

func newMemIndicators() *memIndicators {
	return &memIndicators{rows: map[string]*models.MarketIndicator{}}
}

func (m *memIndicators) SaveIndicator(ctx context.Context, ind *models.MarketIndicator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[ind.ID] = ind
	return nil
}

func (m *memIndicators) ListIndicators(ctx context.Context, name string) ([]*models.MarketIndicator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.MarketIndicator
	for _, r := range m.rows {
		if r.Name == name {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *memIndicators) GetLatestIndicator(ctx context.Context, name string) (*models.MarketIndicator, error) {
	rows, _ := m.ListIndicators(ctx, name)
	if len(rows) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return rows[len(rows)-1], nil
}

func (m *memIndicators) GetIndicatorAt(ctx context.Context, name string, at time.Time) (*models.MarketIndicator, error) {
	rows, _ := m.ListIndicators(ctx, name)
	var best *models.MarketIndicator
	for _, r := range rows {
		if !r.Timestamp.After(at) {
			best = r
		}
	}
	if best == nil {
		return nil, interfaces.ErrNotFound
	}
	return best, nil
}

func TestParseCOT(t *testing.T) {
	data := cotCSV(
		`"GOLD - COMMODITY EXCHANGE INC.",250107,2025-01-07,"088691","088691",200000,50000`,
		`"SILVER - COMMODITY EXCHANGE INC.",250107,2025-01-07,"084691","084691",10,5`,
		`"GOLD - COMMODITY EXCHANGE INC.",241231,2024-12-31,"088691","088691",190000,60000`,
	)
	rows, err := ParseCOT(strings.NewReader(data), "088691", "GOLD - COMMODITY EXCHANGE INC.")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(150000), rows[0].Net())

	// Unknown code falls back to the market name
	rows, err = ParseCOT(strings.NewReader(data), "999999", "gold - commodity exchange inc.")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = ParseCOT(strings.NewReader("a,b\n1,2\n"), "088691", "")
	assert.Error(t, err)
}

func TestIndicators(t *testing.T) {
	var rows []COTRow
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		rows = append(rows, COTRow{Date: start.AddDate(0, 0, 7*i), Long: int64(1000 + i*10), Short: 500})
	}
	// Duplicate report for the first week
	rows = append(rows, COTRow{Date: start, Long: 1000, Short: 500})

	out := Indicators(rows, 156, 20)
	require.Len(t, out, 25)
	assert.Equal(t, models.IndicatorCOTGoldNet, out[0].Name)
	assert.Equal(t, 500.0, out[0].Value)
	assert.Equal(t, 50.0, *out[0].Percentile)
	assert.Equal(t, 100.0, *out[24].Percentile)
	assert.Equal(t, "Managed Money: 1240 Longs, 500 Shorts", out[24].Description)
}

func TestCOTService_Run(t *testing.T) {
	archive := zipOf(t, "c_year.txt", cotCSV(
		`"GOLD - COMMODITY EXCHANGE INC.",250107,2025-01-07,"088691","088691",200000,50000`,
		`"GOLD - COMMODITY EXCHANGE INC.",250114,2025-01-14,"088691","088691",210000,40000`,
	))

	var paths []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/com_disagg_txt_2025.zip" {
			_, _ = w.Write(archive)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := common.NewDefaultConfig()
	cfg.COT.BaseURL = srv.URL + "/"
	cfg.COT.Years = 2
	store := newMemIndicators()

	svc := NewCOTService(&cfg.COT, &cfg.Signals, store, arbor.NewLogger())
	n, err := svc.Run(t.Context(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"/com_disagg_txt_2025.zip", "/com_disagg_txt_2026.zip"}, paths)

	latest, err := store.GetLatestIndicator(t.Context(), models.IndicatorCOTGoldNet)
	require.NoError(t, err)
	assert.Equal(t, 170000.0, latest.Value)
	assert.Equal(t, "Managed Money: 210000 Longs, 40000 Shorts", latest.Description)
	assert.Equal(t, fmt.Sprintf("%s|2025-01-14T00:00:00Z", models.IndicatorCOTGoldNet), latest.ID)

	// Nothing published at all
	cfg.COT.BaseURL = srv.URL + "/missing"
	_, err = svc.Run(t.Context(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}

func TestSeedRegimes(t *testing.T) {
	store := newMemIndicators()
	ctx := t.Context()

	n, err := SeedRegimes(ctx, store, "", arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Idempotent
	_, err = SeedRegimes(ctx, store, "", arbor.NewLogger())
	require.NoError(t, err)
	rows, _ := store.ListIndicators(ctx, models.IndicatorFedRegime)
	assert.Len(t, rows, 3)

	r, err := RegimeAt(ctx, store, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.Value)

	r, err = RegimeAt(ctx, store, time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, r)

	path := filepath.Join(t.TempDir(), "regimes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("regimes:\n  - date: 2025-12-10\n    value: 1\n    description: Dovish\n"), 0o644))
	n, err = SeedRegimes(ctx, store, path, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = SeedRegimes(ctx, store, filepath.Join(t.TempDir(), "nope.yaml"), arbor.NewLogger())
	assert.Error(t, err)
}
