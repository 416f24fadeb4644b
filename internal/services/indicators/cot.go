// Package indicators maintains slow-moving market indicators: CFTC
// positioning and Fed policy regimes
package indicators

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
	"github.com/ternarybob/aurum/internal/signals"
)

const (
	colMarketName = "Market_and_Exchange_Names"
	colReportDate = "Report_Date_as_YYYY-MM-DD"
	colMarketCode = "CFTC_Market_Code"
	colMoneyLong  = "M_Money_Positions_Long_All"
	colMoneyShort = "M_Money_Positions_Short_All"

	maxArchiveSize = 64 << 20
)

// ErrNotPublished is returned when the yearly archive does not exist yet
var ErrNotPublished = errors.New("COT archive not published")

// COTRow is one weekly managed-money position report
type COTRow struct {
	Date  time.Time
	Long  int64
	Short int64
}

// Net returns longs minus shorts
func (r COTRow) Net() int64 { return r.Long - r.Short }

// COTService downloads the CFTC disaggregated futures reports and stores
// gold managed-money net positioning with its rolling percentile
type COTService struct {
	config     *common.COTConfig
	signals    *common.SignalsConfig
	store      interfaces.IndicatorStorage
	httpClient *http.Client
	logger     arbor.ILogger
}

// NewCOTService creates the service
func NewCOTService(config *common.COTConfig, signalsConfig *common.SignalsConfig, store interfaces.IndicatorStorage, logger arbor.ILogger) *COTService {
	return &COTService{
		config:     config,
		signals:    signalsConfig,
		store:      store,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logger,
	}
}

// ArchiveURL returns the yearly archive url
func (s *COTService) ArchiveURL(year int) string {
	return fmt.Sprintf("%s/com_disagg_txt_%d.zip", strings.TrimRight(s.config.BaseURL, "/"), year)
}

// FetchYear downloads and parses one yearly archive
func (s *COTService) FetchYear(ctx context.Context, year int) ([]COTRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ArchiveURL(year), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %d: %w", year, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%d: %w", year, ErrNotPublished)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %d: status %d", year, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize))
	if err != nil {
		return nil, fmt.Errorf("read %d: %w", year, err)
	}
	return ParseCOTArchive(body, s.config.MarketCode, s.config.MarketName)
}

// ParseCOTArchive reads every CSV member of a zip archive
func ParseCOTArchive(data []byte, marketCode, marketName string) ([]COTRow, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var rows []COTRow
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		part, err := ParseCOT(rc, marketCode, marketName)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name, err)
		}
		rows = append(rows, part...)
	}
	return rows, nil
}

// ParseCOT reads a disaggregated report CSV. Rows are selected by market
// code; when no row carries the code, the market name is used instead.
func ParseCOT(r io.Reader, marketCode, marketName string) ([]COTRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range []string{colMarketName, colReportDate, colMarketCode, colMoneyLong, colMoneyShort} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %s", col)
		}
	}

	field := func(rec []string, col string) string {
		i := idx[col]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var byCode, byName []COTRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		codeMatch := marketCode != "" && field(rec, colMarketCode) == marketCode
		nameMatch := marketName != "" && strings.EqualFold(field(rec, colMarketName), marketName)
		if !codeMatch && !nameMatch {
			continue
		}

		date, err := time.Parse("2006-01-02", field(rec, colReportDate))
		if err != nil {
			continue
		}
		long, errL := strconv.ParseInt(field(rec, colMoneyLong), 10, 64)
		short, errS := strconv.ParseInt(field(rec, colMoneyShort), 10, 64)
		if errL != nil || errS != nil {
			continue
		}

		row := COTRow{Date: date, Long: long, Short: short}
		if codeMatch {
			byCode = append(byCode, row)
		}
		if nameMatch {
			byName = append(byName, row)
		}
	}

	if len(byCode) > 0 {
		return byCode, nil
	}
	return byName, nil
}

// Indicators converts rows to COT_GOLD_NET indicators with rolling percentiles.
// Rows are sorted by date and repeated dates keep the last report.
func Indicators(rows []COTRow, window, minPeriods int) []*models.MarketIndicator {
	byDate := make(map[time.Time]COTRow, len(rows))
	for _, r := range rows {
		byDate[r.Date] = r
	}
	unique := make([]COTRow, 0, len(byDate))
	for _, r := range byDate {
		unique = append(unique, r)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].Date.Before(unique[j].Date) })

	nets := make([]float64, len(unique))
	for i, r := range unique {
		nets[i] = float64(r.Net())
	}
	pcts := signals.RollingPercentiles(nets, window, minPeriods)

	out := make([]*models.MarketIndicator, len(unique))
	for i, r := range unique {
		out[i] = &models.MarketIndicator{
			ID:          models.IndicatorID(models.IndicatorCOTGoldNet, r.Date),
			Timestamp:   r.Date,
			Name:        models.IndicatorCOTGoldNet,
			Value:       nets[i],
			Percentile:  models.Float(pcts[i]),
			Description: fmt.Sprintf("Managed Money: %d Longs, %d Shorts", r.Long, r.Short),
		}
	}
	return out
}

// Run downloads the configured number of years ending at now's year and
// upserts every weekly row. A year that fails is logged and skipped.
func (s *COTService) Run(ctx context.Context, now time.Time) (int, error) {
	years := s.config.Years
	if years <= 0 {
		years = 1
	}

	var rows []COTRow
	for year := now.Year() - years + 1; year <= now.Year(); year++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		part, err := s.FetchYear(ctx, year)
		if err != nil {
			s.logger.Warn().Err(err).Int("year", year).Msg("COT year skipped")
			continue
		}
		s.logger.Info().Int("year", year).Int("rows", len(part)).Msg("COT year parsed")
		rows = append(rows, part...)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("no COT rows found for market %s", s.config.MarketCode)
	}

	indicators := Indicators(rows, s.signals.PercentileWindow, s.signals.PercentileMinPeriod)
	for _, ind := range indicators {
		if err := s.store.SaveIndicator(ctx, ind); err != nil {
			return 0, fmt.Errorf("save %s: %w", ind.ID, err)
		}
	}

	latest := indicators[len(indicators)-1]
	s.logger.Info().
		Int("saved", len(indicators)).
		Float64("net", latest.Value).
		Float64("percentile", *latest.Percentile).
		Str("positioning", signals.Positioning(*latest.Percentile)).
		Msg("COT positioning updated")

	return len(indicators), nil
}
