package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"BankStats/internal/domain/models"
	"BankStats/internal/domain/repository"
	applogger "BankStats/pkg/logger"
	xutil "BankStats/pkg/util"
)

const filePrefix = "stock_data_"

var csvHeader = []string{"date", "open", "high", "low", "close", "volume"}

// CSVPriceStore keeps one CSV file per ticker under dir, named stock_data_<TICKER>.
// Files written by pandas (unnamed index column) are read as well.
type CSVPriceStore struct {
	dir    string
	logger *applogger.Logger

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewCSVPriceStore creates dir if needed.
func NewCSVPriceStore(dir string, logger *applogger.Logger) (*CSVPriceStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if logger == nil {
		logger = applogger.Nop()
	}
	return &CSVPriceStore{dir: dir, logger: logger, locks: make(map[string]*sync.RWMutex)}, nil
}

func (s *CSVPriceStore) path(ticker string) string {
	return filepath.Join(s.dir, filePrefix+ticker)
}

func (s *CSVPriceStore) lock(ticker string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[ticker]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[ticker] = l
	}
	return l
}

func (s *CSVPriceStore) Load(ctx context.Context, ticker string) (models.PriceSeries, error) {
	return s.LoadRange(ctx, ticker, time.Time{}, time.Time{})
}

func (s *CSVPriceStore) LoadRange(_ context.Context, ticker string, from, to time.Time) (models.PriceSeries, error) {
	ticker = repository.NormalizeTicker(ticker)
	if !repository.IsValidTicker(ticker) {
		return models.PriceSeries{}, fmt.Errorf("invalid ticker %q", ticker)
	}

	l := s.lock(ticker)
	l.RLock()
	f, err := os.Open(s.path(ticker))
	if err != nil {
		l.RUnlock()
		if errors.Is(err, os.ErrNotExist) {
			return models.PriceSeries{}, fmt.Errorf("%s: %w", ticker, models.ErrMissingData)
		}
		return models.PriceSeries{}, fmt.Errorf("open %s: %w", ticker, err)
	}
	records, err := readRecords(f)
	_ = f.Close()
	l.RUnlock()
	if err != nil {
		return models.PriceSeries{}, fmt.Errorf("read %s: %w", ticker, err)
	}

	series := models.PriceSeries{Ticker: ticker}
	for _, r := range records {
		if !from.IsZero() && r.Date.Before(from) {
			continue
		}
		if !to.IsZero() && r.Date.After(to) {
			continue
		}
		series.Records = append(series.Records, r)
	}
	if series.Empty() {
		return series, fmt.Errorf("%s: %w", ticker, models.ErrMissingData)
	}
	return series.Sorted(), nil
}

// Save writes through a temp file and renames it so readers never see a partial file.
func (s *CSVPriceStore) Save(_ context.Context, series models.PriceSeries) error {
	ticker := repository.NormalizeTicker(series.Ticker)
	if !repository.IsValidTicker(ticker) {
		return fmt.Errorf("invalid ticker %q", series.Ticker)
	}
	if series.Empty() {
		return fmt.Errorf("save %s: %w", ticker, models.ErrMissingData)
	}

	l := s.lock(ticker)
	l.Lock()
	defer l.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+filePrefix+ticker+"-*")
	if err != nil {
		return fmt.Errorf("save %s: %w", ticker, err)
	}
	defer os.Remove(tmp.Name())

	if err := writeRecords(tmp, series.Sorted().Records); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save %s: %w", ticker, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save %s: %w", ticker, err)
	}
	if err := os.Rename(tmp.Name(), s.path(ticker)); err != nil {
		return fmt.Errorf("save %s: %w", ticker, err)
	}
	s.logger.Debug("price series saved",
		applogger.String("ticker", ticker),
		applogger.Int("records", series.Len()),
	)
	return nil
}

func (s *CSVPriceStore) Tickers(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list data dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) {
			continue
		}
		if t := strings.TrimPrefix(name, filePrefix); repository.IsValidTicker(t) {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out, nil
}

func writeRecords(w io.Writer, records []models.PriceRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	row := make([]string, len(csvHeader))
	for _, r := range records {
		row[0] = r.Date.Format(xutil.DateLayout)
		row[1] = formatPrice(r.Open)
		row[2] = formatPrice(r.High)
		row[3] = formatPrice(r.Low)
		row[4] = formatPrice(r.Close)
		row[5] = strconv.FormatInt(r.Volume, 10)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatPrice writes gaps as empty cells, the way pandas writes NaN.
func formatPrice(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// readRecords maps columns by header name. The first column is the date
// whether it is called "date" or left unnamed.
func readRecords(r io.Reader) ([]models.PriceRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	col := func(name string) (int, error) {
		if i, ok := idx[name]; ok {
			return i, nil
		}
		return 0, fmt.Errorf("missing column %q", name)
	}
	dateCol := 0
	if i, ok := idx["date"]; ok {
		dateCol = i
	}
	var cols [5]int
	for i, name := range []string{"open", "high", "low", "close", "volume"} {
		if cols[i], err = col(name); err != nil {
			return nil, err
		}
	}

	var out []models.PriceRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rec, err := parseRow(row, dateCol, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(row []string, dateCol int, cols [5]int) (models.PriceRecord, error) {
	get := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	date, err := xutil.ParseDate(get(dateCol))
	if err != nil {
		return models.PriceRecord{}, err
	}
	// empty cells are gaps: NaN prices, zero volume
	var px [4]float64
	for i := 0; i < 4; i++ {
		cell := get(cols[i])
		if cell == "" {
			px[i] = math.NaN()
			continue
		}
		if px[i], err = strconv.ParseFloat(cell, 64); err != nil {
			return models.PriceRecord{}, fmt.Errorf("bad price %q", cell)
		}
	}
	var vol float64
	if cell := get(cols[4]); cell != "" {
		if vol, err = strconv.ParseFloat(cell, 64); err != nil || math.IsNaN(vol) || math.IsInf(vol, 0) {
			return models.PriceRecord{}, fmt.Errorf("bad volume %q", cell)
		}
	}
	return models.PriceRecord{
		Date:   date,
		Open:   px[0],
		High:   px[1],
		Low:    px[2],
		Close:  px[3],
		Volume: int64(vol),
	}, nil
}

var _ repository.PriceStore = (*CSVPriceStore)(nil)
