// Package ingest loads recorded headband sessions exported as CSV.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mahidalhan/axon/internal/eeg"
	"github.com/mahidalhan/axon/internal/windowing"
	"go.uber.org/zap"
)

var (
	ErrMissingColumns = errors.New("ingest: missing required columns")
	ErrNoRows         = errors.New("ingest: no data left after cleaning filters")
)

// DefaultHSIThreshold is the worst acceptable horseshoe indicator value.
const DefaultHSIThreshold = 2.5

const timestampColumn = "timestamp"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

// Report counts what the cleaning filters removed.
type Report struct {
	Total        int `json:"total"`
	Kept         int `json:"kept"`
	BadTimestamp int `json:"bad_timestamp"`
	Warmup       int `json:"warmup"`
	PoorContact  int `json:"poor_contact"`
	Malformed    int `json:"malformed"`
}

type Loader struct {
	HSIThreshold float64
	log          *zap.Logger
}

func NewLoader(hsiThreshold float64, log *zap.Logger) *Loader {
	if hsiThreshold <= 0 {
		hsiThreshold = DefaultHSIThreshold
	}
	return &Loader{HSIThreshold: hsiThreshold, log: log}
}

// LoadCSV reads and cleans a session with a no-op logger.
func LoadCSV(r io.Reader, hsiThreshold float64) (windowing.Series, error) {
	s, _, err := NewLoader(hsiThreshold, zap.NewNop()).Load(r)
	return s, err
}

// LoadFile opens path and loads it.
func (l *Loader) LoadFile(path string) (windowing.Series, Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Report{}, fmt.Errorf("failed to open session CSV: %w", err)
	}
	defer f.Close()

	series, report, err := l.Load(f)
	if err != nil {
		return nil, report, fmt.Errorf("%s: %w", path, err)
	}
	l.log.Info("Loaded session CSV",
		zap.String("path", path),
		zap.Int("rows", report.Kept),
		zap.Int("dropped", report.Total-report.Kept))
	return series, report, nil
}

// Load maps headers case-insensitively, keeps the band power and HSI
// columns, and drops rows whose timestamp does not parse, warm-up rows whose
// band powers are all zero, and rows where any HSI column is missing or
// above the threshold. The result is sorted by time.
func (l *Loader) Load(r io.Reader) (windowing.Series, Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var report Report
	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, report, fmt.Errorf("%w: %s", ErrMissingColumns, timestampColumn)
		}
		return nil, report, fmt.Errorf("failed to read csv header: %w", err)
	}

	headerMap := make(map[string]int, len(headers))
	for i, h := range headers {
		headerMap[strings.ToLower(strings.TrimSpace(h))] = i
	}
	tsIdx, ok := headerMap[timestampColumn]
	if !ok {
		return nil, report, fmt.Errorf("%w: %s", ErrMissingColumns, timestampColumn)
	}
	bandIdx := presentColumns(headerMap, eeg.BandColumns())
	hsiIdx := presentColumns(headerMap, eeg.HSIColumns())

	var series windowing.Series
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		report.Total++
		if err != nil {
			report.Malformed++
			continue
		}

		ts, ok := parseTimestamp(field(record, tsIdx))
		if !ok {
			report.BadTimestamp++
			continue
		}

		values := make(map[string]float64, len(bandIdx)+len(hsiIdx))
		var bandSum float64
		for col, idx := range bandIdx {
			if v, ok := parseFloat(field(record, idx)); ok {
				values[col] = v
				bandSum += math.Abs(v)
			}
		}
		if len(bandIdx) > 0 && bandSum == 0 {
			report.Warmup++
			continue
		}

		poor := false
		for col, idx := range hsiIdx {
			v, ok := parseFloat(field(record, idx))
			if !ok || v > l.HSIThreshold {
				poor = true
				break
			}
			values[col] = v
		}
		if poor {
			report.PoorContact++
			continue
		}

		series = append(series, windowing.Row{Timestamp: ts, Values: values})
	}

	report.Kept = len(series)
	if len(series) == 0 {
		return nil, report, ErrNoRows
	}
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	return series, report, nil
}

func presentColumns(headerMap map[string]int, cols []string) map[string]int {
	out := map[string]int{}
	for _, c := range cols {
		if idx, ok := headerMap[c]; ok {
			out[c] = idx
		}
	}
	return out
}

func field(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseTimestamp accepts the layouts above, zone-less ones read as UTC, or
// unix seconds.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	if v, ok := parseFloat(s); ok && v > 0 {
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	}
	return time.Time{}, false
}
