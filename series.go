package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/orian/trendlabel/models"
	"github.com/orian/trendlabel/paths"
)

// Timestamp layouts accepted in the time column. Offset layouts come first;
// a value matching one of them fixes the series timezone.
var (
	offsetLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999-0700",
		"2006-01-02T15:04:05.999999999-0700",
		"2006-01-02 15:04:05.999999999-07",
	}
	localLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
		"2006/01/02 15:04:05",
		"2006/01/02",
	}
)

// DuckDBSeriesReader loads raw data files with DuckDB's CSV sniffer.
type DuckDBSeriesReader struct {
	db         *sql.DB
	resolver   *paths.Resolver
	timeColumn string
	defaultTZ  string
	window     WindowConfig
	log        *slog.Logger
}

// NewDuckDBSeriesReader opens an in-memory DuckDB used only for reading CSVs.
func NewDuckDBSeriesReader(resolver *paths.Resolver, timeColumn, defaultTZ string, window WindowConfig, logger *slog.Logger) (*DuckDBSeriesReader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	return &DuckDBSeriesReader{
		db:         db,
		resolver:   resolver,
		timeColumn: timeColumn,
		defaultTZ:  defaultTZ,
		window:     window,
		log:        logger,
	}, nil
}

func (r *DuckDBSeriesReader) Close() error {
	return r.db.Close()
}

// ReadSeries reads the data file behind identifier, sorted by time.
func (r *DuckDBSeriesReader) ReadSeries(ctx context.Context, identifier string) (*models.Series, error) {
	path, err := r.resolver.RawPath(identifier)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: raw data file %s does not exist", models.ErrPath, identifier)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	defaultLoc, err := models.LoadLocation(r.defaultTZ)
	if err != nil {
		return nil, fmt.Errorf("default timezone: %w", err)
	}

	start := time.Now()
	query := fmt.Sprintf("SELECT * FROM read_csv_auto(%s, header=true, all_varchar=true)", quoteLiteral(path))
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", models.ErrInvalidPredictionInput, identifier, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	timeIdx := -1
	for i, c := range columns {
		if strings.EqualFold(strings.TrimSpace(c), r.timeColumn) {
			timeIdx = i
			break
		}
	}
	if timeIdx < 0 {
		return nil, fmt.Errorf("%w: %s has no %q column", models.ErrInvalidPredictionInput, identifier, r.timeColumn)
	}

	series := &models.Series{}
	for i, c := range columns {
		if i != timeIdx {
			series.Columns = append(series.Columns, c)
		}
	}

	cells := make([]sql.NullString, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range cells {
		dest[i] = &cells[i]
	}

	offsetSeen, offset := false, 0
	for line := 1; rows.Next(); line++ {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s row %d: %w", identifier, line, err)
		}
		ts, hasOffset, err := parseTimestamp(cells[timeIdx].String, defaultLoc)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", models.ErrInvalidPredictionInput, identifier, line, err)
		}
		if hasOffset && !offsetSeen {
			offsetSeen = true
			_, offset = ts.Zone()
		}

		values := make([]float64, 0, len(series.Columns))
		for i, cell := range cells {
			if i == timeIdx {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell.String), 64)
			if !cell.Valid || err != nil {
				return nil, fmt.Errorf("%w: %s row %d column %q: %q is not numeric",
					models.ErrInvalidPredictionInput, identifier, line, columns[i], cell.String)
			}
			values = append(values, v)
		}
		series.Index = append(series.Index, ts)
		series.Values = append(series.Values, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", models.ErrInvalidPredictionInput, identifier, err)
	}
	if series.Len() == 0 {
		return nil, fmt.Errorf("%w: %s has no rows", models.ErrInvalidPredictionInput, identifier)
	}

	series.Timezone = r.defaultTZ
	if offsetSeen {
		series.Timezone = models.OffsetName(offset)
		loc, _ := models.LoadLocation(series.Timezone)
		for i := range series.Index {
			series.Index[i] = series.Index[i].In(loc)
		}
	}

	sortSeries(series)
	applyWindow(series, r.window)

	r.log.Debug("series loaded",
		"file", identifier,
		"rows", series.Len(),
		"columns", len(series.Columns),
		"timezone", series.Timezone,
		"duration_ms", time.Since(start).Milliseconds())
	return series, nil
}

// parseTimestamp reports whether the value carried its own UTC offset.
// Values without one are read in loc.
func parseTimestamp(value string, loc *time.Location) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognized timestamp %q", value)
}

func sortSeries(s *models.Series) {
	order := make([]int, s.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return s.Index[order[a]].Before(s.Index[order[b]])
	})

	index := make([]time.Time, len(order))
	values := make([][]float64, len(order))
	for i, j := range order {
		index[i], values[i] = s.Index[j], s.Values[j]
	}
	s.Index, s.Values = index, values
}

// applyWindow keeps the last DaysTowardsEnd days, then the first
// DaysFromStart days of what is left. Zero disables a bound. s must be sorted.
func applyWindow(s *models.Series, w WindowConfig) {
	keep := func(pred func(time.Time) bool) {
		var index []time.Time
		var values [][]float64
		for i, t := range s.Index {
			if pred(t) {
				index = append(index, t)
				values = append(values, s.Values[i])
			}
		}
		s.Index, s.Values = index, values
	}

	if w.DaysTowardsEnd > 0 && s.Len() > 0 {
		cutoff := s.Index[s.Len()-1].Add(-time.Duration(w.DaysTowardsEnd) * 24 * time.Hour)
		keep(func(t time.Time) bool { return !t.Before(cutoff) })
	}
	if w.DaysFromStart > 0 && s.Len() > 0 {
		cutoff := s.Index[0].Add(time.Duration(w.DaysFromStart) * 24 * time.Hour)
		keep(func(t time.Time) bool { return !t.After(cutoff) })
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
