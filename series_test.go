package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orian/trendlabel/models"
	"github.com/orian/trendlabel/paths"
)

func TestParseTimestamp(t *testing.T) {
	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)

	tests := []struct {
		value      string
		want       time.Time
		wantOffset bool
	}{
		{"2024-03-01T08:00:00Z", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), true},
		{"2024-03-01T08:00:00+01:00", time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC), true},
		{"2024-03-01 08:00:00+05:30", time.Date(2024, 3, 1, 2, 30, 0, 0, time.UTC), true},
		{"2024-03-01 08:00:00.250-0700", time.Date(2024, 3, 1, 15, 0, 0, 250e6, time.UTC), true},
		{"2024-03-01 08:00:00", time.Date(2024, 3, 1, 8, 0, 0, 0, warsaw), false},
		{"2024-03-01T08:00:00.5", time.Date(2024, 3, 1, 8, 0, 0, 500e6, warsaw), false},
		{" 2024-03-01 08:00 ", time.Date(2024, 3, 1, 8, 0, 0, 0, warsaw), false},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, warsaw), false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, hasOffset, err := parseTimestamp(tt.value, warsaw)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
			assert.Equal(t, tt.wantOffset, hasOffset)
		})
	}

	_, _, err = parseTimestamp("yesterday", warsaw)
	assert.Error(t, err)
}

func daySeries(days ...int) *models.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &models.Series{Columns: []string{"v"}}
	for _, d := range days {
		s.Index = append(s.Index, start.AddDate(0, 0, d))
		s.Values = append(s.Values, []float64{float64(d)})
	}
	return s
}

func seriesDays(s *models.Series) []int {
	days := []int{}
	for _, v := range s.Values {
		days = append(days, int(v[0]))
	}
	return days
}

func TestApplyWindow(t *testing.T) {
	tests := []struct {
		name   string
		window WindowConfig
		want   []int
	}{
		{name: "no window", want: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{name: "last days", window: WindowConfig{DaysTowardsEnd: 3}, want: []int{6, 7, 8, 9}},
		{name: "first days", window: WindowConfig{DaysFromStart: 2}, want: []int{0, 1, 2}},
		{name: "first days of the last days", window: WindowConfig{DaysTowardsEnd: 5, DaysFromStart: 1}, want: []int{4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := daySeries(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
			applyWindow(s, tt.window)
			assert.Equal(t, tt.want, seriesDays(s))
			assert.Len(t, s.Index, len(tt.want))
		})
	}
}

func TestSortSeries(t *testing.T) {
	s := daySeries(3, 1, 2, 0)
	sortSeries(s)
	assert.Equal(t, []int{0, 1, 2, 3}, seriesDays(s))
	for i := 1; i < s.Len(); i++ {
		assert.True(t, s.Index[i-1].Before(s.Index[i]))
	}
}

func newTestReader(t *testing.T, files map[string]string, tz string) *DuckDBSeriesReader {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	reader, err := NewDuckDBSeriesReader(paths.NewResolver(root, root), "date", tz, WindowConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })
	return reader
}

func TestDuckDBSeriesReaderOffsets(t *testing.T) {
	reader := newTestReader(t, map[string]string{
		"Raw/ecg/p01.csv": "date,lead1,lead2\n" +
			"2024-03-01 08:02:00+01:00,3,30\n" +
			"2024-03-01 08:00:00+01:00,1,10\n" +
			"2024-03-01 08:01:00+01:00,2,20.5\n",
	}, "UTC")

	s, err := reader.ReadSeries(context.Background(), "Raw/ecg/p01.csv")
	require.NoError(t, err)

	assert.Equal(t, "+01:00", s.Timezone)
	assert.Equal(t, []string{"lead1", "lead2"}, s.Columns)
	assert.Equal(t, [][]float64{{1, 10}, {2, 20.5}, {3, 30}}, s.Values)
	require.Len(t, s.Index, 3)
	assert.True(t, time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC).Equal(s.Index[0]))
	_, offset := s.Index[0].Zone()
	assert.Equal(t, 3600, offset)
}

func TestDuckDBSeriesReaderLocalTimes(t *testing.T) {
	reader := newTestReader(t, map[string]string{
		"Raw/p02.csv": "value,Date\n5,2024-03-01 08:00:00\n6,2024-03-01 08:05:00\n",
	}, "America/New_York")

	s, err := reader.ReadSeries(context.Background(), "Raw/p02.csv")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", s.Timezone)
	assert.Equal(t, []string{"value"}, s.Columns)
	assert.True(t, time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC).Equal(s.Index[0]))
}

func TestDuckDBSeriesReaderErrors(t *testing.T) {
	reader := newTestReader(t, map[string]string{
		"Raw/text.csv":    "date,value\n2024-03-01 08:00:00,abc\n",
		"Raw/notime.csv":  "when,value\n2024-03-01 08:00:00,1\n",
		"Raw/badtime.csv": "date,value\nlater,1\n",
		"Raw/header.csv":  "date,value\n",
	}, "UTC")

	tests := []struct {
		file string
		want error
	}{
		{"Raw/missing.csv", models.ErrPath},
		{"../outside.csv", models.ErrPath},
		{"Raw/text.csv", models.ErrInvalidPredictionInput},
		{"Raw/notime.csv", models.ErrInvalidPredictionInput},
		{"Raw/badtime.csv", models.ErrInvalidPredictionInput},
		{"Raw/header.csv", models.ErrInvalidPredictionInput},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, err := reader.ReadSeries(context.Background(), tt.file)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
