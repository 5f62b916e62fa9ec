package ranges

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orian/trendlabel/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func grid(n int, step time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = t0.Add(time.Duration(i) * step)
	}
	return out
}

func mapping(t *testing.T) map[int]models.LabelSpec {
	m, err := models.LabelMapping(models.DefaultLabels())
	require.NoError(t, err)
	return m
}

func TestInterval(t *testing.T) {
	tests := []struct {
		name    string
		index   []time.Time
		want    time.Duration
		wantErr bool
	}{
		{name: "regular", index: grid(5, time.Minute), want: time.Minute},
		{
			name:  "mode wins over gaps",
			index: []time.Time{t0, t0.Add(time.Second), t0.Add(2 * time.Second), t0.Add(10 * time.Second), t0.Add(11 * time.Second)},
			want:  time.Second,
		},
		{
			name:  "tie picks smallest",
			index: []time.Time{t0, t0.Add(2 * time.Second), t0.Add(3 * time.Second)},
			want:  time.Second,
		},
		{name: "single entry", index: grid(1, time.Second), wantErr: true},
		{
			name:    "duplicate timestamps",
			index:   []time.Time{t0, t0, t0, t0.Add(time.Second)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interval(tt.index)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidPredictionInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildConstantLabels(t *testing.T) {
	const n = 50
	labels := make([]int, n)
	for i := range labels {
		labels[i] = 3
	}

	got, err := Build(grid(n, time.Second), labels, mapping(t), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.PredictionRange{
		ItemNumber: 1,
		Start:      t0,
		End:        t0.Add((n - 1) * time.Second),
		Label:      "Moderate positive trend",
		Color:      "green",
	}, got[0])
}

func TestBuildAlternatingLabels(t *testing.T) {
	got, err := Build(grid(4, time.Second), []int{0, 1, 0, 1}, mapping(t), nil)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, r := range got {
		assert.Equal(t, i+1, r.ItemNumber)
		assert.Equal(t, r.Start, r.End, "each range covers one timestep")
		assert.Equal(t, t0.Add(time.Duration(i)*time.Second), r.Start)
	}
	assert.Equal(t, "No trend", got[0].Label)
	assert.Equal(t, "Moderate negative trend", got[1].Label)
}

func TestBuildRunsCoverSeriesWithoutGaps(t *testing.T) {
	labels := []int{2, 2, 2, 4, 4, 0, 1, 1}
	got, err := Build(grid(len(labels), time.Minute), labels, mapping(t), nil)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, t0, got[0].Start)
	for i := 1; i < len(got); i++ {
		assert.Equal(t, got[i-1].End.Add(time.Minute), got[i].Start)
	}
	assert.Equal(t, t0.Add(7*time.Minute), got[len(got)-1].End)
}

func TestBuildSingleTimestep(t *testing.T) {
	got, err := Build(grid(1, time.Second), []int{4}, mapping(t), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, t0, got[0].Start)
	assert.Equal(t, t0, got[0].End)
	assert.Equal(t, "blue", got[0].Color)
}

func TestBuildSynthesizesGridBeyondIndex(t *testing.T) {
	got, err := Build(grid(3, time.Second), []int{0, 0, 0, 0, 1}, mapping(t), nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, t0.Add(3*time.Second), got[0].End)
	assert.Equal(t, t0.Add(4*time.Second), got[1].Start)
}

func TestBuildErrors(t *testing.T) {
	m := mapping(t)
	tests := []struct {
		name   string
		index  []time.Time
		labels []int
	}{
		{name: "no labels", index: grid(3, time.Second), labels: nil},
		{name: "no index", index: nil, labels: []int{0}},
		{name: "unmapped label", index: grid(3, time.Second), labels: []int{0, 9, 0}},
		{name: "single timestamp many labels", index: grid(1, time.Second), labels: []int{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.index, tt.labels, m, nil)
			assert.ErrorIs(t, err, models.ErrInvalidPredictionInput)
		})
	}
}

func TestBuildInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	got, err := Build(grid(2, time.Hour), []int{0, 0}, mapping(t), loc)
	require.NoError(t, err)

	rows := ToRows(got)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-01-01T02:00:00+02:00", rows[0].StartIndex)
	assert.Equal(t, "2024-01-01T03:00:00+02:00", rows[0].EndIndex)
	assert.Equal(t, "No trend", rows[0].Label)
	assert.Equal(t, "black", rows[0].Color)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "2024-01-01T00:00:00+00:00", FormatTimestamp(t0))
	assert.Equal(t, "2024-01-01T00:00:00.500000+00:00", FormatTimestamp(t0.Add(500*time.Millisecond)))
	assert.Equal(t, "2024-01-01T00:00:00+00:00", FormatTimestamp(t0.Add(10*time.Nanosecond)))
}
