// Package ranges turns per-timestep model predictions into the minimal list
// of contiguous labeled time ranges.
package ranges

import (
	"fmt"
	"sort"
	"time"

	"github.com/orian/trendlabel/models"
)

// Interval returns the sampling interval of index: the most frequent delta
// between consecutive entries, the smallest one on ties.
func Interval(index []time.Time) (time.Duration, error) {
	if len(index) < 2 {
		return 0, fmt.Errorf("%w: need at least two timestamps to detect an interval, got %d",
			models.ErrInvalidPredictionInput, len(index))
	}
	counts := make(map[time.Duration]int, len(index))
	for i := 1; i < len(index); i++ {
		counts[index[i].Sub(index[i-1])]++
	}
	deltas := make([]time.Duration, 0, len(counts))
	for d := range counts {
		deltas = append(deltas, d)
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })

	best := deltas[0]
	for _, d := range deltas[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}
	if best <= 0 {
		return 0, fmt.Errorf("%w: index is not increasing (modal delta %s)", models.ErrInvalidPredictionInput, best)
	}
	return best, nil
}

// Build run-length encodes labels over time. The timestamp of prediction i
// is index[0] + i*interval, so the label array may be shorter or longer than
// the index it was predicted from. Ranges are numbered 1..k, ordered by
// time, and rendered in loc (the index's own location when loc is nil).
func Build(index []time.Time, labels []int, mapping map[int]models.LabelSpec, loc *time.Location) ([]models.PredictionRange, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: no predictions", models.ErrInvalidPredictionInput)
	}
	if len(index) == 0 {
		return nil, fmt.Errorf("%w: empty time index", models.ErrInvalidPredictionInput)
	}
	for i, l := range labels {
		if _, ok := mapping[l]; !ok {
			return nil, fmt.Errorf("%w: label value %d at position %d has no mapping",
				models.ErrInvalidPredictionInput, l, i)
		}
	}

	var step time.Duration
	if len(labels) > 1 {
		var err error
		if step, err = Interval(index); err != nil {
			return nil, err
		}
	}
	origin := index[0]
	if loc != nil {
		origin = origin.In(loc)
	}
	at := func(i int) time.Time { return origin.Add(time.Duration(i) * step) }

	var out []models.PredictionRange
	emit := func(start, end int) {
		spec := mapping[labels[start]]
		out = append(out, models.PredictionRange{
			ItemNumber: len(out) + 1,
			Start:      at(start),
			End:        at(end),
			Label:      spec.Value,
			Color:      spec.Color,
		})
	}

	start := 0
	for i := 1; i < len(labels); i++ {
		if labels[i] != labels[start] {
			emit(start, i-1)
			start = i
		}
	}
	emit(start, len(labels)-1)
	return out, nil
}

// FormatTimestamp renders t as YYYY-MM-DDTHH:MM:SS[.ffffff]±HH:MM, printing
// microseconds only when they are non-zero.
func FormatTimestamp(t time.Time) string {
	if t.Nanosecond()/1000 != 0 {
		return t.Format("2006-01-02T15:04:05.000000-07:00")
	}
	return t.Format("2006-01-02T15:04:05-07:00")
}

// ToRows converts ranges into ledger rows with formatted timestamps.
func ToRows(ranges []models.PredictionRange) []models.AnnotationRow {
	rows := make([]models.AnnotationRow, 0, len(ranges))
	for _, r := range ranges {
		rows = append(rows, models.AnnotationRow{
			ItemNumber: r.ItemNumber,
			StartIndex: FormatTimestamp(r.Start),
			EndIndex:   FormatTimestamp(r.End),
			Label:      r.Label,
			Color:      r.Color,
		})
	}
	return rows
}
