package models

import (
	"fmt"
	"time"
)

// Series is a time-indexed numeric table read from a raw data file.
type Series struct {
	// Index holds one timestamp per row, ascending.
	Index []time.Time `json:"index"`

	// Columns names the value columns, in file order.
	Columns []string `json:"columns"`

	// Values is row-major: Values[i][j] is column j at Index[i].
	Values [][]float64 `json:"values"`

	// Timezone is the detected or defaulted zone name of Index.
	Timezone string `json:"timezone"`
}

// Len returns the number of rows.
func (s *Series) Len() int {
	return len(s.Index)
}

// LoadLocation resolves a session timezone name. Besides IANA names it
// accepts fixed offsets in the "+05:30" / "-0800" form produced for raw
// timestamps that carry an explicit offset. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "UTC", "Z":
		return time.UTC, nil
	}
	if name[0] == '+' || name[0] == '-' {
		for _, layout := range []string{"-07:00", "-0700", "-07"} {
			if t, err := time.Parse(layout, name); err == nil {
				_, offset := t.Zone()
				return time.FixedZone(name, offset), nil
			}
		}
		return nil, fmt.Errorf("invalid utc offset %q", name)
	}
	return time.LoadLocation(name)
}

// OffsetName renders a UTC offset in seconds as a zone name accepted by
// LoadLocation: "UTC" for zero, "+HH:MM" otherwise.
func OffsetName(offset int) string {
	if offset == 0 {
		return "UTC"
	}
	sign := '+'
	if offset < 0 {
		sign, offset = '-', -offset
	}
	return fmt.Sprintf("%c%02d:%02d", sign, offset/3600, offset%3600/60)
}
