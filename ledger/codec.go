// Package ledger implements the annotation ledger: an ordered sequence of
// slots persisted as a five-column CSV file and rewritten atomically on
// every mutation.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/orian/trendlabel/models"
)

// Decode parses a ledger file. The header must name exactly the five ledger
// columns, in any order. An empty input is an empty ledger.
func Decode(r io.Reader) ([]models.Slot, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", models.ErrLedgerCorruption, err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var slots []models.Slot
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrLedgerCorruption, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d",
				models.ErrLedgerCorruption, line, len(record), len(header))
		}
		slot, err := decodeRecord(record, index)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", models.ErrLedgerCorruption, line, err)
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// columnIndex maps each canonical column to its position in header.
func columnIndex(header []string) ([5]int, error) {
	var index [5]int
	if len(header) != len(models.LedgerHeader) {
		return index, fmt.Errorf("%w: header has %d columns, want %d",
			models.ErrLedgerCorruption, len(header), len(models.LedgerHeader))
	}
	seen := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := seen[name]; dup {
			return index, fmt.Errorf("%w: duplicate column %q", models.ErrLedgerCorruption, name)
		}
		seen[name] = i
	}
	for i, name := range models.LedgerHeader {
		pos, ok := seen[name]
		if !ok {
			return index, fmt.Errorf("%w: missing column %q", models.ErrLedgerCorruption, name)
		}
		index[i] = pos
	}
	return index, nil
}

func decodeRecord(record []string, index [5]int) (models.Slot, error) {
	var fields [5]string
	filled := 0
	for i, pos := range index {
		fields[i] = record[pos]
		if fields[i] != "" {
			filled++
		}
	}
	switch filled {
	case 0:
		return models.Empty(), nil
	case len(fields):
	default:
		return models.Slot{}, fmt.Errorf("partially filled row %q", record)
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 {
		return models.Slot{}, fmt.Errorf("invalid item number %q", fields[0])
	}
	return models.Occupied(models.AnnotationRow{
		ItemNumber: n,
		StartIndex: fields[1],
		EndIndex:   fields[2],
		Label:      fields[3],
		Color:      fields[4],
	}), nil
}

// Encode writes the canonical header followed by one record per slot.
// Empty slots are written as ",,,,".
func Encode(w io.Writer, slots []models.Slot) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(models.LedgerHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	blank := make([]string, len(models.LedgerHeader))
	for _, slot := range slots {
		record := blank
		if row, ok := slot.Row(); ok {
			record = row.Fields()
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
