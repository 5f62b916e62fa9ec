package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// UnmarshalJSON accepts the loose shapes browsers send: indices and item
// numbers may arrive either as JSON numbers or as strings.
func (r *AnnotationRow) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode annotation row: %w", err)
	}

	var row AnnotationRow
	var err error
	if row.StartIndex, err = looseText(raw["Start Index"]); err != nil {
		return fmt.Errorf("decode Start Index: %w", err)
	}
	if row.EndIndex, err = looseText(raw["End Index"]); err != nil {
		return fmt.Errorf("decode End Index: %w", err)
	}
	if row.Label, err = looseText(raw["Label"]); err != nil {
		return fmt.Errorf("decode Label: %w", err)
	}
	if row.Color, err = looseText(raw["Color"]); err != nil {
		return fmt.Errorf("decode Color: %w", err)
	}

	item, err := looseText(raw["Item Number"])
	if err != nil {
		return fmt.Errorf("decode Item Number: %w", err)
	}
	if item != "" {
		n, convErr := strconv.Atoi(item)
		if convErr != nil {
			return fmt.Errorf("decode Item Number %q: %w", item, convErr)
		}
		row.ItemNumber = n
	}

	*r = row
	return nil
}

func looseText(value json.RawMessage) (string, error) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		return "", nil
	}
	switch value[0] {
	case '"':
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		return "", fmt.Errorf("unsupported value %s", value)
	default:
		// numbers and booleans keep their literal text
		return strings.TrimSpace(string(value)), nil
	}
}

// DecodeRows decodes either a single row object or a list of rows.
func DecodeRows(data json.RawMessage) ([]AnnotationRow, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '{' {
		var row AnnotationRow
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, err
		}
		return []AnnotationRow{row}, nil
	}
	var rows []AnnotationRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
