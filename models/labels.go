package models

import (
	"fmt"
	"strconv"
	"strings"
)

// LabelSpec maps one predicted label value to its display text and color.
//
// Examples:
//   - {Label: 0, Value: "No trend", Color: "black"}
//   - {Label: 3, Value: "Moderate positive trend", Color: "green"}
type LabelSpec struct {
	// Label is the integer produced by the model.
	Label int `json:"label" yaml:"label" validate:"gte=0"`

	// Value is the label text written into the ledger.
	Value string `json:"value" yaml:"value" validate:"required"`

	// Color is the color token written into the ledger.
	Color string `json:"Color" yaml:"color" validate:"required"`
}

// DefaultLabels returns the five-level trend vocabulary.
func DefaultLabels() []LabelSpec {
	return []LabelSpec{
		{Label: 0, Value: "No trend", Color: "black"},
		{Label: 1, Value: "Moderate negative trend", Color: "orange"},
		{Label: 2, Value: "Very strong negative trend", Color: "red"},
		{Label: 3, Value: "Moderate positive trend", Color: "green"},
		{Label: 4, Value: "Very strong positive trend", Color: "blue"},
	}
}

// ParseLabelSpec parses the compact "value=text@color" form.
//
// Examples:
//   - "3=Moderate positive trend@green" -> {3, "Moderate positive trend", "green"}
//   - "0=No trend" -> {0, "No trend", DefaultColor}
func ParseLabelSpec(s string) (LabelSpec, error) {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 {
		return LabelSpec{}, fmt.Errorf("label spec %q: missing '='", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return LabelSpec{}, fmt.Errorf("label spec %q: %w", s, err)
	}

	text, color := parts[1], DefaultColor
	if i := strings.LastIndex(text, "@"); i >= 0 {
		text, color = text[:i], strings.TrimSpace(text[i+1:])
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return LabelSpec{}, fmt.Errorf("label spec %q: empty label text", s)
	}
	if color == "" {
		color = DefaultColor
	}
	return LabelSpec{Label: n, Value: text, Color: color}, nil
}

// Format returns the compact "value=text@color" form.
func (l LabelSpec) Format() string {
	return fmt.Sprintf("%d=%s@%s", l.Label, l.Value, l.Color)
}

// LabelMapping indexes specs by label value, rejecting duplicates.
func LabelMapping(specs []LabelSpec) (map[int]LabelSpec, error) {
	mapping := make(map[int]LabelSpec, len(specs))
	for _, spec := range specs {
		if _, dup := mapping[spec.Label]; dup {
			return nil, fmt.Errorf("duplicate label value %d", spec.Label)
		}
		mapping[spec.Label] = spec
	}
	return mapping, nil
}
