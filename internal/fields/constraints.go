package fields

import (
	"encoding/json"
	"time"

	"github.com/fieldgate/fieldgate/internal/shared"
)

// Constraints is the tagged constraint variant for one field type. Exactly
// the constraint struct matching the field's type may be attached to a
// Field; choice types carry no constraints at all.
type Constraints interface {
	appliesTo() FieldType
}

// TextConstraints bounds the length of a text value.
type TextConstraints struct {
	MinLength *int `json:"min_length,omitempty"`
	MaxLength *int `json:"max_length,omitempty"`
}

// NumberConstraints bounds the range of a numeric value.
type NumberConstraints struct {
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`
}

// DateConstraints bounds a date value; both bounds are ISO-8601 strings.
type DateConstraints struct {
	MinDate *string `json:"min_date,omitempty"`
	MaxDate *string `json:"max_date,omitempty"`
}

// DocumentConstraints restricts uploaded document references.
type DocumentConstraints struct {
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
	MaxSizeMB         *float64 `json:"max_size_mb,omitempty"`
}

func (TextConstraints) appliesTo() FieldType     { return TypeText }
func (NumberConstraints) appliesTo() FieldType   { return TypeNumber }
func (DateConstraints) appliesTo() FieldType     { return TypeDate }
func (DocumentConstraints) appliesTo() FieldType { return TypeDocument }

// ValidatorKeys returns the constraint keys a field type accepts, keyed to a
// short description of the expected value. Choice types accept none.
func ValidatorKeys(t FieldType) map[string]string {
	switch t {
	case TypeText:
		return map[string]string{"min_length": "number", "max_length": "number"}
	case TypeNumber:
		return map[string]string{"min_value": "number", "max_value": "number"}
	case TypeDate:
		return map[string]string{"min_date": "date", "max_date": "date"}
	case TypeDocument:
		return map[string]string{"allowed_extensions": "list[str]", "max_size_mb": "number"}
	default:
		return map[string]string{}
	}
}

// DecodeConstraints parses a raw constraint bag for the given field type,
// rejecting keys the type does not support. A nil or empty bag yields nil.
func DecodeConstraints(t FieldType, raw json.RawMessage) (Constraints, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var bag map[string]json.RawMessage
	if err := json.Unmarshal(raw, &bag); err != nil {
		return nil, shared.Fail(shared.ErrInvalidInput, "validation must be a JSON object")
	}
	if len(bag) == 0 {
		return nil, nil
	}

	allowed := ValidatorKeys(t)
	for key := range bag {
		if _, ok := allowed[key]; !ok {
			return nil, shared.Failf(shared.ErrInvalidInput, "validation key %q is not allowed for field type %q", key, t)
		}
	}

	switch t {
	case TypeText:
		var c TextConstraints
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, shared.Fail(shared.ErrInvalidInput, "invalid text validation constraints")
		}
		return c, nil
	case TypeNumber:
		var c NumberConstraints
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, shared.Fail(shared.ErrInvalidInput, "invalid number validation constraints")
		}
		return c, nil
	case TypeDate:
		var c DateConstraints
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, shared.Fail(shared.ErrInvalidInput, "invalid date validation constraints")
		}
		for _, bound := range []*string{c.MinDate, c.MaxDate} {
			if bound == nil {
				continue
			}
			if _, err := ParseISODate(*bound); err != nil {
				return nil, shared.Failf(shared.ErrInvalidInput, "date bound %q is not ISO-8601", *bound)
			}
		}
		return c, nil
	case TypeDocument:
		var c DocumentConstraints
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, shared.Fail(shared.ErrInvalidInput, "invalid document validation constraints")
		}
		return c, nil
	default:
		return nil, shared.Failf(shared.ErrInvalidInput, "field type %q does not accept validation constraints", t)
	}
}

// EncodeConstraints serializes a constraint variant for storage.
func EncodeConstraints(c Constraints) (json.RawMessage, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseISODate parses an ISO-8601 date or datetime string.
func ParseISODate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
