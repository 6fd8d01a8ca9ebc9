package fields

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fieldgate/fieldgate/internal/shared"
)

// DocumentValue is the normalized form of a document reference. Name is the
// client-visible filename whose extension is validated; Key points at the
// stored blob and is filled in after upload.
type DocumentValue struct {
	Name   string  `json:"name"`
	SizeMB float64 `json:"size_mb"`
	Key    string  `json:"key,omitempty"`
}

// Normalize validates a raw value against the field's type, constraints and
// options and returns its normalized form. raw is the value as decoded from
// JSON. Failures carry the specific violated constraint; nothing is ever
// silently coerced.
func Normalize(fieldType FieldType, constraints Constraints, options []Option, raw any) (any, error) {
	switch fieldType {
	case TypeText:
		return normalizeText(constraints, raw)
	case TypeNumber:
		return normalizeNumber(constraints, raw)
	case TypeDate:
		return normalizeDate(constraints, raw)
	case TypeMCQ:
		return normalizeMCQ(options, raw)
	case TypeMSQ:
		return normalizeMSQ(options, raw)
	case TypeDocument:
		return normalizeDocument(constraints, raw)
	default:
		return nil, shared.Failf(shared.ErrInvalidValue, "unknown field type %q", fieldType)
	}
}

func normalizeText(constraints Constraints, raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, shared.Fail(shared.ErrInvalidValue, "expected string for text field")
	}
	c, _ := constraints.(TextConstraints)
	length := utf8.RuneCountInString(s)
	if c.MinLength != nil && length < *c.MinLength {
		return nil, shared.Failf(shared.ErrInvalidValue, "text too short, min length %d", *c.MinLength)
	}
	if c.MaxLength != nil && length > *c.MaxLength {
		return nil, shared.Failf(shared.ErrInvalidValue, "text too long, max length %d", *c.MaxLength)
	}
	return s, nil
}

func normalizeNumber(constraints Constraints, raw any) (any, error) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	default:
		return nil, shared.Fail(shared.ErrInvalidValue, "expected number for number field")
	}
	c, _ := constraints.(NumberConstraints)
	if c.MinValue != nil && n < *c.MinValue {
		return nil, shared.Failf(shared.ErrInvalidValue, "number too small, min %v", *c.MinValue)
	}
	if c.MaxValue != nil && n > *c.MaxValue {
		return nil, shared.Failf(shared.ErrInvalidValue, "number too large, max %v", *c.MaxValue)
	}
	return n, nil
}

func normalizeDate(constraints Constraints, raw any) (any, error) {
	var parsed time.Time
	switch v := raw.(type) {
	case string:
		t, err := ParseISODate(v)
		if err != nil {
			return nil, shared.Fail(shared.ErrInvalidValue, "invalid date string")
		}
		parsed = t
	case time.Time:
		parsed = v
	default:
		return nil, shared.Fail(shared.ErrInvalidValue, "expected date value for date field")
	}
	c, _ := constraints.(DateConstraints)
	if c.MinDate != nil {
		// Bounds were validated at definition time.
		min, err := ParseISODate(*c.MinDate)
		if err != nil {
			return nil, err
		}
		if parsed.Before(min) {
			return nil, shared.Failf(shared.ErrInvalidValue, "date too early, min %s", *c.MinDate)
		}
	}
	if c.MaxDate != nil {
		max, err := ParseISODate(*c.MaxDate)
		if err != nil {
			return nil, err
		}
		if parsed.After(max) {
			return nil, shared.Failf(shared.ErrInvalidValue, "date too late, max %s", *c.MaxDate)
		}
	}
	return parsed.Format(time.RFC3339), nil
}

func normalizeMCQ(options []Option, raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, shared.Fail(shared.ErrInvalidValue, "expected a single option label for mcq field")
	}
	for _, opt := range options {
		if opt.Label == s {
			return s, nil
		}
	}
	return nil, shared.Failf(shared.ErrInvalidValue, "invalid option chosen for mcq: %v", s)
}

func normalizeMSQ(options []Option, raw any) (any, error) {
	var labels []string
	switch v := raw.(type) {
	case []string:
		labels = v
	case []any:
		labels = make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, shared.Fail(shared.ErrInvalidValue, "expected a list of option labels for msq field")
			}
			labels = append(labels, s)
		}
	default:
		return nil, shared.Fail(shared.ErrInvalidValue, "expected a list of option labels for msq field")
	}
	valid := make(map[string]struct{}, len(options))
	for _, opt := range options {
		valid[opt.Label] = struct{}{}
	}
	for _, label := range labels {
		if _, ok := valid[label]; !ok {
			return nil, shared.Failf(shared.ErrInvalidValue, "one or more invalid options for msq: %v", label)
		}
	}
	return labels, nil
}

func normalizeDocument(constraints Constraints, raw any) (any, error) {
	doc, err := documentFromRaw(raw)
	if err != nil {
		return nil, err
	}
	c, _ := constraints.(DocumentConstraints)
	if len(c.AllowedExtensions) > 0 {
		allowed := false
		for _, ext := range c.AllowedExtensions {
			if strings.HasSuffix(strings.ToLower(doc.Name), strings.ToLower(ext)) {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, shared.Failf(shared.ErrInvalidValue, "file extension not allowed, allowed: %v", c.AllowedExtensions)
		}
	}
	if c.MaxSizeMB != nil && doc.SizeMB > *c.MaxSizeMB {
		return nil, shared.Failf(shared.ErrInvalidValue, "file size exceeds max %v MB", *c.MaxSizeMB)
	}
	return doc, nil
}

// DocumentFromValue reinterprets a stored value as a document reference.
func DocumentFromValue(raw any) (DocumentValue, error) {
	return documentFromRaw(raw)
}

func documentFromRaw(raw any) (DocumentValue, error) {
	switch v := raw.(type) {
	case DocumentValue:
		return v, nil
	case map[string]any:
		name, okName := v["name"].(string)
		size, okSize := v["size_mb"].(float64)
		if !okSize {
			if n, ok := v["size_mb"].(int); ok {
				size, okSize = float64(n), true
			}
		}
		if !okName || !okSize {
			return DocumentValue{}, shared.Fail(shared.ErrInvalidValue, "document must carry 'name' and 'size_mb'")
		}
		key, _ := v["key"].(string)
		return DocumentValue{Name: name, SizeMB: size, Key: key}, nil
	default:
		return DocumentValue{}, shared.Fail(shared.ErrInvalidValue, "document must carry 'name' and 'size_mb'")
	}
}
