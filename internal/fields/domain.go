package fields

import "time"

// FieldType enumerates the supported dynamic field types.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeNumber   FieldType = "number"
	TypeDate     FieldType = "date"
	TypeMCQ      FieldType = "mcq"
	TypeMSQ      FieldType = "msq"
	TypeDocument FieldType = "document"
)

// AllowedTypes lists every valid field type.
func AllowedTypes() []FieldType {
	return []FieldType{TypeText, TypeNumber, TypeDate, TypeMCQ, TypeMSQ, TypeDocument}
}

// Valid reports whether the type is one of the allowed field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeDate, TypeMCQ, TypeMSQ, TypeDocument:
		return true
	}
	return false
}

// Choice reports whether the type selects from a declared option list.
func (t FieldType) Choice() bool {
	return t == TypeMCQ || t == TypeMSQ
}

// Option is one selectable choice for mcq/msq fields.
type Option struct {
	Label string `json:"label"`
}

// Field is a dynamically declared profile field scoped to a role.
type Field struct {
	ID         int64
	RoleID     int64
	FieldName  string
	FieldType  FieldType
	IsRequired bool
	// FilledByRoleID names the role permitted to perform the first fill.
	FilledByRoleID int64
	// EditableByRoleID names the role permitted to edit an existing value.
	// nil means nobody below the elevated tiers may edit.
	EditableByRoleID *int64
	// Options is non-empty exactly for choice types.
	Options []Option
	// Validation carries the typed constraint variant for the field's type,
	// validated once at definition time. nil means unconstrained.
	Validation   Constraints
	DisplayOrder *int
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
