package values

import (
	"time"

	"github.com/google/uuid"

	"github.com/fieldgate/fieldgate/internal/fields"
)

// Value is one stored answer for a (user, field) pair. Data holds the
// normalized value; at rest it is wrapped as {"data": <value>} in jsonb.
type Value struct {
	ID              int64
	UserID          uuid.UUID
	RequiredFieldID int64
	Data            any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FieldState pairs a field definition with the target user's current value,
// if any. Filled reports whether the pair has left the unfilled state.
type FieldState struct {
	Field  fields.Field
	Filled bool
	Value  *Value
}
