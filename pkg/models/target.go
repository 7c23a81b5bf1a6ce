package models

// Operator compares a column against a value.
type Operator string

const (
	Equal          Operator = "EQUAL"
	LessThan       Operator = "LESS_THAN"
	GreaterThan    Operator = "GREATER_THAN"
	LessOrEqual    Operator = "LESS_OR_EQUAL"
	GreaterOrEqual Operator = "GREATER_OR_EQUAL"
)

// CompositeOperator joins the children of a CompositeColumnFilter.
type CompositeOperator string

const (
	All    CompositeOperator = "ALL"
	Either CompositeOperator = "EITHER"
)

// Predicate is implemented by *ColumnFilter and *CompositeColumnFilter.
type Predicate interface {
	isPredicate()
}

// ColumnFilter is a single comparison over a named entity column.
type ColumnFilter struct {
	Column   string     `json:"columnName" cbor:"columnName"`
	Operator Operator   `json:"operator" cbor:"operator"`
	Value    TypedValue `json:"value" cbor:"value"`
}

func (*ColumnFilter) isPredicate() {}

// CompositeColumnFilter groups either leaf filters or nested composites, never both.
type CompositeColumnFilter struct {
	Operator   CompositeOperator        `json:"operator" cbor:"operator"`
	Filters    []*ColumnFilter          `json:"filter,omitempty" cbor:"filter,omitempty"`
	Composites []*CompositeColumnFilter `json:"composite,omitempty" cbor:"composite,omitempty"`
}

func (*CompositeColumnFilter) isPredicate() {}

// EntityID wraps a single identifier of an entity.
type EntityID struct {
	ID TypedValue `json:"id" cbor:"id"`
}

// IDFilter matches entities whose id is one of IDs.
type IDFilter struct {
	IDs []EntityID `json:"ids" cbor:"ids"`
}

// EntityFilters narrows the entities matched by a Target.
type EntityFilters struct {
	IDFilter *IDFilter               `json:"idFilter,omitempty" cbor:"idFilter,omitempty"`
	Filters  []*CompositeColumnFilter `json:"filter,omitempty" cbor:"filter,omitempty"`
}

// Target describes which entities a query or topic matches.
// Exactly one of IncludeAll and Filters is set.
type Target struct {
	Type       TypeURL        `json:"type" cbor:"type"`
	IncludeAll bool           `json:"includeAll,omitempty" cbor:"includeAll,omitempty"`
	Filters    *EntityFilters `json:"filters,omitempty" cbor:"filters,omitempty"`
}

// FieldMask restricts the fields returned for each entity.
// An empty mask means all fields.
type FieldMask struct {
	Paths []string `json:"paths" cbor:"paths"`
}

// Empty reports whether the mask places no restriction.
func (m *FieldMask) Empty() bool {
	return m == nil || len(m.Paths) == 0
}
