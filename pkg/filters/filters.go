// Package filters composes column predicates and entity targets.
//
// Leaf filters compare one column against a typed value:
//
//	done := filters.Eq("done", models.Bool(true))
//	recent := filters.Gt("created", ts)
//
// Leaves and composites are combined with [All] and [Either], and a target is
// assembled with [ComposeTarget]:
//
//	target := filters.ComposeTarget(taskType, nil, []*models.CompositeColumnFilter{
//		filters.All(done, recent),
//	})
package filters

import (
	"github.com/spineio/spineweb.go/pkg/models"
)

// With builds a leaf filter comparing column against value with op.
func With(column string, op models.Operator, value models.TypedValue) *models.ColumnFilter {
	return &models.ColumnFilter{
		Column:   column,
		Operator: op,
		Value:    value,
	}
}

func Eq(column string, value models.TypedValue) *models.ColumnFilter {
	return With(column, models.Equal, value)
}

func Lt(column string, value models.TypedValue) *models.ColumnFilter {
	return With(column, models.LessThan, value)
}

func Gt(column string, value models.TypedValue) *models.ColumnFilter {
	return With(column, models.GreaterThan, value)
}

func Le(column string, value models.TypedValue) *models.ColumnFilter {
	return With(column, models.LessOrEqual, value)
}

func Ge(column string, value models.TypedValue) *models.ColumnFilter {
	return With(column, models.GreaterOrEqual, value)
}

// Filter is a leaf or a composite filter.
// A single composite only ever holds children of one kind.
type Filter interface {
	*models.ColumnFilter | *models.CompositeColumnFilter
}

// Compose joins fs with op. The children keep their order.
func Compose[F Filter](op models.CompositeOperator, fs ...F) *models.CompositeColumnFilter {
	composite := &models.CompositeColumnFilter{Operator: op}
	for _, f := range fs {
		switch v := any(f).(type) {
		case *models.ColumnFilter:
			composite.Filters = append(composite.Filters, v)
		case *models.CompositeColumnFilter:
			composite.Composites = append(composite.Composites, v)
		}
	}
	return composite
}

// All matches when every child matches.
func All[F Filter](fs ...F) *models.CompositeColumnFilter {
	return Compose(models.All, fs...)
}

// Either matches when at least one child matches.
func Either[F Filter](fs ...F) *models.CompositeColumnFilter {
	return Compose(models.Either, fs...)
}

// ComposeTarget returns a target of typeURL restricted by ids and columnFilters.
// With neither present the target includes all entities of the type.
func ComposeTarget(typeURL models.TypeURL, ids []models.TypedValue, columnFilters []*models.CompositeColumnFilter) *models.Target {
	if len(ids) == 0 && len(columnFilters) == 0 {
		return &models.Target{Type: typeURL, IncludeAll: true}
	}

	entityFilters := &models.EntityFilters{}
	if len(ids) > 0 {
		entityFilters.IDFilter = &models.IDFilter{IDs: make([]models.EntityID, 0, len(ids))}
		for _, id := range ids {
			entityFilters.IDFilter.IDs = append(entityFilters.IDFilter.IDs, models.EntityID{ID: id})
		}
	}
	if len(columnFilters) > 0 {
		entityFilters.Filters = columnFilters
	}

	return &models.Target{Type: typeURL, Filters: entityFilters}
}
