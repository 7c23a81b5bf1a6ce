package request

import (
	"github.com/spineio/spineweb.go/pkg/models"
)

const queryIDPrefix = "q-"

// QueryFactory creates queries for the actor of its Factory.
type QueryFactory struct {
	factory *Factory
}

// Select starts a query for entities of typeURL.
func (f *QueryFactory) Select(typeURL models.TypeURL) *QueryBuilder {
	return &QueryBuilder{
		targetBuilder: targetBuilder{typeURL: typeURL},
		factory:       f,
	}
}

// All queries every entity of typeURL.
func (f *QueryFactory) All(typeURL models.TypeURL) (*models.Query, error) {
	return f.Select(typeURL).Build()
}

// ByIDs queries the entities of typeURL with the given ids.
// Without ids the query matches all entities.
func (f *QueryFactory) ByIDs(typeURL models.TypeURL, ids ...any) (*models.Query, error) {
	return f.Select(typeURL).ByIDs(ids...).Build()
}

func (f *QueryFactory) newQuery(target *models.Target, mask *models.FieldMask) *models.Query {
	return &models.Query{
		ID:        newID(queryIDPrefix),
		Target:    target,
		FieldMask: mask,
		Context:   f.factory.actorContext(),
	}
}

// QueryBuilder composes a query.
//
// ByIDs, Where and WithMask may each be called once, a call without arguments
// included. Misuse is recorded and reported by Err, Target, Mask and Build.
type QueryBuilder struct {
	targetBuilder
	factory *QueryFactory
}

// ByIDs restricts the query to entities with the given ids. The ids must all
// be strings, all numbers, or all [models.TypedValue]s.
func (b *QueryBuilder) ByIDs(ids ...any) *QueryBuilder {
	b.byIDs(ids)
	return b
}

// Where restricts the query with column filters. Leaf filters are joined with
// ALL; composite filters are kept as given. The two kinds cannot be mixed.
func (b *QueryBuilder) Where(predicates ...models.Predicate) *QueryBuilder {
	b.where(predicates)
	return b
}

// WithMask limits the fields returned for each entity.
func (b *QueryBuilder) WithMask(fields ...string) *QueryBuilder {
	b.withMask(fields)
	return b
}

// Build creates a new query with a fresh id. It may be called repeatedly.
func (b *QueryBuilder) Build() (*models.Query, error) {
	target, mask, err := b.build()
	if err != nil {
		return nil, err
	}
	return b.factory.newQuery(target, mask), nil
}
