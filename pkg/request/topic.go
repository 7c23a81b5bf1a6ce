package request

import (
	"github.com/spineio/spineweb.go/pkg/models"
)

const topicIDPrefix = "t-"

// TopicFactory creates subscription topics for the actor of its Factory.
type TopicFactory struct {
	factory *Factory
}

func (f *TopicFactory) Select(typeURL models.TypeURL) *TopicBuilder {
	return &TopicBuilder{
		targetBuilder: targetBuilder{typeURL: typeURL},
		factory:       f,
	}
}

// All creates a topic covering every entity of typeURL.
func (f *TopicFactory) All(typeURL models.TypeURL) (*models.Topic, error) {
	return f.Select(typeURL).Build()
}

func (f *TopicFactory) newTopic(target *models.Target, mask *models.FieldMask) *models.Topic {
	return &models.Topic{
		ID:        newID(topicIDPrefix),
		Target:    target,
		FieldMask: mask,
		Context:   f.factory.actorContext(),
	}
}

// TopicBuilder composes a topic with the same rules as QueryBuilder.
type TopicBuilder struct {
	targetBuilder
	factory *TopicFactory
}

func (b *TopicBuilder) ByIDs(ids ...any) *TopicBuilder {
	b.byIDs(ids)
	return b
}

func (b *TopicBuilder) Where(predicates ...models.Predicate) *TopicBuilder {
	b.where(predicates)
	return b
}

func (b *TopicBuilder) WithMask(fields ...string) *TopicBuilder {
	b.withMask(fields)
	return b
}

func (b *TopicBuilder) Build() (*models.Topic, error) {
	target, mask, err := b.build()
	if err != nil {
		return nil, err
	}
	return b.factory.newTopic(target, mask), nil
}
