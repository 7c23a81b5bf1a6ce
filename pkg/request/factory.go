// Package request builds the queries, topics and commands sent to the backend.
//
// A [Factory] is bound to one actor for its lifetime. Every request it
// produces carries a fresh random id and an actor context stamped with the
// current time and the local time zone.
package request

import (
	"time"

	"github.com/gofrs/uuid"

	"github.com/spineio/spineweb.go/pkg/models"
)

type Option func(f *Factory) error

// WithClock replaces the time source used for actor contexts.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) error {
		f.now = now
		return nil
	}
}

// WithLocation fixes the time zone reported in actor contexts.
// By default the zone of the clock's readings is used.
func WithLocation(loc *time.Location) Option {
	return func(f *Factory) error {
		f.location = loc
		return nil
	}
}

// Factory creates requests on behalf of a single actor.
type Factory struct {
	actor    string
	now      func() time.Time
	location *time.Location
}

func NewFactory(actor string, opts ...Option) (*Factory, error) {
	f := &Factory{
		actor: actor,
		now:   time.Now,
	}
	for _, o := range opts {
		if err := o(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Factory) Actor() string {
	return f.actor
}

func (f *Factory) Query() *QueryFactory {
	return &QueryFactory{factory: f}
}

func (f *Factory) Topic() *TopicFactory {
	return &TopicFactory{factory: f}
}

func (f *Factory) Command() *CommandFactory {
	return &CommandFactory{factory: f}
}

// actorContext captures the actor, the current time truncated to the second
// and the local zone with its offset east of UTC.
func (f *Factory) actorContext() models.ActorContext {
	now := f.now()
	if f.location != nil {
		now = now.In(f.location)
	}
	zone, offset := now.Zone()
	if loc := now.Location(); loc != nil && loc.String() != "Local" {
		zone = loc.String()
	}

	return models.ActorContext{
		Actor:     f.actor,
		Timestamp: now.Truncate(time.Second),
		Zone: models.ZoneOffset{
			ID:            zone,
			AmountSeconds: offset,
		},
	}
}

func newID(prefix string) string {
	return prefix + uuid.Must(uuid.NewV4()).String()
}
