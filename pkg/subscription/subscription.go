// Package subscription turns a topic subscription into three typed change
// streams.
//
// The backend writes the entities matching a subscribed topic under the path
// named by the subscription id. A [Multiplexer] attaches one push-store
// listener per kind of change at that path and republishes the converted
// entities on an [EntitySubscription]:
//
//	es, err := mux.Subscribe(ctx, topic)
//	if err != nil {
//		return err
//	}
//	defer es.Unsubscribe()
//
//	added, cancel := es.ItemAdded().Subscribe()
//	defer cancel()
//	for msg := range added {
//		...
//	}
package subscription

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/protobuf/proto"

	"github.com/spineio/spineweb.go/pkg/logger"
	"github.com/spineio/spineweb.go/pkg/models"
	"github.com/spineio/spineweb.go/pkg/pushstore"
)

// Subscriber creates subscriptions. connection.Endpoint implements it.
type Subscriber interface {
	SubscribeTo(ctx context.Context, topic *models.Topic) (*models.Subscription, error)
}

// Converter turns raw push-store values into messages.
type Converter interface {
	Convert(typeURL models.TypeURL, raw any) (proto.Message, error)
}

// Registrar takes over keeping subscriptions alive. KeepAliveService
// implements it.
type Registrar interface {
	Add(es *EntitySubscription)
}

// EntitySubscription exposes the changes of the entities matching a topic.
type EntitySubscription struct {
	subscription *models.Subscription
	added        *Broadcast
	changed      *Broadcast
	removed      *Broadcast

	mu        sync.Mutex
	listeners []pushstore.Listener
	closed    bool
}

func newEntitySubscription(s *models.Subscription) *EntitySubscription {
	return &EntitySubscription{
		subscription: s,
		added:        newBroadcast(),
		changed:      newBroadcast(),
		removed:      newBroadcast(),
	}
}

func (e *EntitySubscription) Subscription() *models.Subscription {
	return e.subscription
}

func (e *EntitySubscription) ItemAdded() *Broadcast {
	return e.added
}

func (e *EntitySubscription) ItemChanged() *Broadcast {
	return e.changed
}

func (e *EntitySubscription) ItemRemoved() *Broadcast {
	return e.removed
}

// Unsubscribe releases the push-store listeners before returning and ends the
// three broadcasts. Later calls do nothing.
func (e *EntitySubscription) Unsubscribe() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	listeners := e.listeners
	e.listeners = nil
	e.mu.Unlock()

	for _, l := range listeners {
		l.Cancel()
	}
	e.added.close()
	e.changed.close()
	e.removed.close()
}

func (e *EntitySubscription) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// attach keeps l to be released on Unsubscribe. It reports false, having
// released l, when the subscription is already closed.
func (e *EntitySubscription) attach(l pushstore.Listener) bool {
	e.mu.Lock()
	if !e.closed {
		e.listeners = append(e.listeners, l)
		e.mu.Unlock()
		return true
	}
	e.mu.Unlock()

	l.Cancel()
	return false
}

type Multiplexer struct {
	subscriber Subscriber
	store      pushstore.Store
	converter  Converter
	keepAlive  Registrar
	logger     logger.Logger
}

// NewMultiplexer creates a Multiplexer. keepAlive may be nil.
func NewMultiplexer(subscriber Subscriber, store pushstore.Store, converter Converter, keepAlive Registrar, log logger.Logger) *Multiplexer {
	if log == nil {
		log = logger.Nop()
	}
	return &Multiplexer{
		subscriber: subscriber,
		store:      store,
		converter:  converter,
		keepAlive:  keepAlive,
		logger:     log,
	}
}

var errNoTarget = errors.New("topic has no target")

// Subscribe subscribes to topic and starts republishing changes.
func (m *Multiplexer) Subscribe(ctx context.Context, topic *models.Topic) (*EntitySubscription, error) {
	if topic == nil || topic.Target == nil {
		return nil, errNoTarget
	}

	s, err := m.subscriber.SubscribeTo(ctx, topic)
	if err != nil {
		return nil, err
	}

	es := newEntitySubscription(s)
	path := s.ID.Value
	typeURL := topic.Target.Type

	attachments := []struct {
		on        func(string, pushstore.Callback) (pushstore.Listener, error)
		broadcast *Broadcast
	}{
		{m.store.OnChildAdded, es.added},
		{m.store.OnChildChanged, es.changed},
		{m.store.OnChildRemoved, es.removed},
	}
	for _, a := range attachments {
		l, err := a.on(path, m.forward(typeURL, a.broadcast))
		if err != nil {
			es.Unsubscribe()
			if m.keepAlive != nil {
				// Cancelled on the backend by the next refresh.
				m.keepAlive.Add(es)
			}
			return nil, err
		}
		es.attach(l)
	}

	if m.keepAlive != nil {
		m.keepAlive.Add(es)
	}

	m.logger.Debug("subscribed", "topic", topic.ID, "path", path)
	return es, nil
}

// Unsubscribe is es.Unsubscribe.
func (m *Multiplexer) Unsubscribe(es *EntitySubscription) {
	es.Unsubscribe()
}

func (m *Multiplexer) forward(typeURL models.TypeURL, b *Broadcast) pushstore.Callback {
	return func(raw any) {
		msg, err := m.converter.Convert(typeURL, raw)
		if err != nil {
			m.logger.Warn("dropping subscription update", "type", typeURL, "error", err)
			return
		}
		b.publish(msg)
	}
}
