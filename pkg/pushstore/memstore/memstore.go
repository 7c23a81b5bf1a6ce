// Package memstore is an in-process push store.
//
// It keeps the children of every path in memory and notifies listeners
// synchronously on the writing goroutine. It backs tests and demos that do
// not talk to a real backend.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gofrs/uuid"

	"github.com/spineio/spineweb.go/pkg/constants"
	"github.com/spineio/spineweb.go/pkg/pushstore"
)

type listener struct {
	id    uint64
	event pushstore.Event
	cb    pushstore.Callback
}

type node struct {
	children  map[string]any
	listeners []*listener
}

type Store struct {
	mu     sync.Mutex
	nodes  map[string]*node
	nextID uint64
	closed bool

	lastPushKey string
}

var _ pushstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{nodes: make(map[string]*node)}
}

func (s *Store) node(path string) *node {
	n, ok := s.nodes[path]
	if !ok {
		n = &node{children: make(map[string]any)}
		s.nodes[path] = n
	}
	return n
}

func (s *Store) OnChildAdded(path string, cb pushstore.Callback) (pushstore.Listener, error) {
	return s.listen(path, pushstore.ChildAdded, cb)
}

func (s *Store) OnChildChanged(path string, cb pushstore.Callback) (pushstore.Listener, error) {
	return s.listen(path, pushstore.ChildChanged, cb)
}

func (s *Store) OnChildRemoved(path string, cb pushstore.Callback) (pushstore.Listener, error) {
	return s.listen(path, pushstore.ChildRemoved, cb)
}

func (s *Store) listen(path string, event pushstore.Event, cb pushstore.Callback) (pushstore.Listener, error) {
	if cb == nil {
		return nil, fmt.Errorf("nil callback for %s at %q", event, path)
	}
	path = pushstore.CleanPath(path)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, constants.ErrStoreClosed
	}
	s.nextID++
	l := &listener{id: s.nextID, event: event, cb: cb}
	n := s.node(path)
	n.listeners = append(n.listeners, l)

	var existing []any
	if event == pushstore.ChildAdded {
		existing = sortedValues(n.children)
	}
	s.mu.Unlock()

	for _, v := range existing {
		cb(v)
	}

	return pushstore.NewListener(func() { s.detach(path, l.id) }), nil
}

func (s *Store) detach(path string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[path]
	if !ok {
		return
	}
	for i, l := range n.listeners {
		if l.id == id {
			n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
			return
		}
	}
}

// Set writes the child key of path, reporting it as added or changed.
func (s *Store) Set(path, key string, value any) error {
	path = pushstore.CleanPath(path)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return constants.ErrStoreClosed
	}
	n := s.node(path)
	event := pushstore.ChildAdded
	if _, exists := n.children[key]; exists {
		event = pushstore.ChildChanged
	}
	n.children[key] = value
	targets := n.matching(event)
	s.mu.Unlock()

	notify(targets, value)
	return nil
}

// Push adds value under a new time-ordered key and returns the key. Children
// pushed to a path are listed in push order.
func (s *Store) Push(path string, value any) (string, error) {
	s.mu.Lock()
	key := s.pushKey()
	s.mu.Unlock()
	return key, s.Set(path, key, value)
}

// pushKey returns a UUIDv7 sorting after every key it returned before. The
// v7 sequence can wrap within a millisecond, so such keys are drawn again.
// s.mu must be held.
func (s *Store) pushKey() string {
	for {
		key := uuid.Must(uuid.NewV7()).String()
		if key > s.lastPushKey {
			s.lastPushKey = key
			return key
		}
	}
}

// Remove deletes the child key of path. Removing a missing child does nothing.
func (s *Store) Remove(path, key string) error {
	path = pushstore.CleanPath(path)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return constants.ErrStoreClosed
	}
	n := s.node(path)
	value, exists := n.children[key]
	if !exists {
		s.mu.Unlock()
		return nil
	}
	delete(n.children, key)
	targets := n.matching(pushstore.ChildRemoved)
	s.mu.Unlock()

	notify(targets, value)
	return nil
}

func (s *Store) Values(ctx context.Context, path string) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, constants.ErrStoreClosed
	}
	n, ok := s.nodes[pushstore.CleanPath(path)]
	if !ok {
		return []any{}, nil
	}
	return sortedValues(n.children), nil
}

// Listeners returns the number of listeners attached at path.
func (s *Store) Listeners(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.nodes[pushstore.CleanPath(path)]; ok {
		return len(n.listeners)
	}
	return 0
}

// Close detaches every listener. Later calls fail with constants.ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.nodes = make(map[string]*node)
	return nil
}

func (n *node) matching(event pushstore.Event) []pushstore.Callback {
	var out []pushstore.Callback
	for _, l := range n.listeners {
		if l.event == event {
			out = append(out, l.cb)
		}
	}
	return out
}

func notify(targets []pushstore.Callback, value any) {
	for _, cb := range targets {
		cb(value)
	}
}

func sortedValues(children map[string]any) []any {
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]any, 0, len(keys))
	for _, k := range keys {
		values = append(values, children[k])
	}
	return values
}
