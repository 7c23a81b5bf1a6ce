// Package pushstore defines the realtime store query results and subscription
// updates are delivered through.
//
// The backend writes each result item as a child of a path; clients listen to
// children being added, changed and removed at that path. Implementations live
// in the memstore and wsstore subpackages.
package pushstore

import (
	"context"
	"strings"
	"sync"
)

// Callback receives the decoded JSON value of a child.
type Callback func(value any)

// Listener is an attached callback.
// Cancel detaches it; calling Cancel again does nothing.
type Listener interface {
	Cancel()
}

type Store interface {
	// OnChildAdded attaches cb to children added at path. Children existing at
	// the time of the call are reported as added.
	OnChildAdded(path string, cb Callback) (Listener, error)
	OnChildChanged(path string, cb Callback) (Listener, error)
	OnChildRemoved(path string, cb Callback) (Listener, error)
	// Values reads the current children of path once, ordered by key.
	Values(ctx context.Context, path string) ([]any, error)
}

// Event is the kind of change a listener is attached to.
type Event string

const (
	ChildAdded   Event = "child_added"
	ChildChanged Event = "child_changed"
	ChildRemoved Event = "child_removed"
)

// NewListener returns a Listener running cancel at most once.
func NewListener(cancel func()) Listener {
	return &onceListener{cancel: cancel}
}

type onceListener struct {
	once   sync.Once
	cancel func()
}

func (l *onceListener) Cancel() {
	l.once.Do(l.cancel)
}

// CleanPath trims surrounding slashes so "a/b", "/a/b/" name the same path.
func CleanPath(path string) string {
	return strings.Trim(path, "/")
}
