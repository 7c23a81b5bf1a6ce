package wsstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/spineio/spineweb.go/pkg/constants"
	"github.com/spineio/spineweb.go/pkg/pushstore"
)

type eventFrame struct {
	Type  string          `json:"t"`
	ID    string          `json:"id"`
	Event pushstore.Event `json:"event"`
	Key   string          `json:"key"`
	Value any             `json:"value"`
}

// fakeServer serves the listen protocol and REST reads from memory.
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	children map[string]map[string]any
	active   map[string]frame
	conns    []*gorilla.Conn
	listens  map[*gorilla.Conn]map[string]int
	status   int

	frames chan frame
}

func newFakeServer(t *testing.T) *fakeServer {
	f := &fakeServer{
		t:        t,
		children: make(map[string]map[string]any),
		active:   make(map[string]frame),
		listens:  make(map[*gorilla.Conn]map[string]int),
		frames:   make(chan frame, 16),
		status:   http.StatusOK,
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ws" {
		f.serveWS(w, r)
		return
	}

	f.mu.Lock()
	status := f.status
	children, ok := f.children[strings.TrimSuffix(strings.Trim(r.URL.Path, "/"), ".json")]
	f.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	if !ok {
		_, _ = w.Write([]byte("null"))
		return
	}
	_ = json.NewEncoder(w).Encode(children)
}

func (f *fakeServer) serveWS(w http.ResponseWriter, r *http.Request) {
	upgrader := gorilla.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}

	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.listens[conn] = make(map[string]int)
	f.mu.Unlock()

	for {
		var fr frame
		if err := conn.ReadJSON(&fr); err != nil {
			return
		}

		f.mu.Lock()
		switch fr.Type {
		case frameListen:
			f.active[fr.ID] = fr
			f.listens[conn][fr.ID]++
			if fr.Event == pushstore.ChildAdded {
				for k, v := range f.children[fr.Path] {
					f.writeLocked(conn, eventFrame{Type: frameEvent, ID: fr.ID, Event: fr.Event, Key: k, Value: v})
				}
			}
		case frameUnlisten:
			delete(f.active, fr.ID)
		}
		f.mu.Unlock()

		f.frames <- fr
	}
}

func (f *fakeServer) writeLocked(conn *gorilla.Conn, e eventFrame) {
	data, err := json.Marshal(e)
	if err != nil {
		f.t.Errorf("marshal: %v", err)
		return
	}
	_ = conn.WriteMessage(gorilla.TextMessage, data)
}

// emit writes an event for every active listener of event at path.
func (f *fakeServer) emit(path string, event pushstore.Event, key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.children[path] == nil {
		f.children[path] = make(map[string]any)
	}
	if event == pushstore.ChildRemoved {
		delete(f.children[path], key)
	} else {
		f.children[path][key] = value
	}

	conn := f.conns[len(f.conns)-1]
	for id, fr := range f.active {
		if fr.Path == path && fr.Event == event {
			f.writeLocked(conn, eventFrame{Type: frameEvent, ID: id, Event: event, Key: key, Value: value})
		}
	}
}

func (f *fakeServer) setChildren(path string, children map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children[path] = children
}

func (f *fakeServer) setStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeServer) dropConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.conns {
		c.Close()
	}
}

// listenCounts returns, per connection in accept order, how many listen
// frames arrived for each id.
func (f *fakeServer) listenCounts() []map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]int, 0, len(f.conns))
	for _, c := range f.conns {
		counts := make(map[string]int, len(f.listens[c]))
		for id, n := range f.listens[c] {
			counts[id] = n
		}
		out = append(out, counts)
	}
	return out
}

func (f *fakeServer) nextFrame() frame {
	select {
	case fr := <-f.frames:
		return fr
	case <-time.After(5 * time.Second):
		f.t.Fatal("no frame received")
		return frame{}
	}
}

func receive(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("no value received")
		return nil
	}
}

type WSStoreTestSuite struct {
	suite.Suite
	server *fakeServer
	store  *Store
}

func TestWSStoreTestSuite(t *testing.T) {
	suite.Run(t, new(WSStoreTestSuite))
}

func (s *WSStoreTestSuite) SetupTest() {
	s.server = newFakeServer(s.T())

	store, err := New(Params{
		URL:     s.server.wsURL(),
		RESTURL: s.server.srv.URL + "/",
		NewBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(10 * time.Millisecond)
		},
	})
	s.Require().NoError(err)
	s.Require().NoError(store.Connect(context.Background()))
	s.store = store
}

func (s *WSStoreTestSuite) TearDownTest() {
	s.NoError(s.store.Close())
	s.server.srv.Close()
}

func (s *WSStoreTestSuite) TestChildAdded() {
	s.server.setChildren("tasks", map[string]any{"a": "first"})

	values := make(chan any, 4)
	l, err := s.store.OnChildAdded("/tasks", func(v any) { values <- v })
	s.Require().NoError(err)

	listen := s.server.nextFrame()
	s.Equal(frameListen, listen.Type)
	s.Equal("tasks", listen.Path)
	s.Equal(pushstore.ChildAdded, listen.Event)
	s.Len(listen.ID, constants.RequestIDLength)

	s.Equal("first", receive(s.T(), values))

	s.server.emit("tasks", pushstore.ChildAdded, "b", map[string]any{"name": "second", "priority": 2})
	s.Equal(map[string]any{"name": "second", "priority": float64(2)}, receive(s.T(), values))

	l.Cancel()
	l.Cancel()
	unlisten := s.server.nextFrame()
	s.Equal(frameUnlisten, unlisten.Type)
	s.Equal(listen.ID, unlisten.ID)
}

func (s *WSStoreTestSuite) TestEventsGoToMatchingListener() {
	changed := make(chan any, 4)
	removed := make(chan any, 4)

	_, err := s.store.OnChildChanged("tasks", func(v any) { changed <- v })
	s.Require().NoError(err)
	s.server.nextFrame()
	_, err = s.store.OnChildRemoved("tasks", func(v any) { removed <- v })
	s.Require().NoError(err)
	s.server.nextFrame()

	s.server.emit("tasks", pushstore.ChildChanged, "a", "edited")
	s.server.emit("tasks", pushstore.ChildRemoved, "a", "edited")

	s.Equal("edited", receive(s.T(), changed))
	s.Equal("edited", receive(s.T(), removed))
}

func (s *WSStoreTestSuite) TestReconnectRestoresListeners() {
	values := make(chan any, 4)
	_, err := s.store.OnChildChanged("tasks", func(v any) { values <- v })
	s.Require().NoError(err)
	first := s.server.nextFrame()

	s.server.dropConnections()

	restored := s.server.nextFrame()
	s.Equal(frameListen, restored.Type)
	s.Equal(first.ID, restored.ID)
	s.Equal("tasks", restored.Path)

	s.server.emit("tasks", pushstore.ChildChanged, "a", true)
	s.Equal(true, receive(s.T(), values))
}

func (s *WSStoreTestSuite) TestListenDuringReconnect() {
	done := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case <-s.server.frames:
			case <-done:
				return
			}
		}
	}()
	defer func() {
		close(done)
		<-drained
	}()

	register := func() {
		// A listen racing the dropped connection may fail; only attached
		// listeners are checked.
		_, _ = s.store.OnChildChanged("tasks", func(any) {})
	}

	register()
	s.server.dropConnections()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			register()
		}()
	}
	wg.Wait()

	s.Eventually(func() bool {
		counts := s.server.listenCounts()
		if len(counts) < 2 {
			return false
		}
		s.store.mu.Lock()
		attached := len(s.store.listeners)
		s.store.mu.Unlock()
		return len(counts[len(counts)-1]) == attached
	}, 5*time.Second, 10*time.Millisecond)

	for i, counts := range s.server.listenCounts() {
		for id, n := range counts {
			s.Equal(1, n, "listen frames for %s on connection %d", id, i)
		}
	}
}

func (s *WSStoreTestSuite) TestValues() {
	s.server.setChildren("tasks", map[string]any{
		"2": "b",
		"1": map[string]any{"n": 1},
	})

	values, err := s.store.Values(context.Background(), "tasks")
	s.Require().NoError(err)
	s.Equal([]any{map[string]any{"n": float64(1)}, "b"}, values)

	values, err = s.store.Values(context.Background(), "missing")
	s.Require().NoError(err)
	s.Empty(values)
}

func (s *WSStoreTestSuite) TestValuesFailure() {
	s.server.setStatus(http.StatusInternalServerError)

	_, err := s.store.Values(context.Background(), "tasks")
	s.Error(err)
}

func (s *WSStoreTestSuite) TestClosed() {
	s.Require().NoError(s.store.Close())

	_, err := s.store.OnChildAdded("tasks", func(any) {})
	s.ErrorIs(err, constants.ErrStoreClosed)

	_, err = s.store.Values(context.Background(), "tasks")
	s.ErrorIs(err, constants.ErrStoreClosed)
}

func TestNewRequiresURLs(t *testing.T) {
	_, err := New(Params{URL: "ws://localhost"})
	assert.ErrorIs(t, err, constants.ErrNoBaseURL)
}

func TestChildren(t *testing.T) {
	values, err := children([]byte(`[1, "two", null]`))
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), "two", nil}, values)

	values, err = children([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = children([]byte(`"scalar"`))
	assert.ErrorIs(t, err, constants.ErrProtocol)
}
