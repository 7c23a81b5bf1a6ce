// Package wsstore is a push store client speaking a small JSON protocol over
// a websocket, with one-shot reads served over REST.
//
// The client sends
//
//	{"t":"listen","id":"<listener id>","path":"<path>","event":"child_added"}
//	{"t":"unlisten","id":"<listener id>"}
//
// and the server answers with events for active listeners:
//
//	{"t":"event","id":"<listener id>","event":"child_added","key":"<child key>","value":<child>}
//
// A one-shot read is GET <rest url>/<path>.json, answered with a JSON object of
// children keyed by child key, or null.
//
// When the websocket drops, the client reconnects with exponential backoff
// and re-issues a listen frame for every listener still attached.
package wsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/buger/jsonparser"
	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/spineio/spineweb.go/internal/rand"
	"github.com/spineio/spineweb.go/pkg/constants"
	"github.com/spineio/spineweb.go/pkg/logger"
	"github.com/spineio/spineweb.go/pkg/pushstore"
)

var DefaultDialer = &gorilla.Dialer{
	Proxy:            gorilla.DefaultDialer.Proxy,
	HandshakeTimeout: gorilla.DefaultDialer.HandshakeTimeout,
}

const (
	frameListen   = "listen"
	frameUnlisten = "unlisten"
	frameEvent    = "event"
)

type frame struct {
	Type  string          `json:"t"`
	ID    string          `json:"id"`
	Path  string          `json:"path,omitempty"`
	Event pushstore.Event `json:"event,omitempty"`
}

type Params struct {
	// URL is the websocket URL listen frames are sent to.
	URL string
	// RESTURL is the base URL of one-shot reads.
	RESTURL string
	Logger  logger.Logger
	// RetryMax is the number of retries of failed one-shot reads.
	RetryMax int
	// NewBackOff creates the reconnect policy. Exponential backoff without
	// an elapsed time limit when nil.
	NewBackOff func() backoff.BackOff
}

type listener struct {
	id    string
	path  string
	event pushstore.Event
	cb    pushstore.Callback
}

type Store struct {
	url        string
	restURL    string
	logger     logger.Logger
	newBackOff func() backoff.BackOff
	httpClient *http.Client

	connLock sync.Mutex
	conn     *gorilla.Conn

	mu        sync.Mutex
	listeners map[string]*listener

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ pushstore.Store = (*Store)(nil)

func New(p Params) (*Store, error) {
	if p.URL == "" || p.RESTURL == "" {
		return nil, constants.ErrNoBaseURL
	}

	s := &Store{
		url:        p.URL,
		restURL:    strings.TrimSuffix(p.RESTURL, "/"),
		logger:     p.Logger,
		newBackOff: p.NewBackOff,
		listeners:  make(map[string]*listener),
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.newBackOff == nil {
		s.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		}
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = p.RetryMax
	rc.Logger = s.logger
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	s.httpClient = rc.StandardClient()
	s.httpClient.Timeout = constants.DefaultHTTPTimeout

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// SetHTTPClient replaces the client used for one-shot reads.
func (s *Store) SetHTTPClient(client *http.Client) *Store {
	s.httpClient = client
	return s
}

// Connect dials the websocket and starts delivering events.
func (s *Store) Connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.connLock.Lock()
	s.conn = conn
	s.connLock.Unlock()

	s.wg.Add(1)
	go s.readLoop(conn)
	return nil
}

func (s *Store) dial(ctx context.Context) (*gorilla.Conn, error) {
	conn, res, err := DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrConnection, err)
	}
	if res != nil && res.Body != nil {
		res.Body.Close()
	}
	return conn, nil
}

// Close stops reconnecting, closes the websocket and waits for event
// delivery to stop. Attached listeners are dropped.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()

		s.connLock.Lock()
		if s.conn != nil {
			_ = s.conn.WriteControl(gorilla.CloseMessage,
				gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""), time.Now().Add(time.Second))
			err = s.conn.Close()
		}
		s.connLock.Unlock()

		s.wg.Wait()

		s.mu.Lock()
		s.listeners = make(map[string]*listener)
		s.mu.Unlock()
	})
	return err
}

func (s *Store) closed() bool {
	return s.ctx.Err() != nil
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
	if s.closed() {
		return nil, constants.ErrStoreClosed
	}

	l := &listener{
		id:    rand.NewRequestID(constants.RequestIDLength),
		path:  pushstore.CleanPath(path),
		event: event,
		cb:    cb,
	}

	// Registering under connLock orders the listen frame with reconnect, so
	// the frame reaches each connection once.
	s.connLock.Lock()
	s.mu.Lock()
	s.listeners[l.id] = l
	s.mu.Unlock()

	err := s.writeLocked(frame{Type: frameListen, ID: l.id, Path: l.path, Event: l.event})
	if err != nil {
		s.mu.Lock()
		delete(s.listeners, l.id)
		s.mu.Unlock()
	}
	s.connLock.Unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Debug("listening", "id", l.id, "path", l.path, "event", l.event)
	return pushstore.NewListener(func() { s.unlisten(l.id) }), nil
}

func (s *Store) unlisten(id string) {
	s.mu.Lock()
	_, ok := s.listeners[id]
	delete(s.listeners, id)
	s.mu.Unlock()

	if !ok || s.closed() {
		return
	}
	if err := s.write(frame{Type: frameUnlisten, ID: id}); err != nil {
		s.logger.Debug("cannot send unlisten frame", "id", id, "error", err)
	}
}

func (s *Store) write(f frame) error {
	s.connLock.Lock()
	defer s.connLock.Unlock()
	return s.writeLocked(f)
}

// writeLocked sends f on the current connection. connLock must be held.
func (s *Store) writeLocked(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if s.conn == nil {
		return fmt.Errorf("%w: not connected", constants.ErrConnection)
	}
	if err := s.conn.WriteMessage(gorilla.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", constants.ErrConnection, err)
	}
	return nil
}

func (s *Store) readLoop(conn *gorilla.Conn) {
	defer s.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.closed() {
				return
			}
			s.logger.Warn("push store connection lost", "error", err)

			if conn, err = s.reconnect(); err != nil {
				if !s.closed() {
					s.logger.Error("push store reconnection failed", "error", err)
				}
				return
			}
			continue
		}
		s.dispatch(data)
	}
}

// reconnect dials until it succeeds or the store is closed, then re-issues
// listen frames for the attached listeners.
func (s *Store) reconnect() (*gorilla.Conn, error) {
	var conn *gorilla.Conn
	err := backoff.Retry(func() error {
		c, err := s.dial(s.ctx)
		if err != nil {
			s.logger.Debug("push store reconnection attempt failed", "error", err)
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(s.newBackOff(), s.ctx))
	if err != nil {
		return nil, err
	}

	s.connLock.Lock()
	defer s.connLock.Unlock()
	if s.closed() {
		conn.Close()
		return nil, constants.ErrStoreClosed
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn

	s.mu.Lock()
	frames := make([]frame, 0, len(s.listeners))
	for _, l := range s.listeners {
		frames = append(frames, frame{Type: frameListen, ID: l.id, Path: l.path, Event: l.event})
	}
	s.mu.Unlock()

	for _, f := range frames {
		if err := s.writeLocked(f); err != nil {
			// The read loop notices the broken connection and reconnects again.
			s.logger.Warn("cannot restore listener", "id", f.ID, "error", err)
			break
		}
	}

	s.logger.Info("push store reconnected", "listeners", len(frames))
	return conn, nil
}

func (s *Store) dispatch(data []byte) {
	t, err := jsonparser.GetString(data, "t")
	if err != nil || t != frameEvent {
		s.logger.Debug("ignoring push store frame", "frame", string(data))
		return
	}

	id, err := jsonparser.GetString(data, "id")
	if err != nil {
		s.logger.Warn("push store event without listener id", "frame", string(data))
		return
	}
	event, _ := jsonparser.GetString(data, "event")

	s.mu.Lock()
	l, ok := s.listeners[id]
	s.mu.Unlock()

	if !ok || string(l.event) != event {
		s.logger.Debug("dropping event for detached listener", "id", id, "event", event)
		return
	}

	raw, dataType, _, err := jsonparser.Get(data, "value")
	if err != nil && dataType != jsonparser.NotExist {
		s.logger.Warn("malformed push store event", "id", id, "error", err)
		return
	}
	value, err := decodeValue(raw, dataType)
	if err != nil {
		s.logger.Warn("malformed push store value", "id", id, "error", err)
		return
	}

	l.cb(value)
}

// decodeValue turns a value located by jsonparser into what a JSON decoder
// produces for it.
func decodeValue(raw []byte, dataType jsonparser.ValueType) (any, error) {
	switch dataType {
	case jsonparser.NotExist, jsonparser.Null:
		return nil, nil
	case jsonparser.String:
		return jsonparser.ParseString(raw)
	default:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func (s *Store) Values(ctx context.Context, path string) ([]any, error) {
	if s.closed() {
		return nil, constants.ErrStoreClosed
	}

	url := fmt.Sprintf("%s/%s.json", s.restURL, pushstore.CleanPath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrConnection, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cannot read %s: status %d", path, resp.StatusCode)
	}

	return children(body)
}

// children lists the values of a JSON object ordered by key. Arrays keep
// their order and null has no children.
func children(body []byte) ([]any, error) {
	_, dataType, _, err := jsonparser.Get(body)
	if err != nil {
		return nil, err
	}

	switch dataType {
	case jsonparser.Null:
		return []any{}, nil
	case jsonparser.Array:
		var (
			values []any
			errs   []error
		)
		_, err := jsonparser.ArrayEach(body, func(raw []byte, dt jsonparser.ValueType, _ int, _ error) {
			v, err := decodeValue(raw, dt)
			errs = append(errs, err)
			values = append(values, v)
		})
		if err != nil {
			return nil, err
		}
		if values == nil {
			values = []any{}
		}
		return values, errors.Join(errs...)
	case jsonparser.Object:
		byKey := make(map[string]any)
		err := jsonparser.ObjectEach(body, func(key, raw []byte, dt jsonparser.ValueType, _ int) error {
			v, err := decodeValue(raw, dt)
			if err != nil {
				return err
			}
			byKey[string(key)] = v
			return nil
		})
		if err != nil {
			return nil, err
		}

		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		values := make([]any, 0, len(keys))
		for _, k := range keys {
			values = append(values, byKey[k])
		}
		return values, nil
	default:
		return nil, fmt.Errorf("%w: children of a %s", constants.ErrProtocol, dataType)
	}
}
