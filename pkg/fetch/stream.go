package fetch

import (
	"context"
	"sync"

	"google.golang.org/protobuf/proto"

	"github.com/spineio/spineweb.go/internal/queue"
	"github.com/spineio/spineweb.go/pkg/logger"
	"github.com/spineio/spineweb.go/pkg/models"
	"github.com/spineio/spineweb.go/pkg/pushstore"
)

type state int

const (
	// awaitingCount: the query is not acknowledged yet.
	awaitingCount state = iota
	// counting: items are received until received == total.
	counting
	// complete: finished, failed or closed. Terminal.
	complete
)

// Stream delivers the results of a one-by-one query.
//
// Items is closed once the announced number of items has been delivered, the
// fetch failed, or Close was called. Err reports the failure, if any, after
// Items is closed.
type Stream struct {
	queryID   string
	typeURL   models.TypeURL
	converter Converter
	logger    logger.Logger
	cancelCtx context.CancelFunc

	mu       sync.Mutex
	state    state
	received int
	total    int
	listener pushstore.Listener
	err      error

	items *queue.Queue[proto.Message]
	done  chan struct{}
	wg    sync.WaitGroup
}

func newStream(queryID string, typeURL models.TypeURL, converter Converter, log logger.Logger, cancel context.CancelFunc) *Stream {
	return &Stream{
		queryID:   queryID,
		typeURL:   typeURL,
		converter: converter,
		logger:    log,
		cancelCtx: cancel,
		items:     queue.New[proto.Message](),
		done:      make(chan struct{}),
	}
}

// Items returns the channel items are delivered on, in arrival order.
func (s *Stream) Items() <-chan proto.Message {
	return s.items.Out()
}

// Done is closed when the stream stops accepting items.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the fetch. The push-store listener is released before Close
// returns; items not yet received are dropped. Close is safe to call more
// than once and after completion.
func (s *Stream) Close() {
	s.items.Stop()
	s.finish(nil)
	s.cancelCtx()
	s.wg.Wait()
}

func (s *Stream) run(ctx context.Context, querier Querier, store pushstore.Store, q *models.Query) {
	defer s.wg.Done()

	res, err := querier.Query(ctx, q, models.OneByOne)
	if err != nil {
		s.finish(err)
		return
	}

	total, err := announcedCount(res.Count)
	if err != nil {
		s.finish(err)
		return
	}

	s.mu.Lock()
	if s.state == complete {
		s.mu.Unlock()
		return
	}
	s.state, s.total = counting, total
	s.mu.Unlock()

	listener, err := store.OnChildAdded(res.Path, s.onItem)
	if err != nil {
		s.finish(err)
		return
	}

	s.mu.Lock()
	if s.state == complete {
		// Completed, failed or closed while the listener was being attached.
		s.mu.Unlock()
		listener.Cancel()
		return
	}
	s.listener = listener
	reached := s.received >= s.total
	s.mu.Unlock()

	if reached {
		s.finish(nil)
		return
	}

	s.logger.Debug("awaiting query results", "query", s.queryID, "path", res.Path, "count", total)

	select {
	case <-s.done:
	case <-ctx.Done():
		s.finish(ctx.Err())
	}
}

func (s *Stream) onItem(raw any) {
	s.mu.Lock()
	// Items arriving after the count is reached are late deliveries racing
	// the listener release.
	if s.state != counting || s.received >= s.total {
		s.mu.Unlock()
		s.logger.Debug("ignoring item past the announced count", "query", s.queryID)
		return
	}

	msg, err := s.converter.Convert(s.typeURL, raw)
	if err != nil {
		s.mu.Unlock()
		s.finish(err)
		return
	}

	s.items.Push(msg)
	s.received++
	reached := s.received >= s.total && s.listener != nil
	s.mu.Unlock()

	if reached {
		s.finish(nil)
	}
}

// finish moves the stream to complete and releases the listener. Only the
// first call has any effect.
func (s *Stream) finish(err error) {
	s.mu.Lock()
	if s.state == complete {
		s.mu.Unlock()
		return
	}
	s.state = complete
	s.err = err
	listener := s.listener
	s.listener = nil
	received := s.received
	s.mu.Unlock()

	if listener != nil {
		listener.Cancel()
	}
	s.items.Close()
	close(s.done)

	if err != nil {
		s.logger.Debug("fetch failed", "query", s.queryID, "error", err)
	} else {
		s.logger.Debug("fetch complete", "query", s.queryID, "items", received)
	}
}
