package subscription

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/spineio/spineweb.go/internal/testlog"
	"github.com/spineio/spineweb.go/pkg/models"
	"github.com/spineio/spineweb.go/pkg/parser"
	"github.com/spineio/spineweb.go/pkg/pushstore/memstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const updatesPath = "subscriptions/t-1"

type fakeEndpoint struct {
	mu         sync.Mutex
	err        error
	keptUp     []string
	cancelled  []string
	keepUpErr  error
	subscribed []*models.Topic
}

func (f *fakeEndpoint) SubscribeTo(_ context.Context, topic *models.Topic) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	f.subscribed = append(f.subscribed, topic)
	return &models.Subscription{ID: models.SubscriptionID{Value: updatesPath}, Topic: topic}, nil
}

func (f *fakeEndpoint) KeepUp(_ context.Context, s *models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keptUp = append(f.keptUp, s.ID.Value)
	return f.keepUpErr
}

func (f *fakeEndpoint) Cancel(_ context.Context, s *models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, s.ID.Value)
	return nil
}

func newTopic() *models.Topic {
	return &models.Topic{
		ID:     "t-1",
		Target: &models.Target{Type: models.StringType, IncludeAll: true},
	}
}

func next(t *testing.T, ch <-chan proto.Message) string {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg.(*wrapperspb.StringValue).GetValue()
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
		return ""
	}
}

type MultiplexerTestSuite struct {
	suite.Suite
	endpoint  *fakeEndpoint
	store     *memstore.Store
	keepAlive *KeepAliveService
	mux       *Multiplexer
	log       *testlog.Handler
}

func TestMultiplexerTestSuite(t *testing.T) {
	suite.Run(t, new(MultiplexerTestSuite))
}

func (s *MultiplexerTestSuite) SetupTest() {
	s.endpoint = &fakeEndpoint{}
	s.store = memstore.New()
	s.log = testlog.New()
	s.keepAlive = NewKeepAliveService(s.endpoint, time.Hour, s.log.Logger())
	s.mux = NewMultiplexer(s.endpoint, s.store, parser.NewRegistry(), s.keepAlive, s.log.Logger())
}

func (s *MultiplexerTestSuite) TestThreeStreams() {
	es, err := s.mux.Subscribe(context.Background(), newTopic())
	s.Require().NoError(err)
	defer es.Unsubscribe()

	s.Equal(3, s.store.Listeners(updatesPath))
	s.Equal(1, s.keepAlive.Len())

	added, cancelAdded := es.ItemAdded().Subscribe()
	defer cancelAdded()
	changed, cancelChanged := es.ItemChanged().Subscribe()
	defer cancelChanged()
	removed, cancelRemoved := es.ItemRemoved().Subscribe()
	defer cancelRemoved()

	s.Require().NoError(s.store.Set(updatesPath, "a", "created"))
	s.Require().NoError(s.store.Set(updatesPath, "a", "edited"))
	s.Require().NoError(s.store.Remove(updatesPath, "a"))

	s.Equal("created", next(s.T(), added))
	s.Equal("edited", next(s.T(), changed))
	s.Equal("edited", next(s.T(), removed))
}

func (s *MultiplexerTestSuite) TestEveryConsumerSeesEveryEvent() {
	es, err := s.mux.Subscribe(context.Background(), newTopic())
	s.Require().NoError(err)
	defer es.Unsubscribe()

	first, cancelFirst := es.ItemAdded().Subscribe()
	defer cancelFirst()
	second, cancelSecond := es.ItemAdded().Subscribe()
	defer cancelSecond()

	_, err = s.store.Push(updatesPath, "one")
	s.Require().NoError(err)
	_, err = s.store.Push(updatesPath, "two")
	s.Require().NoError(err)

	for _, ch := range []<-chan proto.Message{first, second} {
		s.Equal("one", next(s.T(), ch))
		s.Equal("two", next(s.T(), ch))
	}
}

func (s *MultiplexerTestSuite) TestExistingEntitiesReachFirstConsumer() {
	s.Require().NoError(s.store.Set(updatesPath, "a", "existing"))

	es, err := s.mux.Subscribe(context.Background(), newTopic())
	s.Require().NoError(err)
	defer es.Unsubscribe()

	added, cancel := es.ItemAdded().Subscribe()
	defer cancel()
	s.Equal("existing", next(s.T(), added))
}

func (s *MultiplexerTestSuite) TestUnsubscribeIsIdempotent() {
	es, err := s.mux.Subscribe(context.Background(), newTopic())
	s.Require().NoError(err)

	added, cancel := es.ItemAdded().Subscribe()
	defer cancel()

	s.mux.Unsubscribe(es)
	s.Equal(0, s.store.Listeners(updatesPath))
	s.True(es.Closed())

	s.NotPanics(es.Unsubscribe)

	_, open := <-added
	s.False(open)

	late, lateCancel := es.ItemChanged().Subscribe()
	defer lateCancel()
	_, open = <-late
	s.False(open)
}

func (s *MultiplexerTestSuite) TestConversionErrorsAreSkipped() {
	es, err := s.mux.Subscribe(context.Background(), newTopic())
	s.Require().NoError(err)
	defer es.Unsubscribe()

	added, cancel := es.ItemAdded().Subscribe()
	defer cancel()

	_, err = s.store.Push(updatesPath, 42.0)
	s.Require().NoError(err)
	_, err = s.store.Push(updatesPath, "valid")
	s.Require().NoError(err)

	s.Equal("valid", next(s.T(), added))

	e, ok := s.log.Find(slog.LevelWarn, "dropping subscription update")
	s.Require().True(ok)
	s.Equal(models.StringType, e.Attrs["type"])
}

func (s *MultiplexerTestSuite) TestSubscribeFailure() {
	s.endpoint.err = errors.New("rejected")

	_, err := s.mux.Subscribe(context.Background(), newTopic())
	s.Require().ErrorIs(err, s.endpoint.err)
	s.Equal(0, s.store.Listeners(updatesPath))
	s.Equal(0, s.keepAlive.Len())
}

func (s *MultiplexerTestSuite) TestStoreFailureReleasesListeners() {
	s.Require().NoError(s.store.Close())

	_, err := s.mux.Subscribe(context.Background(), newTopic())
	s.Error(err)

	s.keepAlive.Refresh(context.Background())
	s.Equal([]string{updatesPath}, s.endpoint.cancelled)
	s.Equal(0, s.keepAlive.Len())
}

func (s *MultiplexerTestSuite) TestTopicWithoutTarget() {
	_, err := s.mux.Subscribe(context.Background(), &models.Topic{ID: "t-2"})
	s.Error(err)
	s.Empty(s.endpoint.subscribed)
}

func TestKeepAliveRefresh(t *testing.T) {
	endpoint := &fakeEndpoint{}
	log := testlog.New()
	k := NewKeepAliveService(endpoint, time.Hour, log.Logger())

	open := newEntitySubscription(&models.Subscription{ID: models.SubscriptionID{Value: "open"}})
	closed := newEntitySubscription(&models.Subscription{ID: models.SubscriptionID{Value: "closed"}})
	k.Add(open)
	k.Add(closed)
	closed.Unsubscribe()

	k.Refresh(context.Background())
	assert.Equal(t, []string{"open"}, endpoint.keptUp)
	assert.Equal(t, []string{"closed"}, endpoint.cancelled)
	assert.Equal(t, 1, k.Len())

	endpoint.keepUpErr = errors.New("unavailable")
	k.Refresh(context.Background())
	assert.Equal(t, []string{"open", "open"}, endpoint.keptUp)
	assert.Equal(t, 1, k.Len())

	e, ok := log.Find(slog.LevelWarn, "cannot keep up subscription")
	require.True(t, ok)
	assert.Equal(t, "open", e.Attrs["id"])
}

func TestKeepAliveRun(t *testing.T) {
	endpoint := &fakeEndpoint{}
	k := NewKeepAliveService(endpoint, 5*time.Millisecond, nil)
	k.Add(newEntitySubscription(&models.Subscription{ID: models.SubscriptionID{Value: "s"}}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- k.Run(ctx) }()

	require.Eventually(t, func() bool {
		endpoint.mu.Lock()
		defer endpoint.mu.Unlock()
		return len(endpoint.keptUp) >= 2
	}, 5*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}
