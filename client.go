package spineweb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"google.golang.org/protobuf/proto"

	"github.com/spineio/spineweb.go/pkg/connection"
	"github.com/spineio/spineweb.go/pkg/fetch"
	"github.com/spineio/spineweb.go/pkg/logger"
	"github.com/spineio/spineweb.go/pkg/models"
	"github.com/spineio/spineweb.go/pkg/parser"
	"github.com/spineio/spineweb.go/pkg/pushstore"
	"github.com/spineio/spineweb.go/pkg/pushstore/wsstore"
	"github.com/spineio/spineweb.go/pkg/request"
	"github.com/spineio/spineweb.go/pkg/subscription"
)

// Client talks to a backend which answers queries and subscriptions
// through a push store.
type Client struct {
	endpoint  connection.Endpoint
	store     pushstore.Store
	registry  *parser.Registry
	requests  *request.Factory
	fetcher   *fetch.Engine
	mux       *subscription.Multiplexer
	keepAlive *subscription.KeepAliveService
	logger    logger.Logger

	requestOpts []request.Option
	// owned are closed by Close, in order.
	owned []io.Closer

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Option func(c *Client) error

// WithEndpoint replaces the HTTP endpoint built from the config.
func WithEndpoint(e connection.Endpoint) Option {
	return func(c *Client) error {
		if e == nil {
			return errors.New("nil endpoint")
		}
		c.endpoint = e
		return nil
	}
}

// WithPushStore replaces the websocket push store built from the config.
// The Client does not close a store passed this way.
func WithPushStore(s pushstore.Store) Option {
	return func(c *Client) error {
		if s == nil {
			return errors.New("nil push store")
		}
		c.store = s
		return nil
	}
}

// WithRegistry sets the parser registry. The process-wide default registry
// is used otherwise.
func WithRegistry(r *parser.Registry) Option {
	return func(c *Client) error {
		c.registry = r
		return nil
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

// WithRequestOptions configures the request factory, e.g. its clock.
func WithRequestOptions(opts ...request.Option) Option {
	return func(c *Client) error {
		c.requestOpts = append(c.requestOpts, opts...)
		return nil
	}
}

// NewClient wires a Client from cfg. Unless replaced by options, it posts
// to cfg.EndpointURL and connects to the push store at cfg.PushStoreURL.
// The keep-alive service runs until Close.
func NewClient(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}
	if c.registry == nil {
		c.registry = parser.Default()
	}

	var err error
	if c.requests, err = request.NewFactory(cfg.Actor, c.requestOpts...); err != nil {
		return nil, err
	}

	if c.endpoint == nil {
		c.endpoint, err = connection.NewHTTPEndpoint(connection.HTTPParams{
			BaseURL:   cfg.EndpointURL,
			Marshaler: cfg.marshaler(),
			Logger:    c.logger,
			Timeout:   cfg.HTTPTimeout,
			RetryMax:  cfg.RetryMax,
		})
		if err != nil {
			return nil, fmt.Errorf("endpoint: %w", err)
		}
	}

	if c.store == nil {
		ws, err := wsstore.New(wsstore.Params{
			URL:      cfg.PushStoreURL,
			RESTURL:  cfg.restURL(),
			Logger:   c.logger,
			RetryMax: cfg.RetryMax,
		})
		if err != nil {
			return nil, fmt.Errorf("push store: %w", err)
		}
		if err := ws.Connect(ctx); err != nil {
			return nil, fmt.Errorf("push store: %w", err)
		}
		c.store = ws
		c.owned = append(c.owned, ws)
	}

	c.fetcher = fetch.NewEngine(c.endpoint, c.store, c.registry, c.logger)
	c.keepAlive = subscription.NewKeepAliveService(c.endpoint, cfg.KeepAliveInterval, c.logger)
	c.mux = subscription.NewMultiplexer(c.endpoint, c.store, c.registry, c.keepAlive, c.logger)

	var runCtx context.Context
	runCtx, c.cancel = context.WithCancel(context.Background())
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.keepAlive.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("keep-alive stopped", "error", err)
		}
	}()

	return c, nil
}

// Actor is the user requests are made on behalf of.
func (c *Client) Actor() string {
	return c.requests.Actor()
}

// Registry returns the parser registry used to convert received values.
func (c *Client) Registry() *parser.Registry {
	return c.registry
}

// RegisterParser makes values of typeURL convertible. See parser.Registry.Register.
func (c *Client) RegisterParser(p parser.Parser, typeURL models.TypeURL) error {
	return c.registry.Register(p, typeURL)
}

// Query starts building a query for entities of typeURL.
func (c *Client) Query(typeURL models.TypeURL) *request.QueryBuilder {
	return c.requests.Query().Select(typeURL)
}

// Topic starts building a topic for entities of typeURL.
func (c *Client) Topic(typeURL models.TypeURL) *request.TopicBuilder {
	return c.requests.Topic().Select(typeURL)
}

// FetchAll reads every entity of typeURL.
func (c *Client) FetchAll(ctx context.Context, typeURL models.TypeURL) ([]proto.Message, error) {
	q, err := c.requests.Query().All(typeURL)
	if err != nil {
		return nil, err
	}
	return c.fetcher.AtOnce(ctx, q)
}

// FetchByID reads the entity of typeURL with the given id. It returns nil
// without error when no such entity exists.
func (c *Client) FetchByID(ctx context.Context, typeURL models.TypeURL, id any) (proto.Message, error) {
	q, err := c.requests.Query().ByIDs(typeURL, id)
	if err != nil {
		return nil, err
	}
	items, err := c.fetcher.AtOnce(ctx, q)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// FetchAtOnce runs q and returns all matching entities together.
func (c *Client) FetchAtOnce(ctx context.Context, q *models.Query) ([]proto.Message, error) {
	return c.fetcher.AtOnce(ctx, q)
}

// FetchOneByOne runs q and streams the matching entities as they arrive.
// The stream must be drained or closed.
func (c *Client) FetchOneByOne(ctx context.Context, q *models.Query) *fetch.Stream {
	return c.fetcher.OneByOne(ctx, q)
}

// Subscribe opens a subscription to the changes of the entities matching
// topic. It is kept alive until unsubscribed or the Client is closed.
func (c *Client) Subscribe(ctx context.Context, topic *models.Topic) (*subscription.EntitySubscription, error) {
	return c.mux.Subscribe(ctx, topic)
}

// SubscribeAll subscribes to the changes of every entity of typeURL.
func (c *Client) SubscribeAll(ctx context.Context, typeURL models.TypeURL) (*subscription.EntitySubscription, error) {
	topic, err := c.requests.Topic().All(typeURL)
	if err != nil {
		return nil, err
	}
	return c.mux.Subscribe(ctx, topic)
}

// Unsubscribe closes es. The backend subscription is cancelled on the next
// keep-alive refresh.
func (c *Client) Unsubscribe(es *subscription.EntitySubscription) {
	c.mux.Unsubscribe(es)
}

// CommandHandlers receive the outcome of a command. Exactly one of them is
// called. Nil handlers are skipped.
type CommandHandlers struct {
	OnOK        func()
	OnError     func(err error)
	OnRejection func(r *models.CommandRejection)
}

// PostCommand posts msg as a command and returns the acknowledgement.
func (c *Client) PostCommand(ctx context.Context, msg models.TypedValue) (*models.Ack, error) {
	cmd, err := c.requests.Command().Create(msg)
	if err != nil {
		return nil, err
	}
	return c.endpoint.Command(ctx, cmd)
}

// SendCommand posts msg as a command and dispatches the outcome to h.
// Transport and encoding failures are reported through OnError.
func (c *Client) SendCommand(ctx context.Context, msg models.TypedValue, h CommandHandlers) {
	ack, err := c.PostCommand(ctx, msg)
	switch {
	case err != nil:
		c.logger.Debug("command failed", "error", err)
		if h.OnError != nil {
			h.OnError(err)
		}
	case ack.Rejection != nil:
		if h.OnRejection != nil {
			h.OnRejection(ack.Rejection)
		}
	case ack.Error != nil:
		if h.OnError != nil {
			h.OnError(ack.Error)
		}
	default:
		if h.OnOK != nil {
			h.OnOK()
		}
	}
}

// Close stops the keep-alive service and releases the push store the
// Client connected to. Open subscriptions stop receiving changes.
func (c *Client) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		for _, o := range c.owned {
			if err := o.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
