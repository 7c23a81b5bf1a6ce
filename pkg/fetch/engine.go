// Package fetch reconciles query acknowledgements with the items the backend
// writes to the push store.
//
// The endpoint answers a query with the push-store path results go to and,
// for one-by-one delivery, the number of items it is going to write. A
// [Stream] counts arriving items against that number and completes when they
// match; [Engine.AtOnce] reads the path once after an all-at-once query.
package fetch

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/proto"

	"github.com/spineio/spineweb.go/pkg/constants"
	"github.com/spineio/spineweb.go/pkg/logger"
	"github.com/spineio/spineweb.go/pkg/models"
	"github.com/spineio/spineweb.go/pkg/pushstore"
)

// Querier posts queries. connection.Endpoint implements it.
type Querier interface {
	Query(ctx context.Context, q *models.Query, strategy models.DeliveryStrategy) (*models.QueryResponse, error)
}

// Converter turns raw push-store values into messages. *parser.Registry
// implements it.
type Converter interface {
	Convert(typeURL models.TypeURL, raw any) (proto.Message, error)
}

type Engine struct {
	querier   Querier
	store     pushstore.Store
	converter Converter
	logger    logger.Logger
}

func NewEngine(querier Querier, store pushstore.Store, converter Converter, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		querier:   querier,
		store:     store,
		converter: converter,
		logger:    log,
	}
}

// AtOnce posts q for all-at-once delivery and reads every result in one go.
// Errors are returned as reported by the endpoint, the store or the converter.
func (e *Engine) AtOnce(ctx context.Context, q *models.Query) ([]proto.Message, error) {
	res, err := e.querier.Query(ctx, q, models.AllAtOnce)
	if err != nil {
		return nil, err
	}

	raw, err := e.store.Values(ctx, res.Path)
	if err != nil {
		return nil, err
	}

	items := make([]proto.Message, 0, len(raw))
	for _, v := range raw {
		msg, err := e.converter.Convert(q.Target.Type, v)
		if err != nil {
			return nil, err
		}
		items = append(items, msg)
	}

	e.logger.Debug("fetched at once", "query", q.ID, "path", res.Path, "items", len(items))
	return items, nil
}

// OneByOne posts q for one-by-one delivery and returns immediately.
// The query is sent and the items are collected in the background.
func (e *Engine) OneByOne(ctx context.Context, q *models.Query) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := newStream(q.ID, q.Target.Type, e.converter, e.logger, cancel)

	s.wg.Add(1)
	go s.run(ctx, e.querier, e.store, q)

	return s
}

// announcedCount reads the count of an acknowledgement. An absent count is
// zero; counts are JSON numbers or, as 64-bit integers in proto3 JSON,
// decimal strings.
func announcedCount(raw any) (int, error) {
	var (
		n   int64
		err error
	)

	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: count %v is not an integer", constants.ErrProtocol, v)
		}
		n = int64(v)
	case interface{ Int64() (int64, error) }:
		n, err = v.Int64()
	case string:
		n, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	default:
		return 0, fmt.Errorf("%w: count of type %T", constants.ErrProtocol, raw)
	}

	if err != nil {
		return 0, fmt.Errorf("%w: count %v: %v", constants.ErrProtocol, raw, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative count %d", constants.ErrProtocol, n)
	}
	return int(n), nil
}
