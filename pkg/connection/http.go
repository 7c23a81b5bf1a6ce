package connection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/spineio/spineweb.go/internal/codec"
	"github.com/spineio/spineweb.go/pkg/constants"
	"github.com/spineio/spineweb.go/pkg/logger"
	"github.com/spineio/spineweb.go/pkg/models"
)

type HTTPParams struct {
	BaseURL string
	// Marshaler encodes request envelopes. JSON when nil.
	Marshaler codec.Marshaler
	Logger    logger.Logger
	Timeout   time.Duration
	// RetryMax is the number of retries of failed or 5xx requests.
	RetryMax int
}

// HTTPEndpoint posts envelopes to the backend routes.
type HTTPEndpoint struct {
	baseURL    string
	marshaler  codec.Marshaler
	logger     logger.Logger
	httpClient *retryablehttp.Client
}

var _ Endpoint = (*HTTPEndpoint)(nil)

func NewHTTPEndpoint(p HTTPParams) (*HTTPEndpoint, error) {
	if p.BaseURL == "" {
		return nil, constants.ErrNoBaseURL
	}

	e := HTTPEndpoint{
		baseURL:   strings.TrimSuffix(p.BaseURL, "/"),
		marshaler: p.Marshaler,
		logger:    p.Logger,
	}
	if e.marshaler == nil {
		e.marshaler = codec.JSON{}
	}
	if e.logger == nil {
		e.logger = logger.Nop()
	}

	timeout := p.Timeout
	if timeout == 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	e.httpClient = retryablehttp.NewClient()
	e.httpClient.RetryMax = p.RetryMax
	e.httpClient.Logger = e.logger
	e.httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	e.httpClient.HTTPClient.Timeout = timeout

	return &e, nil
}

// SetHTTPClient replaces the client used for single attempts.
func (e *HTTPEndpoint) SetHTTPClient(client *http.Client) *HTTPEndpoint {
	e.httpClient.HTTPClient = client
	return e
}

func (e *HTTPEndpoint) Command(ctx context.Context, cmd *models.Command) (*models.Ack, error) {
	body, err := e.post(ctx, constants.CommandRoute, cmd)
	if err != nil {
		return nil, err
	}
	return parseAck(body)
}

func (e *HTTPEndpoint) Query(ctx context.Context, q *models.Query, strategy models.DeliveryStrategy) (*models.QueryResponse, error) {
	webQuery := &models.WebQuery{
		Query:                    q,
		DeliveredTransactionally: bool(strategy),
	}

	body, err := e.post(ctx, constants.QueryRoute, webQuery)
	if err != nil {
		return nil, err
	}
	return parseQueryResponse(body)
}

func (e *HTTPEndpoint) SubscribeTo(ctx context.Context, topic *models.Topic) (*models.Subscription, error) {
	body, err := e.post(ctx, constants.SubscriptionCreateRoute, topic)
	if err != nil {
		return nil, err
	}

	id, err := parseSubscriptionID(body)
	if err != nil {
		return nil, err
	}
	return &models.Subscription{ID: id, Topic: topic}, nil
}

func (e *HTTPEndpoint) KeepUp(ctx context.Context, s *models.Subscription) error {
	_, err := e.post(ctx, constants.SubscriptionKeepUpRoute, s)
	return err
}

func (e *HTTPEndpoint) Cancel(ctx context.Context, s *models.Subscription) error {
	_, err := e.post(ctx, constants.SubscriptionCancelRoute, s)
	return err
}

func (e *HTTPEndpoint) post(ctx context.Context, route string, envelope any) ([]byte, error) {
	reqBody, err := e.marshaler.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("cannot encode request to %s: %w", route, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+route, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", e.marshaler.ContentType())
	req.Header.Set("Accept", "application/json")

	e.logger.Debug("posting request", "route", route, "bytes", len(reqBody))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Route: route, Err: err}
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			e.logger.Warn("cannot close response body", "route", route, "error", err)
		}
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Route: route, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	e.logger.Debug("request failed", "route", route, "status", resp.StatusCode)
	return nil, &ResponseError{Route: route, StatusCode: resp.StatusCode, Body: respBody}
}
