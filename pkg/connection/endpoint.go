// Package connection sends requests to the backend endpoint.
//
// The endpoint only acknowledges requests. Query results and subscription
// updates are delivered through the push store at the path named in the
// acknowledgement.
package connection

import (
	"context"

	"github.com/spineio/spineweb.go/pkg/models"
)

// Endpoint is the request/response side of the backend.
type Endpoint interface {
	// Command posts cmd and returns the acknowledgement of its processing.
	Command(ctx context.Context, cmd *models.Command) (*models.Ack, error)
	// Query posts q and returns the push-store path the results are written to.
	Query(ctx context.Context, q *models.Query, strategy models.DeliveryStrategy) (*models.QueryResponse, error)
	// SubscribeTo creates a subscription for topic.
	SubscribeTo(ctx context.Context, topic *models.Topic) (*models.Subscription, error)
	// KeepUp extends the lifetime of s on the backend.
	KeepUp(ctx context.Context, s *models.Subscription) error
	// Cancel stops the backend from writing updates for s.
	Cancel(ctx context.Context, s *models.Subscription) error
}
