package constants

import "time"

const (
	DefaultHTTPTimeout       = 10 * time.Second
	DefaultKeepAliveInterval = 2 * time.Minute
	DefaultKeepAliveWorkers  = 4
	// RequestIDLength is the length of push-store listen frame ids.
	RequestIDLength = 16
)

var (
	WebsocketScheme       = "ws"
	WebsocketSecureScheme = "wss"
	HTTPScheme            = "http"
	HTTPSecureScheme      = "https"
)

// Endpoint routes served by the backend.
const (
	CommandRoute            = "/command"
	QueryRoute              = "/query"
	SubscriptionCreateRoute = "/subscription/create"
	SubscriptionKeepUpRoute = "/subscription/keep-up"
	SubscriptionCancelRoute = "/subscription/cancel"
)
