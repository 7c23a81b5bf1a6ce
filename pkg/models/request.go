package models

import "time"

// ActorContext describes who sent a request and when.
type ActorContext struct {
	Actor     string     `json:"actor" cbor:"actor"`
	Timestamp time.Time  `json:"timestamp" cbor:"timestamp"`
	Zone      ZoneOffset `json:"zoneOffset" cbor:"zoneOffset"`
}

// ZoneOffset is the local time zone of the actor at request time.
type ZoneOffset struct {
	ID            string `json:"id" cbor:"id"`
	AmountSeconds int    `json:"amountSeconds" cbor:"amountSeconds"`
}

type Query struct {
	ID        string       `json:"id" cbor:"id"`
	Target    *Target      `json:"target" cbor:"target"`
	FieldMask *FieldMask   `json:"fieldMask,omitempty" cbor:"fieldMask,omitempty"`
	Context   ActorContext `json:"context" cbor:"context"`
}

type Topic struct {
	ID        string       `json:"id" cbor:"id"`
	Target    *Target      `json:"target" cbor:"target"`
	FieldMask *FieldMask   `json:"fieldMask,omitempty" cbor:"fieldMask,omitempty"`
	Context   ActorContext `json:"context" cbor:"context"`
}

type Command struct {
	ID      string         `json:"id" cbor:"id"`
	Message TypedValue     `json:"message" cbor:"message"`
	Context CommandContext `json:"context" cbor:"context"`
}

type CommandContext struct {
	ActorContext ActorContext `json:"actorContext" cbor:"actorContext"`
}

// DeliveryStrategy tells the backend how query results are written to the push store.
type DeliveryStrategy bool

const (
	// AllAtOnce writes all results before acknowledging the query.
	AllAtOnce DeliveryStrategy = true
	// OneByOne acknowledges immediately and writes results one at a time.
	OneByOne DeliveryStrategy = false
)

func (s DeliveryStrategy) String() string {
	if s == AllAtOnce {
		return "all-at-once"
	}
	return "one-by-one"
}

// WebQuery is the envelope posted to the query route.
type WebQuery struct {
	Query                    *Query `json:"query" cbor:"query"`
	DeliveredTransactionally bool   `json:"deliveredTransactionally" cbor:"deliveredTransactionally"`
}

// QueryResponse is the backend acknowledgement of a query.
//
// Count holds the announced number of items as it appeared in the
// acknowledgement: nil when absent, otherwise the decoded JSON value.
type QueryResponse struct {
	Path  string
	Count any
}

type SubscriptionID struct {
	Value string `json:"value" cbor:"value"`
}

// Subscription correlates push-store activity with the topic it was created for.
// The id value is the push-store path the backend writes updates to.
type Subscription struct {
	ID    SubscriptionID `json:"id" cbor:"id"`
	Topic *Topic         `json:"topic" cbor:"topic"`
}
