// The [spineweb] package is a client of backends which acknowledge requests
// over HTTP and deliver their results through a separate push store.
//
// # Requests
//
// Queries and topics are composed with builders obtained from [Client.Query]
// and [Client.Topic]. Each builder setter may be called once; misuse is
// reported by Build. Column predicates are made with the
// [github.com/spineio/spineweb.go/pkg/filters] package.
//
// # Fetching
//
// A query is acknowledged with the push store path its results are written
// to and, for streamed queries, the number of results to expect.
// [Client.FetchAtOnce] waits for all of them to be written and reads them in
// one go. [Client.FetchOneByOne] returns a stream which emits each result as
// it arrives and completes once the announced count is reached.
//
// # Subscriptions
//
// [Client.Subscribe] exposes the changes of the entities matching a topic as
// three streams: added, changed and removed. Subscriptions are kept alive on
// the backend until unsubscribed.
//
// # Type conversion
//
// Values read from the push store are converted to protobuf messages by the
// parser registered for their type URL. Well-known types are supported out of
// the box; others are added with [Client.RegisterParser] or
// [github.com/spineio/spineweb.go/pkg/parser.Register].
//
// # Configuration
//
// [LoadConfig] reads a config file and SPINEWEB_* environment variables.
// The cmd/spineweb command line tool is built on the same settings.
package spineweb
