package constants

import "errors"

// Transport and protocol errors
var (
	ErrConnection       = errors.New("backend is unreachable")
	ErrClientRequest    = errors.New("request rejected by the backend")
	ErrServerProcessing = errors.New("backend failed to process the request")
	ErrCommandFailed    = errors.New("command processing failed")
	ErrCommandRejected  = errors.New("command rejected")
	ErrProtocol         = errors.New("unexpected acknowledgement format")
	ErrNoBaseURL        = errors.New("base url not set")
	ErrStoreClosed      = errors.New("push store is closed")
)

// Registry errors
var (
	ErrInvalidParser   = errors.New("invalid parser")
	ErrParserNotFound  = errors.New("parser not found")
	ErrInvalidTypeURL  = errors.New("invalid type url")
	ErrUnexpectedInput = errors.New("unexpected raw value")
)

// Builder misuse errors
var (
	ErrDuplicateBuilderCall = errors.New("builder method called more than once")
	ErrInconsistentIDType   = errors.New("ids must all be of the same kind")
	ErrUnsupportedIDType    = errors.New("unsupported id type")
	ErrMixedFilterKind      = errors.New("column filters and composite filters cannot be mixed")
)
