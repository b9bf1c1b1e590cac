package gateway

import "errors"

// Adapter errors. Unavailable is transient and safe to retry with the same
// external id; Rejected is terminal.
var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected request")
	ErrUnknownReference   = errors.New("unknown provider reference")
)
