package upstream

import "errors"

var (
	// ErrUnauthorized is returned when an upstream service rejects our
	// credentials. Unlike transient failures this must surface to the
	// caller: continued silent retries would never succeed.
	ErrUnauthorized = errors.New("upstream rejected credentials")

	// ErrOrderNotFound is returned when the order service does not know
	// the requested order.
	ErrOrderNotFound = errors.New("order not found")
)
