package core

import "context"

// Notifier is an interface to receive notifications about successful mutations.
// payload is the JSON encoded, output-formatted row.
type Notifier interface {
	Notify(ctx context.Context, domain string, operation Operation, payload []byte) error
}
