// Package notify publishes successful mutations of the generated API to message brokers
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/restgen/core"
)

// Message is the published notification
type Message struct {
	Domain    string          `json:"domain"`
	Operation core.Operation  `json:"operation"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// now is replaced in tests
var now = time.Now

func encode(domain string, operation core.Operation, payload []byte) ([]byte, error) {
	return json.Marshal(Message{
		Domain:    domain,
		Operation: operation,
		Data:      json.RawMessage(payload),
		Timestamp: now().UTC(),
	})
}

// Fanout notifies every notifier in order. All notifiers are called, the errors are joined.
type Fanout []core.Notifier

// Notify implements core.Notifier
func (f Fanout) Notify(ctx context.Context, domain string, operation core.Operation, payload []byte) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, domain, operation, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
