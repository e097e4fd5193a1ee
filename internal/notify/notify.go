// Package notify delivers purchase confirmations to buyers.
package notify

import (
	"context"
	"errors"
)

// ErrNoRecipient is returned for messages without an address; retrying cannot help.
var ErrNoRecipient = errors.New("notification has no recipient")

type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

type Notifier interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
