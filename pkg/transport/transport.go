package transport

import (
	"context"
	"errors"
	"io"
)

// Transport moves whole JSON-RPC messages between two peers. Framing is the
// implementation's concern; callers see one message per Send and Receive.
//
// Send must be safe for concurrent use and must deliver messages in call
// order. Receive is called from a single goroutine and returns io.EOF once
// the peer has closed the channel and every queued message was delivered.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// DefaultMaxMessageSize bounds a single framed message
const DefaultMaxMessageSize = 4 << 20

// IsClosed reports whether err signals an orderly end of the stream
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF)
}
