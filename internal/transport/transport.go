// Package transport connects observers to a broadcast controller, either in
// process (loopback) or over a websocket (network).
package transport

import (
	"context"
	"errors"

	"gitnext/internal/protocol"
)

const (
	// Localhost is the interface the networked server binds.
	Localhost = "127.0.0.1"
	// DefaultPort is the well-known port a networked server binds first.
	DefaultPort = 8099
	// Greeting is the body served at "/" and checked during discovery.
	Greeting = "Welcome to GitNext"
	// SocketPath is where the websocket endpoint is mounted.
	SocketPath = "/gitnext"
)

// ErrClosed is returned when sending on a closed connection.
var ErrClosed = errors.New("connection closed")

// Connection is the client side of an observer. Messages delivers every
// event from the controller in order and is closed with the connection.
type Connection interface {
	Send(m protocol.Message) error
	Messages() <-chan protocol.Message
	Close() error
}

// ConnectionFactory opens connections to a controller. A connection
// returned by Connect is already open.
type ConnectionFactory interface {
	Connect(ctx context.Context) (Connection, error)
	Close(ctx context.Context) error
}
