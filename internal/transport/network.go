package transport

import (
	"context"

	"go.uber.org/zap"

	"gitnext/internal/broadcast"
	"gitnext/internal/config"
)

// Network connects over websockets, hosting the server itself unless
// discovery found a running instance.
type Network struct {
	*Remote
	server *Server
	serve  chan error
}

// NewNetwork runs discovery on host:port. When no instance is running it
// starts a server for controller; the caller must still run the controller.
func NewNetwork(ctx context.Context, host string, port int, controller *broadcast.Controller, log *zap.Logger) (*Network, error) {
	found, err := Discover(ctx, host, port, log)
	if err != nil {
		return nil, err
	}
	if found.Listener == nil {
		return &Network{Remote: NewRemote(found.ExistingURL, log)}, nil
	}

	server := NewServer(controller, found.Listener, log)
	n := &Network{
		Remote: NewRemote(server.URL(), log),
		server: server,
		serve:  make(chan error, 1),
	}
	go func() { n.serve <- server.Serve() }()
	return n, nil
}

// Hosting reports whether this process runs the server.
func (n *Network) Hosting() bool {
	return n.server != nil
}

// Close stops the server, if this process hosts it.
func (n *Network) Close(ctx context.Context) error {
	if n.server == nil {
		return nil
	}
	if err := n.server.Close(ctx); err != nil {
		return err
	}
	return <-n.serve
}

// NewFactory returns the connection factory for backbone. Loopback never
// touches the network.
func NewFactory(ctx context.Context, backbone config.Backbone, port int, controller *broadcast.Controller, log *zap.Logger) (ConnectionFactory, error) {
	if backbone == config.BackboneLoopback {
		return NewLoopback(controller, log), nil
	}
	network, err := NewNetwork(ctx, Localhost, port, controller, log)
	if err != nil {
		return nil, err
	}
	return network, nil
}
