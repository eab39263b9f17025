package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitnext/internal/broadcast"
	"gitnext/internal/protocol"
)

// Loopback connects observers living in the same process as the
// controller.
type Loopback struct {
	controller *broadcast.Controller
	logger     *zap.Logger

	mu    sync.Mutex
	conns map[string]*loopbackConn
}

// NewLoopback returns a factory for in-process connections to controller.
func NewLoopback(controller *broadcast.Controller, logger *zap.Logger) *Loopback {
	return &Loopback{
		controller: controller,
		logger:     logger,
		conns:      make(map[string]*loopbackConn),
	}
}

// Connect registers a new observer and returns its client side.
func (l *Loopback) Connect(ctx context.Context) (Connection, error) {
	conn := &loopbackConn{
		loopbackObserver: &loopbackObserver{id: uuid.NewString(), inbound: newQueue()},
		owner:            l,
	}
	l.mu.Lock()
	l.conns[conn.id] = conn
	l.mu.Unlock()

	if err := l.controller.Register(conn.loopbackObserver); err != nil {
		l.forget(conn.id)
		conn.inbound.close()
		return nil, err
	}
	l.logger.Debug("loopback connected", zap.String("observer", conn.id))
	return conn, nil
}

// Close closes every open connection.
func (l *Loopback) Close(ctx context.Context) error {
	l.mu.Lock()
	conns := make([]*loopbackConn, 0, len(l.conns))
	for _, conn := range l.conns {
		conns = append(conns, conn)
	}
	l.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	return nil
}

func (l *Loopback) forget(id string) {
	l.mu.Lock()
	delete(l.conns, id)
	l.mu.Unlock()
}

// loopbackObserver is the controller's end of a loopback connection.
type loopbackObserver struct {
	id      string
	inbound *queue
}

func (o *loopbackObserver) ID() string { return o.id }

func (o *loopbackObserver) Send(m protocol.Message) error {
	return o.inbound.push(m)
}

// loopbackConn is the client's end. Requests are encoded as they would be
// on the wire so the controller sees the same bytes either way.
type loopbackConn struct {
	*loopbackObserver
	owner *Loopback
	once  sync.Once
}

func (c *loopbackConn) Send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return c.owner.controller.Process(c.id, data)
}

func (c *loopbackConn) Messages() <-chan protocol.Message {
	return c.inbound.out
}

func (c *loopbackConn) Close() error {
	c.once.Do(func() {
		c.inbound.close()
		c.owner.forget(c.id)
		if err := c.owner.controller.Unregister(c.id); err != nil {
			c.owner.logger.Debug("loopback unregister", zap.String("observer", c.id), zap.Error(err))
		}
	})
	return nil
}
