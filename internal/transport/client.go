package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gitnext/internal/protocol"
)

// Remote opens websocket connections to a server at a fixed URL.
type Remote struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewRemote returns a factory dialing url.
func NewRemote(url string, log *zap.Logger) *Remote {
	return &Remote{url: url, dialer: websocket.DefaultDialer, logger: log}
}

// URL returns the server's websocket URL.
func (r *Remote) URL() string { return r.url }

// Connect dials the server.
func (r *Remote) Connect(ctx context.Context) (Connection, error) {
	ws, _, err := r.dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", r.url, err)
	}
	c := &socketConn{
		ws:       ws,
		messages: make(chan protocol.Message),
		done:     make(chan struct{}),
		logger:   r.logger,
	}
	go c.readLoop()
	return c, nil
}

// Close is a no-op; connections are closed individually.
func (r *Remote) Close(ctx context.Context) error {
	return nil
}

type socketConn struct {
	ws       *websocket.Conn
	messages chan protocol.Message
	done     chan struct{}
	logger   *zap.Logger

	writeMu sync.Mutex
	once    sync.Once
}

func (c *socketConn) Send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing %s: %w", m.Type, err)
	}
	return nil
}

func (c *socketConn) Messages() <-chan protocol.Message {
	return c.messages
}

func (c *socketConn) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
	return nil
}

func (c *socketConn) readLoop() {
	defer close(c.messages)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("connection lost", zap.Error(err))
			}
			return
		}
		m, err := protocol.DecodeServer(data)
		if err != nil {
			c.logger.Warn("dropping message", zap.Error(err))
			continue
		}
		select {
		case c.messages <- m:
		case <-c.done:
			return
		}
	}
}
