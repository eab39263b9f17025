package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gitnext/internal/broadcast"
	"gitnext/internal/logger"
	"gitnext/internal/protocol"
)

const (
	outboundBuffer = 256
	writeTimeout   = 10 * time.Second
)

// Server hosts the controller behind a websocket endpoint.
type Server struct {
	controller *broadcast.Controller
	listener   net.Listener
	http       *http.Server
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	mu     sync.Mutex
	conns  map[string]*socketObserver
	closed bool
}

// NewServer returns a server that will accept connections on listener.
func NewServer(controller *broadcast.Controller, listener net.Listener, log *zap.Logger) *Server {
	s := &Server{
		controller: controller,
		listener:   listener,
		logger:     log,
		conns:      make(map[string]*socketObserver),
	}
	s.http = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) router() *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(logger.Middleware(s.logger))
	router.Use(middleware.Recoverer)

	router.Get("/", s.greet)
	router.Get(SocketPath, s.accept)

	return router
}

// Addr returns the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// URL returns the websocket URL of the server.
func (s *Server) URL() string {
	return socketURL(s.listener.Addr().String())
}

// Serve accepts connections until Close is called.
func (s *Server) Serve() error {
	s.logger.Info("server listening", zap.String("addr", s.Addr().String()))
	err := s.http.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close closes every socket and releases the port.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*socketObserver, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	s.logger.Info("server closed", zap.Int("sockets", len(conns)))
	return nil
}

func (s *Server) greet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(Greeting))
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	conn := &socketObserver{
		id:       uuid.NewString(),
		ws:       ws,
		outbound: make(chan []byte, outboundBuffer),
		done:     make(chan struct{}),
		logger:   s.logger,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close()
		return
	}
	s.conns[conn.id] = conn
	s.mu.Unlock()

	go conn.writeLoop()
	if err := s.controller.Register(conn); err != nil {
		s.logger.Warn("register failed", zap.String("observer", conn.id), zap.Error(err))
		s.drop(conn)
		return
	}
	s.logger.Info("socket connected", zap.String("observer", conn.id), zap.String("remote", r.RemoteAddr))

	s.readLoop(conn)
}

func (s *Server) readLoop(conn *socketObserver) {
	defer s.drop(conn)
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("socket read", zap.String("observer", conn.id), zap.Error(err))
			}
			return
		}
		if err := s.controller.Process(conn.id, data); err != nil {
			return
		}
	}
}

func (s *Server) drop(conn *socketObserver) {
	conn.close()
	s.mu.Lock()
	delete(s.conns, conn.id)
	s.mu.Unlock()
	if err := s.controller.Unregister(conn.id); err != nil {
		s.logger.Debug("unregister", zap.String("observer", conn.id), zap.Error(err))
	}
	s.logger.Info("socket disconnected", zap.String("observer", conn.id))
}

// socketObserver is the controller's view of one websocket. Writes go
// through a buffered channel drained by writeLoop.
type socketObserver struct {
	id       string
	ws       *websocket.Conn
	outbound chan []byte
	done     chan struct{}
	once     sync.Once
	logger   *zap.Logger
}

func (o *socketObserver) ID() string { return o.id }

// Send queues m. A client too slow to drain its buffer is disconnected.
func (o *socketObserver) Send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	select {
	case <-o.done:
		return ErrClosed
	default:
	}
	select {
	case o.outbound <- data:
		return nil
	default:
		o.close()
		return fmt.Errorf("observer %s: outbound buffer full", o.id)
	}
}

func (o *socketObserver) writeLoop() {
	for {
		select {
		case data := <-o.outbound:
			_ = o.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := o.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				o.logger.Debug("socket write", zap.String("observer", o.id), zap.Error(err))
				o.close()
				return
			}
		case <-o.done:
			return
		}
	}
}

func (o *socketObserver) close() {
	o.once.Do(func() {
		close(o.done)
		_ = o.ws.Close()
	})
}

func socketURL(hostport string) string {
	return "ws://" + hostport + SocketPath
}
