// Package broadcast fans pipeline events out to every connected observer.
//
// A Controller is an actor: all of its state is owned by the goroutine in
// Run, and every other method hands that goroutine a function to apply.
// Observer registration and event delivery are therefore totally ordered,
// which is what makes replay to late joiners gap free.
package broadcast

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"gitnext/internal/protocol"
)

// ErrStopped is returned once the controller's Run loop has exited.
var ErrStopped = errors.New("controller stopped")

// Observer is one connected endpoint. Send must not block; it queues m for
// delivery and returns an error only when the observer is unusable.
type Observer interface {
	ID() string
	Send(m protocol.Message) error
}

// Runner starts a pipeline run and streams its events. The channel is
// closed after the terminal event.
type Runner interface {
	Run(ctx context.Context) <-chan protocol.Message
}

// Controller owns the observers, the session log and the running flag.
type Controller struct {
	runner Runner
	logger *zap.Logger

	ops     chan func(*state)
	stopped chan struct{}
}

type state struct {
	ctx       context.Context
	observers []Observer
	session   []protocol.Message
	running   bool
}

// New returns a Controller that starts runs with runner. Call Run before
// using it.
func New(runner Runner, logger *zap.Logger) *Controller {
	return &Controller{
		runner:  runner,
		logger:  logger,
		ops:     make(chan func(*state)),
		stopped: make(chan struct{}),
	}
}

// Run processes requests until ctx is cancelled. Pipeline runs started by
// the controller inherit ctx.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.stopped)
	s := &state{ctx: ctx}
	for {
		select {
		case op := <-c.ops:
			op(s)
		case <-ctx.Done():
			c.logger.Debug("controller stopped", zap.Int("observers", len(s.observers)))
			return
		}
	}
}

func (c *Controller) do(op func(*state)) error {
	select {
	case c.ops <- op:
		return nil
	case <-c.stopped:
		return ErrStopped
	}
}

// query runs op on the loop and waits for it to finish.
func (c *Controller) query(op func(*state)) error {
	done := make(chan struct{})
	if err := c.do(func(s *state) {
		op(s)
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrStopped
	}
}

// Register adds o to the fan-out set and replays the current session to it
// before any later event.
func (c *Controller) Register(o Observer) error {
	return c.query(func(s *state) {
		s.observers = append(s.observers, o)
		c.logger.Info("observer registered",
			zap.String("observer", o.ID()),
			zap.Int("replay", len(s.session)),
		)
		for _, m := range s.session {
			c.send(o, m)
		}
	})
}

// Unregister removes the observer with id. A run in flight is unaffected.
func (c *Controller) Unregister(id string) error {
	return c.query(func(s *state) {
		for i, o := range s.observers {
			if o.ID() == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				c.logger.Info("observer unregistered", zap.String("observer", id))
				return
			}
		}
	})
}

// Process handles one raw request from the observer with id.
func (c *Controller) Process(id string, data []byte) error {
	m, err := protocol.DecodeClient(data)
	return c.do(func(s *state) {
		if err != nil {
			c.logger.Warn("rejected message", zap.String("observer", id), zap.Error(err))
			if o := s.find(id); o != nil {
				c.send(o, protocol.Failure(err))
			}
			return
		}

		switch m.Type {
		case protocol.Hello:
			if o := s.find(id); o != nil {
				c.send(o, protocol.Event(protocol.Welcome))
			}
		case protocol.LoadData:
			c.start(s)
		}
	})
}

// Load starts a pipeline run unless one is already in flight.
func (c *Controller) Load() error {
	return c.do(c.start)
}

// Session returns a copy of the current session log.
func (c *Controller) Session() ([]protocol.Message, error) {
	var session []protocol.Message
	err := c.query(func(s *state) {
		session = append([]protocol.Message{}, s.session...)
	})
	return session, err
}

// Running reports whether a pipeline run is in flight.
func (c *Controller) Running() (bool, error) {
	var running bool
	err := c.query(func(s *state) {
		running = s.running
	})
	return running, err
}

func (c *Controller) start(s *state) {
	if s.running {
		c.logger.Debug("load ignored, run in flight")
		return
	}
	s.running = true
	s.session = nil
	c.logger.Info("pipeline run started", zap.Int("observers", len(s.observers)))

	events := c.runner.Run(s.ctx)
	go func() {
		for m := range events {
			m := m
			if err := c.do(func(s *state) { c.publish(s, m) }); err != nil {
				return
			}
		}
	}()
}

func (c *Controller) publish(s *state, m protocol.Message) {
	s.session = append(s.session, m)
	if m.Terminal() {
		s.running = false
		c.logger.Info("pipeline run finished",
			zap.String("result", string(m.Type)),
			zap.Int("events", len(s.session)),
		)
	}
	for _, o := range s.observers {
		c.send(o, m)
	}
}

func (c *Controller) send(o Observer, m protocol.Message) {
	if err := o.Send(m); err != nil {
		c.logger.Warn("send failed",
			zap.String("observer", o.ID()),
			zap.String("type", string(m.Type)),
			zap.Error(err),
		)
	}
}

func (s *state) find(id string) Observer {
	for _, o := range s.observers {
		if o.ID() == id {
			return o
		}
	}
	return nil
}
