package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gitnext/internal/broadcast"
	"gitnext/internal/config"
	"gitnext/internal/protocol"
)

const timeout = 5 * time.Second

func requireReceive(t *testing.T, ch <-chan protocol.Message, msg string) protocol.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed: %s", msg)
		}
		return m
	case <-time.After(timeout):
		t.Fatalf("timed out: %s", msg)
	}
	panic("unreachable")
}

// stepRunner emits a fixed script; each run waits for release before its
// terminal event so tests can join mid-run.
type stepRunner struct {
	mu      sync.Mutex
	runs    int
	release chan struct{}
}

func newStepRunner() *stepRunner {
	return &stepRunner{release: make(chan struct{})}
}

func (r *stepRunner) Run(ctx context.Context) <-chan protocol.Message {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()

	out := make(chan protocol.Message)
	go func() {
		defer close(out)
		for _, m := range []protocol.Message{
			protocol.Event(protocol.LoadingConfig),
			protocol.Event(protocol.LoadedConfig),
		} {
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-r.release:
		case <-ctx.Done():
			return
		}
		select {
		case out <- protocol.WithData(protocol.StoredData, nil):
		case <-ctx.Done():
		}
	}()
	return out
}

func (r *stepRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func startController(t *testing.T, runner broadcast.Runner) *broadcast.Controller {
	t.Helper()
	c := broadcast.New(runner, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

// exercise runs the same conversation against any factory.
func exercise(t *testing.T, factory ConnectionFactory, runner *stepRunner) {
	ctx := context.Background()

	first, err := factory.Connect(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })

	require.NoError(t, first.Send(protocol.Event(protocol.Hello)))
	require.Equal(t, protocol.Welcome, requireReceive(t, first.Messages(), "welcome").Type)

	require.NoError(t, first.Send(protocol.Event(protocol.LoadData)))
	require.Equal(t, protocol.LoadingConfig, requireReceive(t, first.Messages(), "first phase").Type)
	require.Equal(t, protocol.LoadedConfig, requireReceive(t, first.Messages(), "second phase").Type)

	second, err := factory.Connect(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	require.Equal(t, protocol.LoadingConfig, requireReceive(t, second.Messages(), "replay 1").Type)
	require.Equal(t, protocol.LoadedConfig, requireReceive(t, second.Messages(), "replay 2").Type)

	// Joining does not start another run, nor does asking while one is active.
	require.NoError(t, second.Send(protocol.Event(protocol.LoadData)))
	require.NoError(t, second.Send(protocol.Event(protocol.Hello)))
	require.Equal(t, protocol.Welcome, requireReceive(t, second.Messages(), "welcome after load").Type)
	close(runner.release)

	for _, conn := range []Connection{first, second} {
		m := requireReceive(t, conn.Messages(), "stored data")
		require.Equal(t, protocol.StoredData, m.Type)
	}
	require.Equal(t, 1, runner.count())

	require.NoError(t, second.Send(protocol.Message{Type: protocol.Welcome}))
	m := requireReceive(t, second.Messages(), "rejection")
	require.Equal(t, protocol.Error, m.Type)
	require.Contains(t, m.Error, "unrecognized command")
}

func TestLoopback(t *testing.T) {
	runner := newStepRunner()
	factory := NewLoopback(startController(t, runner), zap.NewNop())
	t.Cleanup(func() { _ = factory.Close(context.Background()) })

	exercise(t, factory, runner)
}

func TestLoopbackCloseEndsMessages(t *testing.T) {
	factory := NewLoopback(startController(t, newStepRunner()), zap.NewNop())
	conn, err := factory.Connect(context.Background())
	require.NoError(t, err)

	require.NoError(t, factory.Close(context.Background()))

	select {
	case _, ok := <-conn.Messages():
		require.False(t, ok)
	case <-time.After(timeout):
		t.Fatal("messages channel not closed")
	}
}

func TestQueueNeverBlocks(t *testing.T) {
	q := newQueue()
	defer q.close()

	for i := 0; i < 1000; i++ {
		require.NoError(t, q.push(protocol.Message{Type: protocol.Type(rune('a' + i%26))}))
	}
	for i := 0; i < 1000; i++ {
		m := requireReceive(t, q.out, "queued")
		require.Equal(t, protocol.Type(rune('a'+i%26)), m.Type)
	}

	q.close()
	require.ErrorIs(t, q.push(protocol.Event(protocol.Welcome)), ErrClosed)
}

func TestNewFactorySelectsBackbone(t *testing.T) {
	c := startController(t, newStepRunner())

	factory, err := NewFactory(context.Background(), config.BackboneLoopback, DefaultPort, c, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &Loopback{}, factory)

	factory, err = NewFactory(context.Background(), config.BackboneNetwork, 0, c, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &Network{}, factory)
	require.NoError(t, factory.Close(context.Background()))
}
