package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const probeTimeout = 2 * time.Second

// Discovery is the outcome of probing the well-known port. Exactly one of
// Listener and ExistingURL is set.
type Discovery struct {
	// Listener is bound and ready for a new server.
	Listener net.Listener
	// ExistingURL is the websocket URL of a running instance.
	ExistingURL string
}

// Discover binds host:port. If the port is taken by a previous instance,
// recognized by its greeting, it reports that instance instead. If it is
// taken by something else, it binds a free port chosen by the OS.
func Discover(ctx context.Context, host string, port int, log *zap.Logger) (Discovery, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err == nil {
		return Discovery{Listener: listener}, nil
	}
	log.Debug("well-known port busy", zap.String("addr", addr), zap.Error(err))

	if probe(ctx, addr) {
		log.Info("found running instance", zap.String("addr", addr))
		return Discovery{ExistingURL: socketURL(addr)}, nil
	}

	listener, err = lc.Listen(ctx, "tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return Discovery{}, fmt.Errorf("binding fallback port: %w", err)
	}
	log.Info("port taken by another program, using fallback",
		zap.String("addr", addr),
		zap.String("fallback", listener.Addr().String()),
	)
	return Discovery{Listener: listener}, nil
}

// probe reports whether the HTTP server at addr answers with Greeting.
func probe(ctx context.Context, addr string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(len(Greeting))+1))
	if err != nil {
		return false
	}
	return string(body) == Greeting
}
