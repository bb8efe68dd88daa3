// Package server exposes the run control surface to clients: JSON-RPC
// over a local socket (a named pipe on Windows) and over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/pkg/logger"
)

type Config struct {
	// TCPPort is the control port used when no socket or pipe is
	// available. The web server listens on TCPPort+1.
	TCPPort int
	// Secret authenticates HTTP JSON-RPC clients. Empty disables them.
	Secret    string
	ListenAll bool
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// Server accepts local control connections and runs the web server
// next to them.
type Server struct {
	log      logger.Logger
	rpc      *RPCServer
	ws       *WebServer
	port     int
	listener net.Listener
	conns    sync.WaitGroup
	mu       sync.Mutex
}

// NewServer wires svc to both transports. Status changes published
// through notifier reach every connected client.
func NewServer(l logger.Logger, svc Service, notifier *RPCNotifier, cfg Config) *Server {
	if cfg.TCPPort == 0 {
		cfg.TCPPort = common.DefaultTCPPort
	}
	rpc := NewRPCServer(svc, notifier)
	return &Server{
		log:  l,
		rpc:  rpc,
		port: cfg.TCPPort,
		ws:   NewWebServer(l, rpc, cfg.Secret, cfg.ListenAll, cfg.TCPPort+1, cfg.Metrics),
	}
}

// Start blocks accepting connections until ctx is cancelled. Each
// connection carries a length-framed JSON-RPC session.
func (s *Server) Start(ctx context.Context) error {
	l, err := s.createListener()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	go func() {
		if err := s.ws.Start(); err != nil {
			s.log.Error("web: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	s.log.Info("server: listening on %s", l.Addr())
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error("server: accept: %v", err)
			continue
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.rpc.serve(common.Framed(conn, conn))
		}()
	}
}

// Shutdown closes the listener and the web server and removes the
// socket file. Established sessions end when their clients disconnect.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.log.Warning("server: close listener: %v", err)
		}
		s.listener = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.ws.Shutdown(shutdownCtx); err != nil {
		s.log.Warning("web: shutdown: %v", err)
	}
	_ = s.rpc.Close()

	if err := removeSocket(); err != nil {
		s.log.Warning("server: remove socket: %v", err)
	}
	return nil
}
