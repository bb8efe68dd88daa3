package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/pkg/logger"
)

// WebServer serves the JSON-RPC HTTP bridge, the push-enabled websocket
// endpoint and the metrics endpoint.
type WebServer struct {
	l         logger.Logger
	rpc       *RPCServer
	secret    string
	listenAll bool
	port      int
	metrics   http.Handler
	server    *http.Server
	mu        sync.Mutex
}

// NewWebServer builds the HTTP surface. The JSON-RPC endpoints reject
// every request when secret is empty; metrics may be nil.
func NewWebServer(l logger.Logger, rpc *RPCServer, secret string, listenAll bool, port int, metrics http.Handler) *WebServer {
	return &WebServer{l: l, rpc: rpc, secret: secret, listenAll: listenAll, port: port, metrics: metrics}
}

func (s *WebServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/jsonrpc", requireToken(s.secret, s.rpc.bridge))
	mux.Handle("/jsonrpc/ws", requireToken(s.secret, http.HandlerFunc(s.rpc.handleWebSocket)))
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

func (s *WebServer) addr() string {
	host := common.TCPHost
	if s.listenAll {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, fmt.Sprint(s.port))
}

// Start blocks serving HTTP until Shutdown.
func (s *WebServer) Start() error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              s.addr(),
		Handler:           s.handler(),
		ErrorLog:          logger.ToStdLogger(s.l),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.l.Info("web: listening on %s", srv.Addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *WebServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
