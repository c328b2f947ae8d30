package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/meditate001/meditate/common"
	"github.com/meditate001/meditate/internal/session"
	"github.com/meditate001/meditate/pkg/logger"
)

const readHeaderTimeout = 10 * time.Second

// WebServer serves the cached web shell on "/" and the timer RPC on
// common.RPCPath.
type WebServer struct {
	log      logger.Logger
	session  *session.Session
	assets   http.Handler
	rpc      *RPCServer
	secret   string
	notifier *RPCNotifier
	pusher   *sessionPusher
	unsub    func()

	server     *http.Server
	cancelBase context.CancelFunc
	mu         sync.Mutex
}

// NewWebServer wires the RPC methods and notifications to s. The assets
// handler, normally an appcache.Worker, answers every non-RPC request.
func NewWebServer(l logger.Logger, s *session.Session, assets http.Handler, rpcCfg *RPCConfig) *WebServer {
	if l == nil {
		l = logger.NewNopLogger()
	}
	if rpcCfg == nil {
		rpcCfg = &RPCConfig{}
	}
	ws := &WebServer{
		log:      l,
		session:  s,
		assets:   assets,
		rpc:      NewRPCServer(rpcCfg, s),
		secret:   rpcCfg.Secret,
		notifier: NewRPCNotifier(l),
	}
	ws.pusher = newSessionPusher(ws.notifier, l)
	ws.unsub = s.Subscribe(ws.pusher)
	return ws
}

// Handler returns the HTTP routes.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	var rpc http.Handler = http.HandlerFunc(s.handleRPC)
	if s.secret != "" {
		rpc = requireToken(s.secret, rpc)
	}
	mux.Handle(common.RPCPath, rpc)
	if s.assets != nil {
		mux.Handle("/", s.assets)
	}
	return mux
}

// Serve accepts connections on l until Shutdown.
func (s *WebServer) Serve(l net.Listener) error {
	// Hijacked WebSocket connections are not closed by Shutdown; canceling
	// the base context ends them.
	base, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	s.cancelBase = cancel
	srv := s.server
	s.mu.Unlock()

	s.log.Info("listening on http://%s", l.Addr())
	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil // Expected during shutdown
	}
	return err
}

// Shutdown gracefully stops the web server and detaches it from the
// session.
func (s *WebServer) Shutdown(ctx context.Context) error {
	s.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	s.cancelBase()
	return s.server.Shutdown(ctx)
}

// Close stops timer pushes. It is called by Shutdown and is safe to call
// more than once.
func (s *WebServer) Close() {
	s.unsub()
	s.pusher.Close()
}
