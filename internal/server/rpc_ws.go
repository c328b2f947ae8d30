package server

import (
	"net/http"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/meditate001/meditate/pkg/remote"
)

// handleRPC upgrades the request and serves JSON-RPC on it until the peer
// goes away. Every connection receives timer pushes while it is open.
func (s *WebServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		s.log.Warning("websocket accept: %v", err)
		return
	}
	ch := remote.NewChannel(r.Context(), conn)
	srv := jrpc2.NewServer(s.rpc.methods, &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(ch)
	s.notifier.Register(srv)
	s.log.Debug("rpc client connected (%d total)", s.notifier.Count())

	err = srv.Wait()
	s.notifier.Unregister(srv)
	s.log.Debug("rpc client disconnected: %v", err)
}
