package server

import (
	"context"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/meditate001/meditate/common"
	"github.com/meditate001/meditate/pkg/logger"
	"github.com/meditate001/meditate/pkg/timer"
)

// RPCNotifier maintains a set of connected jrpc2 WebSocket servers
// and broadcasts push notifications to all of them.
type RPCNotifier struct {
	mu      sync.RWMutex
	servers map[*jrpc2.Server]struct{}
	log     logger.Logger
}

// NewRPCNotifier creates a new notifier. A nil logger discards output.
func NewRPCNotifier(l logger.Logger) *RPCNotifier {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &RPCNotifier{
		servers: make(map[*jrpc2.Server]struct{}),
		log:     l,
	}
}

// Register adds a server to the broadcast set.
func (n *RPCNotifier) Register(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[srv] = struct{}{}
}

// Unregister removes a server from the broadcast set.
func (n *RPCNotifier) Unregister(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.servers, srv)
}

// Broadcast sends a push notification to all registered servers.
// Servers that fail to receive (e.g., disconnected) are unregistered.
func (n *RPCNotifier) Broadcast(method string, params any) {
	n.mu.RLock()
	servers := make([]*jrpc2.Server, 0, len(n.servers))
	for srv := range n.servers {
		servers = append(servers, srv)
	}
	n.mu.RUnlock()

	var failed []*jrpc2.Server
	for _, srv := range servers {
		if err := srv.Notify(context.Background(), method, params); err != nil {
			n.log.Warning("RPC push %s failed: %v", method, err)
			failed = append(failed, srv)
		}
	}

	if len(failed) > 0 {
		n.mu.Lock()
		for _, srv := range failed {
			delete(n.servers, srv)
		}
		n.mu.Unlock()
	}
}

// Count returns the number of registered servers (for testing).
func (n *RPCNotifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.servers)
}

const pushQueueSize = 64

type push struct {
	method common.NotificationType
	params any
}

// sessionPusher forwards session output to an RPCNotifier. Ticks are only
// pushed when the displayed text or the state changes. Delivery happens on
// its own goroutine so the event loop never waits on a slow client; a full
// queue drops ticks but never a completion.
type sessionPusher struct {
	n     *RPCNotifier
	log   logger.Logger
	queue chan push
	last  timer.Tick
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func newSessionPusher(n *RPCNotifier, l logger.Logger) *sessionPusher {
	p := &sessionPusher{
		n:     n,
		log:   l,
		queue: make(chan push, pushQueueSize),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *sessionPusher) run() {
	defer close(p.done)
	for m := range p.queue {
		p.n.Broadcast(string(m.method), m.params)
	}
}

func (p *sessionPusher) enqueue(m push) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for {
		select {
		case p.queue <- m:
			return
		default:
		}
		if m.method != common.NotifyComplete {
			p.log.Warning("push queue full, dropping %s", m.method)
			return
		}
		// Completions take the place of the oldest queued push.
		select {
		case old := <-p.queue:
			p.log.Warning("push queue full, dropping %s", old.method)
		default:
		}
	}
}

// OnTick runs on the event loop goroutine.
func (p *sessionPusher) OnTick(t timer.Tick) {
	if t.Text == p.last.Text && t.State == p.last.State {
		return
	}
	p.last = t
	p.enqueue(push{method: common.NotifyTick, params: tickNotification(t)})
}

// OnComplete runs on the event loop goroutine.
func (p *sessionPusher) OnComplete(c timer.Completion) {
	p.enqueue(push{method: common.NotifyComplete, params: &common.CompleteNotification{
		DurationMs: c.Duration.Milliseconds(),
		Chimed:     c.Chimed,
		At:         c.At.UTC().Format(time.RFC3339),
	}})
}

// Close stops delivery once queued pushes have been sent.
func (p *sessionPusher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
}

func tickNotification(t timer.Tick) *common.TickNotification {
	return &common.TickNotification{
		State:       t.State.String(),
		RemainingMs: t.Remaining.Milliseconds(),
		TotalMs:     t.Total.Milliseconds(),
		Text:        t.Text,
		Fraction:    t.Fraction,
		Degrees:     t.Degrees,
	}
}
