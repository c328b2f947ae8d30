// Package remote is a JSON-RPC client for a running "meditate serve".
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/meditate001/meditate/common"
)

// Options configures Dial.
type Options struct {
	// Secret is sent as a Bearer token when set.
	Secret     string
	HTTPClient *http.Client
	// OnTick and OnComplete receive server pushes. Both run on the
	// client's receive goroutine and must not block.
	OnTick     func(common.TickNotification)
	OnComplete func(common.CompleteNotification)
}

// Client talks to one server over a single WebSocket.
type Client struct {
	cli    *jrpc2.Client
	cancel context.CancelFunc
}

// Endpoint turns a server address ("host:port", "http://host:port" or a
// full ws URL) into the RPC WebSocket URL.
func Endpoint(addr string) (string, error) {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", addr)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = common.RPCPath
	}
	return u.String(), nil
}

// Dial connects to the RPC endpoint at addr, see Endpoint.
func Dial(ctx context.Context, addr string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}
	endpoint, err := Endpoint(addr)
	if err != nil {
		return nil, err
	}
	dopts := &cws.DialOptions{HTTPClient: opts.HTTPClient}
	if opts.Secret != "" {
		dopts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + opts.Secret}}
	}
	conn, _, err := cws.Dial(ctx, endpoint, dopts)
	if err != nil {
		return nil, fmt.Errorf("error connecting to server: %w", err)
	}
	// The connection outlives the dial context.
	cctx, cancel := context.WithCancel(context.Background())
	cli := jrpc2.NewClient(NewChannel(cctx, conn), &jrpc2.ClientOptions{
		OnNotify: func(req *jrpc2.Request) { dispatch(opts, req) },
	})
	return &Client{cli: cli, cancel: cancel}, nil
}

func dispatch(opts *Options, req *jrpc2.Request) {
	switch common.NotificationType(req.Method()) {
	case common.NotifyTick:
		var t common.TickNotification
		if opts.OnTick != nil && req.UnmarshalParams(&t) == nil {
			opts.OnTick(t)
		}
	case common.NotifyComplete:
		var c common.CompleteNotification
		if opts.OnComplete != nil && req.UnmarshalParams(&c) == nil {
			opts.OnComplete(c)
		}
	}
}

// Close ends the connection.
func (c *Client) Close() error {
	err := c.cli.Close()
	c.cancel()
	return err
}

func invoke[T any](ctx context.Context, c *Client, method string, params any) (*T, error) {
	var res T
	if err := c.cli.CallResult(ctx, method, params, &res); err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", method, err)
	}
	return &res, nil
}

// Call invokes any method and returns the raw result.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	res, err := invoke[json.RawMessage](ctx, c, method, params)
	if err != nil {
		return nil, err
	}
	return *res, nil
}
