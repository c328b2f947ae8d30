package remote

import (
	"context"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2/channel"
)

// wsChannel adapts a coder/websocket.Conn to the jrpc2 Channel interface.
// Each message on the socket carries one JSON-RPC request or response.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

// NewChannel wraps conn for use by a jrpc2 client or server. Reads and
// writes fail once ctx ends.
func NewChannel(ctx context.Context, conn *cws.Conn) channel.Channel {
	return &wsChannel{conn: conn, ctx: ctx}
}

// Send writes a JSON-RPC message to the WebSocket connection.
func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

// Recv reads a JSON-RPC message from the WebSocket connection.
func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

// Close shuts down the WebSocket connection with a normal closure status.
func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}
