// Package wsclient implements the client half of the synchronization
// protocol: dial, await the snapshot, then run a select loop that
// applies inbound batches and forwards local mutations outbound (spec
// §4.9).
package wsclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adred-codev/gridlab/internal/grid"
	"github.com/adred-codev/gridlab/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	handshakeWait  = 10 * time.Second
	outboundBuffer = 64
)

// Client holds one connection's engine replica and the goroutine that
// keeps it synchronized with the server.
type Client struct {
	id     string
	logger *zap.Logger

	conn *websocket.Conn

	mu     sync.Mutex
	engine *grid.Engine

	outbound chan []byte
	done     chan struct{}
}

// Initialize dials url with the x-grid-id handshake header naming the
// room to join, awaits the initial snapshot, and starts the client's
// background sync loop. clientID identifies this client in logs and is
// sent as x-identification so the server can reuse it as the room's
// broadcast-exclusion key.
func Initialize(ctx context.Context, url, gridID, clientID string, logger *zap.Logger) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeWait}
	header := http.Header{
		"x-grid-id":        []string{gridID},
		"x-identification": []string{clientID},
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read initial snapshot: %w", err)
	}
	view, err := protocol.DecodeSnapshot(payload)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("decode initial snapshot: %w", err)
	}

	c := &Client{
		id:       clientID,
		logger:   logger,
		conn:     conn,
		engine:   grid.NewEngineFromView(view),
		outbound: make(chan []byte, outboundBuffer),
		done:     make(chan struct{}),
	}

	c.engine.Events().Subscribe(grid.EventBatchChange, func(_ grid.View, value grid.EventValue) {
		c.forward(value)
	})

	go c.loop()
	return c, nil
}

// Engine returns the client's local engine replica, for callers to
// Add/Move/Remove items on. Mutations made here produce a BatchChange
// event that the client's loop forwards to the server automatically.
func (c *Client) Engine() *grid.Engine { return c.engine }

// Close tears down the connection and stops the sync loop.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) forward(value grid.EventValue) {
	if value.BatchChange == nil {
		return
	}
	payload, err := protocol.EncodeBatch(*value.BatchChange)
	if err != nil {
		c.logf("encode outbound batch", err)
		return
	}
	select {
	case c.outbound <- payload:
	default:
		c.logf("outbound queue full, dropping local batch", nil)
	}
}

func (c *Client) loop() {
	defer close(c.done)

	inbound := make(chan []byte, outboundBuffer)
	readErr := make(chan error, 1)
	go c.readPump(inbound, readErr)

	for {
		select {
		case payload, ok := <-inbound:
			if !ok {
				return
			}
			c.applyInbound(payload)
		case payload := <-c.outbound:
			if err := c.writeMessage(payload); err != nil {
				c.logf("write outbound batch", err)
				return
			}
		case err := <-readErr:
			if err != nil {
				c.logf("read loop", err)
			}
			return
		}
	}
}

func (c *Client) readPump(inbound chan<- []byte, errc chan<- error) {
	defer close(inbound)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		inbound <- payload
	}
}

// applyInbound replays a server-broadcast batch onto the local engine
// without re-running collision resolution, per spec §4.5/§4.9.
func (c *Client) applyInbound(payload []byte) {
	batch, err := protocol.DecodeBatch(payload)
	if err != nil {
		c.logf("decode inbound batch", err)
		return
	}
	if _, err := c.engine.ApplyChanges(batch.Changes); err != nil {
		c.logf("apply inbound batch", err)
	}
}

func (c *Client) writeMessage(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.BinaryMessage, payload)
}

func (c *Client) logf(msg string, err error) {
	if c.logger == nil {
		return
	}
	if err != nil {
		c.logger.Warn(msg, zap.String("client", c.id), zap.Error(err))
		return
	}
	c.logger.Warn(msg, zap.String("client", c.id))
}
