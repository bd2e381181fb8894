// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/waypost/internal/livesync"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 16

	// selectRate and selectBurst bound how fast one client may switch
	// trackers; each switch costs a store query.
	selectRate  = rate.Limit(2)
	selectBurst = 5
)

// clientIDCounter generates unique, monotonically increasing IDs for clients.
var clientIDCounter atomic.Uint64

// Client connects one websocket to one live dashboard session.
type Client struct {
	id      uint64
	hub     *Hub
	conn    *websocket.Conn
	dash    *livesync.Dashboard
	send    chan Message
	limiter *rate.Limiter

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewClient creates a client for conn driving dash.
func NewClient(hub *Hub, conn *websocket.Conn, dash *livesync.Dashboard) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:      clientIDCounter.Add(1),
		hub:     hub,
		conn:    conn,
		dash:    dash,
		send:    make(chan Message, sendBuffer),
		limiter: rate.NewLimiter(selectRate, selectBurst),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ID returns the client's unique identifier
func (c *Client) ID() uint64 {
	return c.id
}

// Serve registers the client with its hub and starts its pumps. When
// trackerID is non-empty the dashboard opens on it immediately. It returns
// false if the hub has already shut down.
func (c *Client) Serve(trackerID string, window models.Window) bool {
	if !c.hub.register(c) {
		c.close()
		_ = c.conn.Close()
		return false
	}

	go c.dash.Run(c.ctx)
	go c.forwardPump()
	go c.writePump()
	go c.readPump()

	if trackerID != "" {
		c.selectDashboard(trackerID, window)
	}
	return true
}

// close stops the dashboard and the pumps. It is safe to call repeatedly.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.dash.Close()
	})
}

// readPump handles select and ping messages from the browser.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				metrics.WSErrors.WithLabelValues("read").Inc()
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close error")
			}
			return
		}
		metrics.WSMessagesReceived.Inc()

		switch msg.Type {
		case MessageTypePing:
			c.enqueue(Message{Type: MessageTypePong})
		case MessageTypeSelect:
			if !c.limiter.Allow() {
				metrics.WSErrors.WithLabelValues("rate_limited").Inc()
				c.sendError("too many select messages, slow down")
				continue
			}
			window, err := models.ParseWindow(msg.Range)
			if err != nil {
				c.sendError(err.Error())
				continue
			}
			c.selectDashboard(msg.TrackerID, window)
		default:
			c.sendError("unknown message type " + msg.Type)
		}
	}
}

func (c *Client) selectDashboard(trackerID string, window models.Window) {
	err := c.dash.Select(c.ctx, trackerID, window)
	switch {
	case err == nil:
	case errors.Is(err, livesync.ErrTrackerRequired):
		c.sendError(err.Error())
	case errors.Is(err, livesync.ErrClosed), errors.Is(err, context.Canceled):
	default:
		logging.Warn().Err(err).Uint64("client_id", c.id).Msg("dashboard select failed")
		c.sendError("failed to switch dashboard")
	}
}

func (c *Client) sendError(message string) {
	c.enqueue(Message{Type: MessageTypeError, Data: ErrorData{Message: message}})
}

// enqueue drops control replies when the client is not draining its queue.
func (c *Client) enqueue(msg Message) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	default:
		metrics.WSErrors.WithLabelValues("send_buffer_full").Inc()
	}
}

// forwardPump relays dashboard snapshots to the write queue. The dashboard
// keeps only its latest snapshot, so blocking here never stalls it.
func (c *Client) forwardPump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case snap, ok := <-c.dash.Updates():
			if !ok {
				return
			}
			select {
			case c.send <- Message{Type: MessageTypeSnapshot, Data: snap}:
			case <-c.ctx.Done():
				return
			}
		}
	}
}

// writePump writes queued messages and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Explicitly ignore error - best-effort cleanup
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
			return

		case message := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				metrics.WSErrors.WithLabelValues("write").Inc()
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("failed to write JSON message")
				c.close()
				return
			}
			metrics.WSMessagesSent.Inc()

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
