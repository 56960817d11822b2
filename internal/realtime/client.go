package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hopround/hopround-backend/pkg/logger"
)

const (
	sendBufferSize = 64
	seenSetSize    = 512

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	maxInboundBytes = 512
)

// Client is one websocket subscriber bound to a route.
type Client struct {
	routeID       uuid.UUID
	participantID uuid.UUID
	conn          *websocket.Conn
	send          chan []byte
	seen          *SeenSet
	logg          *logger.Logger

	closeOnce sync.Once
}

// NewClient wraps an upgraded connection.
func NewClient(routeID, participantID uuid.UUID, conn *websocket.Conn, logg *logger.Logger) *Client {
	return &Client{
		routeID:       routeID,
		participantID: participantID,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		seen:          NewSeenSet(seenSetSize),
		logg:          logg,
	}
}

// SendSnapshot queues the initial state frame. It must run before the client
// is registered so no incremental event beats the snapshot.
func (c *Client) SendSnapshot(snapshot *Snapshot) error {
	data, err := marshalSnapshotFrame(snapshot)
	if err != nil {
		return err
	}
	c.trySend(data)
	return nil
}

// trySend queues without blocking; false means the buffer is full and the
// client should be dropped.
func (c *Client) trySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// WritePump drains the send channel onto the socket and keeps the
// connection alive with pings. Runs as its own goroutine per client.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ReadPump consumes inbound frames until the peer disconnects. The stream is
// server-to-client; inbound traffic only refreshes the read deadline.
func (c *Client) ReadPump(ctx context.Context, hub *Hub) {
	defer func() {
		hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.logg != nil {
				c.logg.Warn(ctx, "websocket read: "+err.Error())
			}
			return
		}
	}
}
