package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/askwhyharsh/nearcontacts/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan *Message
	sessionID string
	onRefresh func(*Client)
	logger    logger.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, sessionID string, onRefresh func(*Client), log logger.Logger) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan *Message, 16),
		sessionID: sessionID,
		onRefresh: onRefresh,
		logger:    log,
	}
}

// ReadPump handles pings and refresh requests until the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket closed unexpectedly", "session_id", c.sessionID, "error", err)
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.trySend(NewErrorMessage("Invalid message format", "INVALID_FORMAT"))
			continue
		}

		switch msg.Type {
		case MessageTypePing:
			c.trySend(&Message{Type: MessageTypePong, Timestamp: time.Now().Unix()})
		case MessageTypeRefresh:
			if c.onRefresh != nil {
				c.onRefresh(c)
			}
		default:
			c.trySend(NewErrorMessage("Unknown message type", "INVALID_TYPE"))
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) trySend(msg *Message) {
	c.hub.sendDirect(c, msg)
}
