package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one websocket connection. Identity fields come from the JWT the
// connection was opened with.
type Client struct {
	// 每个连接唯一，区分同一用户的新旧连接
	ID     string
	UserID string
	Name   string
	Avatar string
	Token  string
	Tenant string
	Conn   *websocket.Conn
	Send   chan OutgoingMessage
	Hub    *Hub
}

const (
	writeWait      = 10 * time.Second    // single write timeout
	pongWait       = 60 * time.Second    // read timeout
	pingPeriod     = (pongWait * 9) / 10 // heartbeat period
	maxMessageSize = 1024 * 4
)

func (c *Client) leave() {
	select {
	case c.Hub.unregister <- c:
	case <-c.Hub.quit:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.leave()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub 已关闭 Send
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.leave()
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := c.Conn.ReadJSON(&frame); err != nil {
			return
		}

		select {
		case c.Hub.incoming <- IncomingMessage{From: c.UserID, Event: frame.Event, Data: frame.Data}:
		case <-c.Hub.quit:
			return
		}
	}
}
