package server

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Client owns one websocket connection. Inbound text frames are handed to
// onFrame in arrival order; outbound payloads are queued on send and written
// by the write pump. onClose runs exactly once when the connection winds down.
type Client struct {
	conn *websocket.Conn
	log  *log.Logger
	send chan []byte

	onFrame func(text string)
	onClose func()

	stop      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, logger *log.Logger) *Client {
	return &Client{
		conn: conn,
		log:  logger,
		send: make(chan []byte, sendBufferSize),
		stop: make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}

			if !c.writeMessage(websocket.TextMessage, payload) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.closeClient()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		text := strings.TrimSpace(string(raw))
		if text == "" {
			continue
		}

		if c.onFrame != nil {
			c.onFrame(text)
		}
	}
}

// queueMessage enqueues payload for the write pump without blocking. It
// reports false when the send buffer is full.
func (c *Client) queueMessage(payload []byte) bool {
	select {
	case c.send <- payload:
	default:
		return false
	}

	return true
}

func (c *Client) writeMessage(msgType int, payload []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, payload); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("ws: write: %v", err)
		}
		return false
	}

	return true
}

func (c *Client) closeClient() {
	c.closeOnce.Do(func() {
		close(c.stop)
		if c.onClose != nil {
			c.onClose()
		}
	})
}
