package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64KB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Observers connect from the web UI and mobile clients alike
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Guarded by mu: once closed is
	// set the channel is closed and no sender may touch it again.
	send   chan []byte
	mu     sync.Mutex
	closed bool

	// ID assigned at connect time
	ID string
}

// ErrClientClosed is returned by SendJSON after the client has disconnected.
var ErrClientClosed = errors.New("websocket client closed")

// trySend queues a message unless the client is closed or its buffer is
// full. Reports whether the message was queued.
func (c *Client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		// Buffer full; drop rather than block the sender.
		return false
	}
}

// closeSend closes the outbound channel exactly once. Safe to call from the
// hub after the client was already torn down.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump drains inbound frames. Observers are read-only; anything they
// send beyond pings is ignored, but the pump must run to process control
// frames and detect closure.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS error: %v", err)
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to this client only. The client may
// disconnect at any moment, including right after connecting, so a closed
// client is reported as an error rather than a panic on its channel.
func (c *Client) SendJSON(v interface{}) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !c.trySend(msg) {
		return ErrClientClosed
	}
	return nil
}

// ServeWs upgrades an HTTP request to a websocket observer connection.
// onConnect, when non-nil, builds a greeting (typically the current
// snapshot) sent to the new client before any broadcast reaches it.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, onConnect func() interface{}) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256), ID: "ws_" + uuid.New().String()}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	if onConnect != nil {
		if greeting := onConnect(); greeting != nil {
			if err := client.SendJSON(greeting); err != nil {
				log.Printf("WS greeting error: %v", err)
			}
		}
	}
}
