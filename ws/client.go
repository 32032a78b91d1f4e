package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tcriess/lightspeed-messenger/config"
	"github.com/tcriess/lightspeed-messenger/globals"
	"github.com/tcriess/lightspeed-messenger/types"
)

const (
	maxMessageSize  = 1 << 20
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 256
)

// Client is a middleman between the websocket connection and the hub. It implements room.Conn.
type Client struct {
	hub *Hub

	id string

	// The websocket connection.
	conn *websocket.Conn

	settings config.ConnectionConfig

	// Buffered channel of outbound messages, closed by the hub on unregister.
	send   chan []byte
	mu     sync.Mutex
	closed bool

	// WaitGroup which keeps track of the registration and the running write loop.
	sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	settings := hub.Cfg.ConnectionConfig
	if settings.MaxMessageSize <= 0 {
		settings.MaxMessageSize = maxMessageSize
	}
	if settings.PongWait <= 0 {
		settings.PongWait = pongWait
	}
	if settings.PingPeriod <= 0 || settings.PingPeriod >= settings.PongWait {
		settings.PingPeriod = settings.PongWait * 9 / 10
	}
	if settings.WriteWait <= 0 {
		settings.WriteWait = writeWait
	}
	if settings.SendBufferSize <= 0 {
		settings.SendBufferSize = sendChannelSize
	}
	return &Client{
		hub:      hub,
		id:       uuid.NewString(),
		conn:     conn,
		settings: settings,
		send:     make(chan []byte, settings.SendBufferSize),
	}
}

func (c *Client) Id() string {
	return c.id
}

// Deliver queues msg without blocking. It returns false if the client is closed or its buffer is full.
func (c *Client) Deliver(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		globals.AppLogger.Warn("send buffer full, dropping message", "conn", c.id)
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendEvent(event *types.Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		globals.AppLogger.Error("could not marshal event", "event", event.Name, "error", err)
		return
	}
	c.Deliver(msg)
}

// ReadLoop pumps commands from the websocket connection to the messaging service.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine. Commands of one connection are thus handled in order.
func (c *Client) ReadLoop() {
	c.conn.SetReadLimit(c.settings.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				globals.AppLogger.Info("ws closed unexpectedly", "conn", c.id, "error", err)
			}
			return
		}

		message := types.WebsocketMessage{}
		err = json.Unmarshal(raw, &message)
		if err != nil {
			globals.AppLogger.Debug("could not unmarshal ws message", "conn", c.id, "error", err)
			c.sendEvent(types.NewEvent(types.EventError, types.ErrorData{Error: "malformed message: " + err.Error()}))
			continue
		}

		var ack *types.Ack
		cmd, err := types.DecodeCommand(&message)
		if err != nil {
			globals.AppLogger.Debug("invalid command", "conn", c.id, "event", message.Event, "error", err)
			ack = types.AckError(err)
		} else {
			ack = c.hub.svc.Handle(c.id, cmd)
		}
		switch {
		case message.Ack != "":
			ack.Ack = message.Ack
			c.sendEvent(types.NewEvent(types.EventAck, ack))
		case err != nil:
			c.sendEvent(types.NewEvent(types.EventError, types.ErrorData{Error: err.Error()}))
		}
	}
}

// WriteLoop pumps messages from the send buffer to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(c.settings.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.Done()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				globals.AppLogger.Trace("send channel closed, exiting write loop", "conn", c.id)
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				globals.AppLogger.Debug("could not write to ws connection, exiting write loop", "conn", c.id, "error", err)
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				globals.AppLogger.Debug("could not send ping message, exiting write loop", "conn", c.id)
				return
			}
		}
	}
}
