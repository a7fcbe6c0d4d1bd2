package game

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	sendBufferSize = 256

	// Per-connection flood ceiling across all event types. Generous
	// enough for 60 drawing packets a second; anything past it is a
	// misbehaving client and gets dropped before JSON decoding.
	floodRate  = 120
	floodBurst = 240
)

// NetworkSession abstracts the socket so the session core never touches
// the websocket package directly.
type NetworkSession interface {
	Close(reason string)
	Write(data []byte) error
	Read() ([]byte, error)
	Ping() error
}

type websocketSession struct {
	socket *websocket.Conn
}

func NewWebsocketSession(conn *websocket.Conn) NetworkSession {
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(time.Minute))
		return nil
	})
	return &websocketSession{socket: conn}
}

func (ws *websocketSession) Write(data []byte) error {
	return ws.socket.WriteMessage(websocket.TextMessage, data)
}

func (ws *websocketSession) Read() ([]byte, error) {
	_, p, err := ws.socket.ReadMessage()
	return p, err
}

func (ws *websocketSession) Ping() error {
	return ws.socket.WriteMessage(websocket.PingMessage, nil)
}

func (ws *websocketSession) Close(reason string) {
	ws.socket.SetWriteDeadline(time.Now().Add(20 * time.Second))
	ws.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	ws.socket.Close()
}

// Conn is one live connection and its identity. The identity fields are
// owned by the gateway goroutine; the pumps only touch the socket and
// the channels.
type Conn struct {
	ID string

	// Assigned on createRoom / joinRoom, cleared on leave. Never stashed
	// on the socket itself.
	Username  string
	Avatar    string
	AccountID string
	RoomID    string

	socket    NetworkSession
	send      chan []byte
	pings     chan struct{}
	flood     *rate.Limiter
	closeOnce sync.Once
}

func NewConn(socket NetworkSession) *Conn {
	return &Conn{
		ID:     uuid.NewString(),
		socket: socket,
		send:   make(chan []byte, sendBufferSize),
		pings:  make(chan struct{}, 1),
		flood:  rate.NewLimiter(rate.Limit(floodRate), floodBurst),
	}
}

// envelope is one inbound message bound to its sender, queued for the
// gateway goroutine.
type envelope struct {
	conn *Conn
	msg  WireMessage
}

// ReadPump feeds decoded messages into the gateway inbox until the
// socket dies, then requests removal. Runs on its own goroutine.
func (c *Conn) ReadPump(inbox chan<- envelope, removals chan<- *Conn) {
	for {
		data, err := c.socket.Read()
		if err != nil {
			break
		}
		if !c.flood.Allow() {
			continue
		}

		var msg WireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Str("conn", c.ID).Err(err).Msg("dropping undecodable frame")
			continue
		}
		inbox <- envelope{conn: c, msg: msg}
	}
	removals <- c
}

// WritePump drains the send and ping channels onto the socket. It exits
// when the send channel closes or a write fails.
func (c *Conn) WritePump() {
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.socket.Write(data); err != nil {
				return
			}
		case _, ok := <-c.pings:
			if !ok {
				return
			}
			if err := c.socket.Ping(); err != nil {
				return
			}
		}
	}
}

// Send queues a frame without blocking the gateway; a client too slow
// to drain its buffer loses frames rather than stalling the room.
func (c *Conn) Send(frame []byte) error {
	if frame == nil {
		return nil
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// RequestPing nudges the write pump; dropped when one is already queued.
func (c *Conn) RequestPing() {
	select {
	case c.pings <- struct{}{}:
	default:
	}
}

// Shutdown releases the pumps and closes the socket. Safe to call more
// than once; only the gateway goroutine calls it.
func (c *Conn) Shutdown(reason string) {
	c.closeOnce.Do(func() {
		close(c.send)
		c.socket.Close(reason)
	})
}
