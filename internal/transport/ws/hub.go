// Package ws fans simulation events out to websocket clients and feeds
// their actions back into the city.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"citysim/internal/city"
	"citysim/internal/protocol"
	"citysim/internal/roadgraph"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 128
)

// Session is the hub's view of the running city. Implementations serialize
// access themselves.
type Session interface {
	FullState() protocol.FullState
	Apply(a protocol.Action) error
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

type directMsg struct {
	to  *Client
	msg []byte
}

// Hub tracks connected clients and broadcasts to all of them. It also
// implements city.View so the city can publish changes directly.
type Hub struct {
	session Session
	log     *slog.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	direct     chan directMsg
	done       chan struct{}

	upgrader websocket.Upgrader
}

var _ city.View = (*Hub)(nil)

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:        logger,
		clients:    map[*Client]bool{},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		direct:     make(chan directMsg, 16),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Bind sets the session actions are applied to. Call before Run.
func (h *Hub) Bind(s Session) { h.session = s }

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.log.Info("client connected", "remote", c.conn.RemoteAddr().String(), "clients", len(h.clients))
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				h.log.Info("client disconnected", "remote", c.conn.RemoteAddr().String(), "clients", len(h.clients))
			}
		case d := <-h.direct:
			if h.clients[d.to] {
				select {
				case d.to.send <- d.msg:
				default:
				}
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn("dropping slow client", "remote", c.conn.RemoteAddr().String())
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Broadcast encodes payload as an event of type t and queues it for every
// client. It drops the message once the hub has stopped.
func (h *Hub) Broadcast(t string, payload any) {
	msg, err := protocol.Encode(t, payload)
	if err != nil {
		h.log.Error("encode broadcast", "type", t, "err", err)
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

func (h *Hub) BuildingsChanged(bs []*city.Building) {
	h.Broadcast(protocol.EventBuildingUpdate, protocol.BuildingUpdate{Buildings: bs})
}

func (h *Hub) BuildingRemoved(x, y int) {
	h.Broadcast(protocol.EventBulldozed, protocol.Bulldozed{X: x, Y: y})
}

func (h *Hub) RoadTilesChanged(ups []roadgraph.TileUpdate) {
	h.Broadcast(protocol.EventRoadUpdate, protocol.RoadUpdate{Tiles: ups})
}

// ServeHTTP upgrades the request and sends the full state before the client
// starts receiving broadcasts.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	if h.session != nil {
		msg, err := protocol.Encode(protocol.EventFullState, h.session.FullState())
		if err != nil {
			h.log.Error("encode full state", "err", err)
			conn.Close()
			return
		}
		c.send <- msg
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writer()
	go c.reader()
}

func (c *Client) reader() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket read", "err", err)
			}
			return
		}
		a, err := protocol.DecodeAction(data)
		if err == nil && c.hub.session != nil {
			err = c.hub.session.Apply(a)
		}
		if err != nil {
			c.reply(protocol.EventError, protocol.ErrorPayload{Message: err.Error()})
		}
	}
}

// reply queues a message for this client only. A full buffer drops it.
func (c *Client) reply(t string, payload any) {
	msg, err := protocol.Encode(t, payload)
	if err != nil {
		return
	}
	select {
	case c.hub.direct <- directMsg{to: c, msg: msg}:
	case <-c.hub.done:
	}
}

func (c *Client) writer() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
