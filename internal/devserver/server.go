// Package devserver is a local realtime backend speaking the envelope
// protocol. It serves rooms, typing relay, chat broadcast and online counts
// for development and tests.
package devserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"realtime/internal/protocol"
)

const (
	defaultSendBuffer = 64
	writeWait         = 10 * time.Second
)

type Option struct {
	// Authorize validates the bearer token of the upgrade request.
	//
	// Optional; default nil (every request accepted)
	Authorize func(token string) bool
	// SendBuffer is the per-client outbound queue capacity.
	//
	// Optional; default 64
	SendBuffer int
}

// Server accepts websocket clients on ServeHTTP.
type Server struct {
	opt      Option
	upgrader gws.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	rooms   map[string]map[string]*client
	online  map[protocol.ID]int
}

type client struct {
	id            string
	conn          *gws.Conn
	send          chan []byte
	closed        bool
	authenticated bool
	userID        protocol.ID
	username      string
	room          string
}

func New(option ...Option) *Server {
	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}
	if opt.SendBuffer <= 0 {
		opt.SendBuffer = defaultSendBuffer
	}
	return &Server{
		opt: opt,
		upgrader: gws.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
		online:  make(map[protocol.ID]int),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.opt.Authorize != nil {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !s.opt.Authorize(token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Errorf("devserver: upgrade, err: %+v", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, s.opt.SendBuffer),
	}

	s.mu.Lock()
	s.clients[c.id] = c
	s.pushLocked(c, protocol.TypeConnected, protocol.ConnectedData{
		ClientID: c.id,
		Message:  "Connected to realtime server",
	})
	s.mu.Unlock()
	logs.Infof("devserver: client connected, id: %s, addr: %s", c.id, r.RemoteAddr)

	go s.writeLoop(c)
	s.readLoop(c)
}

// Broadcast sends an envelope to every connected client.
func (s *Server) Broadcast(msgType string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		s.pushLocked(c, msgType, data)
	}
}

// OnlineCount returns the number of distinct authenticated users.
func (s *Server) OnlineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.online)
}

// Clients returns the number of open connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// RoomMembers returns the number of clients in room.
func (s *Server) RoomMembers(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[room])
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*gws.Conn, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c.conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (s *Server) readLoop(c *client) {
	defer s.remove(c)
	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if !gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway) {
				logs.Debugf("devserver: read client %s, err: %+v", c.id, err)
			}
			return
		}
		if msgType != gws.TextMessage || len(raw) == 0 {
			continue
		}

		env, err := protocol.Decode(raw)
		s.mu.Lock()
		if err != nil {
			logs.Errorf("devserver: decode from %s, err: %+v", c.id, err)
			s.pushLocked(c, protocol.TypeError, protocol.MessageData{Message: "Invalid JSON format"})
		} else {
			s.handleLocked(c, env)
		}
		s.mu.Unlock()
	}
}

func (s *Server) writeLoop(c *client) {
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(gws.TextMessage, payload); err != nil {
			logs.Debugf("devserver: write client %s, err: %+v", c.id, err)
			_ = c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""), time.Now().Add(writeWait))
	_ = c.conn.Close()
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.room != "" {
		s.leaveLocked(c, c.room)
	}
	if c.authenticated {
		s.online[c.userID]--
		if s.online[c.userID] <= 0 {
			delete(s.online, c.userID)
		}
		c.authenticated = false
		delete(s.clients, c.id)
		for _, other := range s.clients {
			s.pushLocked(other, protocol.TypeUserOffline, s.presenceLocked(c))
		}
	}
	delete(s.clients, c.id)
	c.closed = true
	close(c.send)
	logs.Infof("devserver: client disconnected, id: %s", c.id)
}

func (s *Server) pushLocked(c *client, msgType string, data any) {
	if c.closed {
		return
	}
	payload, err := protocol.Encode(msgType, data)
	if err != nil {
		logs.Errorf("devserver: encode %s, err: %+v", msgType, err)
		return
	}
	select {
	case c.send <- payload:
	default:
		logs.Warnf("devserver: client %s send buffer full, drop %s", c.id, msgType)
	}
}

func (s *Server) presenceLocked(c *client) protocol.UserPresenceData {
	count := len(s.online)
	return protocol.UserPresenceData{UserID: c.userID, Username: c.username, OnlineCount: &count}
}
