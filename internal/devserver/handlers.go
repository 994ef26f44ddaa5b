package devserver

import (
	"fmt"
	"time"

	"github.com/yanun0323/logs"

	"realtime/internal/protocol"
)

const (
	msgAuthRequired = "Authentication required"
	msgRoomRequired = "Room name required"
)

func (s *Server) handleLocked(c *client, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeAuthenticate:
		s.authenticateLocked(c, env)
	case protocol.TypeJoinRoom:
		s.joinRoomLocked(c, env)
	case protocol.TypeLeaveRoom:
		var data protocol.RoomData
		_ = env.Bind(&data)
		if data.RoomName == "" {
			data.RoomName = c.room
		}
		if data.RoomName != "" {
			s.leaveLocked(c, data.RoomName)
		}
	case protocol.TypeSendMessage:
		s.sendMessageLocked(c, env)
	case protocol.TypeTyping, protocol.TypeStopTyping:
		s.typingLocked(c, env)
	case protocol.TypeGetOnlineCount:
		s.pushLocked(c, protocol.TypeOnlineCount, protocol.OnlineCountData{Count: len(s.online)})
	default:
		logs.Warnf("devserver: unknown message type %q from %s", env.Type, c.id)
	}
}

func (s *Server) authenticateLocked(c *client, env protocol.Envelope) {
	var identity protocol.Identity
	if err := env.Bind(&identity); err != nil || identity.ID.IsZero() {
		s.pushLocked(c, protocol.TypeAuthError, protocol.MessageData{Message: "User ID required"})
		return
	}
	if c.authenticated && c.userID != identity.ID {
		s.online[c.userID]--
		if s.online[c.userID] <= 0 {
			delete(s.online, c.userID)
		}
		c.authenticated = false
	}
	if !c.authenticated {
		s.online[identity.ID]++
	}
	c.authenticated = true
	c.userID = identity.ID
	c.username = identity.Username
	logs.Infof("devserver: authenticated %s (%s) on %s", identity.Username, identity.ID, c.id)

	s.pushLocked(c, protocol.TypeAuthSuccess, protocol.AuthData{
		UserID:   identity.ID,
		Username: identity.Username,
		Message:  "Authentication successful",
	})
	presence := s.presenceLocked(c)
	for _, other := range s.clients {
		s.pushLocked(other, protocol.TypeUserOnline, presence)
	}
}

func (s *Server) joinRoomLocked(c *client, env protocol.Envelope) {
	if !c.authenticated {
		s.pushLocked(c, protocol.TypeError, protocol.MessageData{Message: msgAuthRequired})
		return
	}
	var data protocol.RoomData
	if err := env.Bind(&data); err != nil || data.RoomName == "" {
		s.pushLocked(c, protocol.TypeError, protocol.MessageData{Message: msgRoomRequired})
		return
	}

	if c.room != "" {
		s.leaveLocked(c, c.room)
	}
	members, ok := s.rooms[data.RoomName]
	if !ok {
		members = make(map[string]*client)
		s.rooms[data.RoomName] = members
	}
	members[c.id] = c
	c.room = data.RoomName

	s.pushLocked(c, protocol.TypeRoomJoined, protocol.RoomEventData{
		RoomName: data.RoomName,
		Message:  fmt.Sprintf("Joined room %s", data.RoomName),
	})
	s.roomExceptLocked(data.RoomName, c, protocol.TypeUserJoined, protocol.RoomEventData{
		RoomName: data.RoomName,
		UserID:   c.userID,
		Username: c.username,
		Message:  fmt.Sprintf("%s joined the room", c.username),
	})
}

func (s *Server) leaveLocked(c *client, room string) {
	if c.room != room {
		return
	}
	c.room = ""
	if members, ok := s.rooms[room]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(s.rooms, room)
		}
	}
	s.roomExceptLocked(room, c, protocol.TypeUserLeft, protocol.RoomEventData{
		RoomName: room,
		UserID:   c.userID,
		Username: c.username,
		Message:  fmt.Sprintf("%s left the room", c.username),
	})
}

func (s *Server) sendMessageLocked(c *client, env protocol.Envelope) {
	if !c.authenticated {
		s.pushLocked(c, protocol.TypeError, protocol.MessageData{Message: msgAuthRequired})
		return
	}
	var data protocol.ChatMessageData
	if err := env.Bind(&data); err != nil || data.RoomName == "" || data.Message == "" {
		s.pushLocked(c, protocol.TypeError, protocol.MessageData{Message: "Room name and message required"})
		return
	}
	if c.room != data.RoomName {
		s.pushLocked(c, protocol.TypeError, protocol.MessageData{Message: "Not in room"})
		return
	}

	message := protocol.ChatMessageData{
		RoomName:  data.RoomName,
		UserID:    c.userID,
		Username:  c.username,
		Message:   data.Message,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	for _, member := range s.rooms[data.RoomName] {
		s.pushLocked(member, protocol.TypeNewMessage, message)
	}
}

func (s *Server) typingLocked(c *client, env protocol.Envelope) {
	if !c.authenticated {
		return
	}
	var data protocol.TypingStatusData
	if err := env.Bind(&data); err != nil || data.RoomName == "" || c.room != data.RoomName {
		return
	}

	typing := env.Type == protocol.TypeTyping
	msgType := protocol.TypeUserStopTyping
	if typing {
		msgType = protocol.TypeUserTyping
	}
	s.roomExceptLocked(data.RoomName, c, msgType, protocol.UserTypingData{
		RoomName: data.RoomName,
		UserID:   c.userID,
		Username: c.username,
		IsTyping: typing,
	})
}

func (s *Server) roomExceptLocked(room string, except *client, msgType string, data any) {
	for id, member := range s.rooms[room] {
		if id == except.id {
			continue
		}
		s.pushLocked(member, msgType, data)
	}
}
