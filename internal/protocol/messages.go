package protocol

// Inbound message types.
const (
	TypeConnected       = "connected"
	TypeAuthSuccess     = "auth_success"
	TypeAuthError       = "auth_error"
	TypeOnlineCount     = "online_count"
	TypeNewMessage      = "new_message"
	TypeNewComment      = "new_comment"
	TypeNewNotification = "new_notification"
	TypeUserTyping      = "user_typing"
	TypeUserStopTyping  = "user_stop_typing"
	TypeSystemMessage   = "system_message"
	TypeRoomJoined      = "room_joined"
	TypeUserJoined      = "user_joined"
	TypeUserLeft        = "user_left"
	TypeUserOnline      = "user_online"
	TypeUserOffline     = "user_offline"
	TypeError           = "error"
)

// Outbound message types.
const (
	TypeAuthenticate   = "authenticate"
	TypeJoinRoom       = "join_room"
	TypeLeaveRoom      = "leave_room"
	TypeTyping         = "typing"
	TypeStopTyping     = "stop_typing"
	TypeSendMessage    = "send_message"
	TypeGetOnlineCount = "get_online_count"
)

// Identity is the authenticated user carried by the authenticate message.
type Identity struct {
	ID       ID     `json:"user_id"`
	Username string `json:"username"`
}

type ConnectedData struct {
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

type AuthData struct {
	UserID   ID     `json:"user_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type MessageData struct {
	Message string `json:"message"`
}

type OnlineCountData struct {
	Count int `json:"count"`
}

type UserPresenceData struct {
	UserID      ID     `json:"user_id"`
	Username    string `json:"username"`
	OnlineCount *int   `json:"online_count,omitempty"`
}

type RoomData struct {
	RoomName string `json:"room_name"`
}

type RoomEventData struct {
	RoomName string `json:"room_name"`
	UserID   ID     `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

type TypingStatusData struct {
	RoomName string `json:"room_name"`
	UserID   ID     `json:"user_id"`
}

type UserTypingData struct {
	RoomName string `json:"room_name,omitempty"`
	PostID   ID     `json:"post_id,omitempty"`
	UserID   ID     `json:"user_id"`
	Username string `json:"username,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`
}

// Post resolves the post context of a typing signal, falling back to the room.
func (d UserTypingData) Post() ID {
	if !d.PostID.IsZero() {
		return d.PostID
	}
	return ID(d.RoomName)
}

type ChatMessageData struct {
	RoomName  string `json:"room_name"`
	UserID    ID     `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

type NotificationData struct {
	ID      ID     `json:"id,omitempty"`
	Title   string `json:"title"`
	Message string `json:"message"`
	IsRead  bool   `json:"is_read"`
}
