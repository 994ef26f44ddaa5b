// Package presence tracks the session state derived from realtime messages:
// online count, room membership and the set of typing users.
package presence

import (
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"realtime/internal/protocol"
	"realtime/internal/router"
	"realtime/internal/schedule"
)

const (
	DefaultRoom          = "global"
	DefaultTypingTTL     = 5 * time.Second
	DefaultSweepInterval = 5 * time.Second
)

// Events published to host observers.
const (
	EventNewContent    = "new_content"
	EventNotification  = "notification"
	EventTyping        = "typing"
	EventRoomPresence  = "room_presence"
	EventAuthenticated = "authenticated"
)

const (
	noticeAuthFailed = "realtime authentication failed"
)

// Link is the outbound side of the connection.
type Link interface {
	Send(msgType string, data any) bool
	Connected() bool
	MarkJoined()
}

// Notifier surfaces user-visible notices.
type Notifier interface {
	Success(message string)
	Error(message string)
	Info(message string)
}

// Publisher delivers an event to host observers.
type Publisher func(event string, payload any)

// TypingEvent is published whenever the typing set changes.
type TypingEvent struct {
	Users []TypingEntry `json:"users"`
}

type Option struct {
	// DefaultRoom is joined automatically after authentication.
	//
	// Optional; default DefaultRoom
	DefaultRoom string
	// SkipAutoJoin disables the automatic join of DefaultRoom.
	//
	// Optional; default false
	SkipAutoJoin bool
	// TypingTTL is how long a typing signal stays live.
	//
	// Optional; default DefaultTypingTTL
	TypingTTL time.Duration
	// SweepInterval is the period of the stale typing sweep.
	//
	// Optional; default DefaultSweepInterval
	SweepInterval time.Duration
	// Scheduler runs the sweep and provides the clock.
	//
	// Optional; default schedule.System
	Scheduler schedule.Scheduler
	// Notifier receives user-visible notices.
	//
	// Optional; default nil (discarded)
	Notifier Notifier
	// Publish receives host events.
	//
	// Optional; default nil (discarded)
	Publish Publisher
	// Identity returns the signed-in user.
	//
	// Optional; default nil (typing status is never sent)
	Identity func() (protocol.Identity, bool)
}

func (opt *Option) init() {
	if opt.DefaultRoom == "" {
		opt.DefaultRoom = DefaultRoom
	}
	if opt.TypingTTL <= 0 {
		opt.TypingTTL = DefaultTypingTTL
	}
	if opt.SweepInterval <= 0 {
		opt.SweepInterval = DefaultSweepInterval
	}
	if opt.Scheduler == nil {
		opt.Scheduler = schedule.System()
	}
}

// Manager owns the presence state of one session.
type Manager struct {
	opt  Option
	link Link

	mu          sync.Mutex
	onlineCount int
	room        string
	joinSent    bool
	typing      *Typing
	sweep       schedule.Timer
	subs        []*router.Subscription
}

func New(link Link, option ...Option) *Manager {
	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}
	opt.init()

	return &Manager{
		opt:    opt,
		link:   link,
		typing: NewTyping(opt.TypingTTL),
	}
}

// Register subscribes the manager to every inbound type it consumes.
func (m *Manager) Register(r *router.Router) {
	handlers := []struct {
		msgType string
		handler router.Handler
	}{
		{protocol.TypeConnected, m.onConnected},
		{protocol.TypeAuthSuccess, m.onAuthSuccess},
		{protocol.TypeAuthError, m.onAuthError},
		{protocol.TypeOnlineCount, m.onOnlineCount},
		{protocol.TypeUserOnline, m.onUserPresence},
		{protocol.TypeUserOffline, m.onUserPresence},
		{protocol.TypeNewMessage, m.onNewContent},
		{protocol.TypeNewComment, m.onNewContent},
		{protocol.TypeNewNotification, m.onNotification},
		{protocol.TypeUserTyping, m.onUserTyping},
		{protocol.TypeUserStopTyping, m.onUserStopTyping},
		{protocol.TypeSystemMessage, m.onSystemMessage},
		{protocol.TypeRoomJoined, m.onRoomJoined},
		{protocol.TypeUserJoined, m.onRoomPresence},
		{protocol.TypeUserLeft, m.onRoomPresence},
		{protocol.TypeError, m.onError},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range handlers {
		m.subs = append(m.subs, r.Subscribe(h.msgType, h.handler))
	}
}

// Unregister removes every handler installed by Register.
func (m *Manager) Unregister(r *router.Router) {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	for _, sub := range subs {
		r.Unsubscribe(sub.Type(), sub)
	}
}

// Start begins the periodic typing sweep. Calling it twice is harmless.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweep != nil {
		return
	}
	m.sweep = m.opt.Scheduler.Every(m.opt.SweepInterval, m.Sweep)
}

// Stop cancels the typing sweep.
func (m *Manager) Stop() {
	m.mu.Lock()
	sweep := m.sweep
	m.sweep = nil
	m.mu.Unlock()

	if sweep != nil {
		sweep.Stop()
	}
}

// Running reports whether the sweep is scheduled.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweep != nil
}

// Reset clears all derived state.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.onlineCount = 0
	m.room = ""
	m.joinSent = false
	removed := m.typing.Clear()
	m.mu.Unlock()

	if removed > 0 {
		m.publish(EventTyping, TypingEvent{Users: []TypingEntry{}})
	}
}

// Sweep evicts stale typing entries.
func (m *Manager) Sweep() {
	now := m.opt.Scheduler.Now()

	m.mu.Lock()
	removed := m.typing.Sweep(now)
	live := m.typing.Live(now)
	m.mu.Unlock()

	if removed > 0 {
		logs.Debugf("presence: swept %d stale typing entries", removed)
		m.publish(EventTyping, TypingEvent{Users: live})
	}
}

// JoinRoom leaves the current room when it differs from room, then joins
// room. The join is re-sent even when room is already current.
func (m *Manager) JoinRoom(room string) bool {
	if room == "" || !m.link.Connected() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.room != "" && m.room != room {
		m.link.Send(protocol.TypeLeaveRoom, protocol.RoomData{RoomName: m.room})
		m.room = ""
	}
	if !m.link.Send(protocol.TypeJoinRoom, protocol.RoomData{RoomName: room}) {
		return false
	}
	m.room = room
	m.joinSent = true
	return true
}

// LeaveRoom leaves room only when it is the tracked current room.
func (m *Manager) LeaveRoom(room string) bool {
	if !m.link.Connected() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if room == "" || room != m.room {
		return false
	}
	m.link.Send(protocol.TypeLeaveRoom, protocol.RoomData{RoomName: room})
	m.room = ""
	return true
}

// SendTypingStatus announces that the signed-in user started or stopped
// typing on post. It does nothing without an identity or a connection.
func (m *Manager) SendTypingStatus(post string, typing bool) bool {
	identity, ok := m.identity()
	if !ok || !m.link.Connected() {
		return false
	}

	msgType := protocol.TypeStopTyping
	if typing {
		msgType = protocol.TypeTyping
	}
	return m.link.Send(msgType, protocol.TypingStatusData{RoomName: post, UserID: identity.ID})
}

// SendMessage posts a chat message to room.
func (m *Manager) SendMessage(room, message string) bool {
	if room == "" || message == "" || !m.link.Connected() {
		return false
	}
	return m.link.Send(protocol.TypeSendMessage, protocol.ChatMessageData{RoomName: room, Message: message})
}

// RequestOnlineCount asks the server for a fresh online count.
func (m *Manager) RequestOnlineCount() bool {
	if !m.link.Connected() {
		return false
	}
	return m.link.Send(protocol.TypeGetOnlineCount, nil)
}

func (m *Manager) OnlineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onlineCount
}

func (m *Manager) CurrentRoom() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

// TypingUsers returns the live typing entries for post.
func (m *Manager) TypingUsers(post string) []TypingEntry {
	now := m.opt.Scheduler.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typing.ForPost(protocol.ID(post), now)
}

// AllTyping returns every live typing entry.
func (m *Manager) AllTyping() []TypingEntry {
	now := m.opt.Scheduler.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typing.Live(now)
}

func (m *Manager) onConnected(env protocol.Envelope) error {
	var data protocol.ConnectedData
	if err := env.Bind(&data); err != nil {
		return err
	}
	logs.Infof("presence: server acknowledged connection, client: %s", data.ClientID)
	m.link.MarkJoined()
	return nil
}

func (m *Manager) onAuthSuccess(env protocol.Envelope) error {
	var data protocol.AuthData
	if err := env.Bind(&data); err != nil {
		return err
	}
	logs.Infof("presence: authenticated as %s (%s)", data.Username, data.UserID)
	m.link.MarkJoined()

	if !m.opt.SkipAutoJoin {
		m.JoinRoom(m.opt.DefaultRoom)
	}
	m.publish(EventAuthenticated, data)
	return nil
}

func (m *Manager) onAuthError(env protocol.Envelope) error {
	var data protocol.MessageData
	if err := env.Bind(&data); err != nil {
		return err
	}
	logs.Errorf("presence: authentication rejected, message: %s", data.Message)
	m.notifyError(noticeAuthFailed)
	return nil
}

func (m *Manager) onOnlineCount(env protocol.Envelope) error {
	var data protocol.OnlineCountData
	if err := env.Bind(&data); err != nil {
		return err
	}
	m.setOnlineCount(data.Count)
	return nil
}

func (m *Manager) onUserPresence(env protocol.Envelope) error {
	var data protocol.UserPresenceData
	if err := env.Bind(&data); err != nil {
		return err
	}
	if data.OnlineCount != nil {
		m.setOnlineCount(*data.OnlineCount)
	}
	return nil
}

func (m *Manager) onNewContent(env protocol.Envelope) error {
	var data protocol.MessageData
	if err := env.Bind(&data); err != nil {
		return err
	}
	if data.Message == "" {
		return nil
	}
	m.publish(EventNewContent, env.Data)
	return nil
}

func (m *Manager) onNotification(env protocol.Envelope) error {
	var data protocol.NotificationData
	if err := env.Bind(&data); err != nil {
		return err
	}
	m.publish(EventNotification, env.Data)
	if data.Title != "" {
		m.notifyInfo(fmt.Sprintf("%s: %s", data.Title, data.Message))
	}
	return nil
}

func (m *Manager) onUserTyping(env protocol.Envelope) error {
	var data protocol.UserTypingData
	if err := env.Bind(&data); err != nil {
		return err
	}
	if data.UserID.IsZero() {
		return nil
	}

	now := m.opt.Scheduler.Now()
	m.mu.Lock()
	added := m.typing.Add(TypingEntry{
		UserID:   data.UserID,
		PostID:   data.Post(),
		Username: data.Username,
		At:       now,
	})
	live := m.typing.Live(now)
	m.mu.Unlock()

	if added {
		m.publish(EventTyping, TypingEvent{Users: live})
	}
	return nil
}

func (m *Manager) onUserStopTyping(env protocol.Envelope) error {
	var data protocol.UserTypingData
	if err := env.Bind(&data); err != nil {
		return err
	}

	now := m.opt.Scheduler.Now()
	m.mu.Lock()
	removed := m.typing.Remove(data.UserID)
	live := m.typing.Live(now)
	m.mu.Unlock()

	if removed > 0 {
		m.publish(EventTyping, TypingEvent{Users: live})
	}
	return nil
}

func (m *Manager) onSystemMessage(env protocol.Envelope) error {
	var data protocol.MessageData
	if err := env.Bind(&data); err != nil {
		return err
	}
	if data.Message != "" {
		m.notifyInfo(data.Message)
	}
	return nil
}

func (m *Manager) onRoomJoined(env protocol.Envelope) error {
	var data protocol.RoomEventData
	if err := env.Bind(&data); err != nil {
		return err
	}
	if data.RoomName == "" {
		return nil
	}

	m.mu.Lock()
	// Once a join was sent, only the ack for the latest requested room counts.
	if m.joinSent && data.RoomName != m.room {
		current := m.room
		m.mu.Unlock()
		logs.Debugf("presence: ignore stale room_joined %s, current room: %s", data.RoomName, current)
		return nil
	}
	m.room = data.RoomName
	m.mu.Unlock()

	logs.Infof("presence: joined room %s", data.RoomName)
	return nil
}

func (m *Manager) onRoomPresence(env protocol.Envelope) error {
	var data protocol.RoomEventData
	if err := env.Bind(&data); err != nil {
		return err
	}
	logs.Debugf("presence: %s %s in room %s", env.Type, data.Username, data.RoomName)
	m.publish(EventRoomPresence, RoomPresenceEvent{Kind: env.Type, RoomEventData: data})
	return nil
}

func (m *Manager) onError(env protocol.Envelope) error {
	var data protocol.MessageData
	if err := env.Bind(&data); err != nil {
		return err
	}
	logs.Errorf("presence: server error, message: %s", data.Message)
	if data.Message != "" {
		m.notifyError(data.Message)
	}
	return nil
}

// RoomPresenceEvent is published when a user joins or leaves the current room.
type RoomPresenceEvent struct {
	Kind string `json:"kind"`
	protocol.RoomEventData
}

func (m *Manager) setOnlineCount(count int) {
	if count < 0 {
		count = 0
	}
	m.mu.Lock()
	m.onlineCount = count
	m.mu.Unlock()
}

func (m *Manager) identity() (protocol.Identity, bool) {
	if m.opt.Identity == nil {
		return protocol.Identity{}, false
	}
	return m.opt.Identity()
}

func (m *Manager) publish(event string, payload any) {
	if m.opt.Publish != nil {
		m.opt.Publish(event, payload)
	}
}

func (m *Manager) notifyInfo(message string) {
	if m.opt.Notifier != nil {
		m.opt.Notifier.Info(message)
	}
}

func (m *Manager) notifyError(message string) {
	if m.opt.Notifier != nil {
		m.opt.Notifier.Error(message)
	}
}
