package websocket

import "errors"

var (
	ErrNilDialer        = errors.New("websocket: nil dialer")
	ErrAlreadyOpened    = errors.New("websocket: transport already opened")
	ErrNotConnected     = errors.New("websocket: not connected")
	ErrQueueFull        = errors.New("websocket: outbound queue full")
	ErrClosedBeforeOpen = errors.New("websocket: closed before open")
	ErrUnsupportedType  = errors.New("websocket: unsupported message type")
	ErrEmptyURL         = errors.New("websocket: empty url")
)
