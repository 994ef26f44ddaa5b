package reconnect

import "errors"

var (
	ErrNilFactory       = errors.New("reconnect: nil transport factory")
	ErrNotAuthenticated = errors.New("reconnect: no authenticated session")
	ErrEmptyURL         = errors.New("reconnect: empty url")
)
