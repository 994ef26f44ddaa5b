package router

import "errors"

var (
	ErrHandlerPanic = errors.New("router: handler panic")
)
