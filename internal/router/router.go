// Package router dispatches decoded envelopes to handlers registered per message type.
package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"realtime/internal/obs"
	"realtime/internal/protocol"
)

// Handler consumes one envelope. A returned error is logged and counted.
type Handler func(env protocol.Envelope) error

// Subscription is the identity of one registration. Registering the same
// Handler twice yields two distinct subscriptions.
type Subscription struct {
	msgType string
	handler Handler
}

// Type returns the message type the subscription is registered for.
func (s *Subscription) Type() string {
	if s == nil {
		return ""
	}
	return s.msgType
}

type Option struct {
	// Metrics receives frame and handler counters.
	//
	// Optional; default nil (disabled)
	Metrics *obs.Metrics
	// Name prefixes log lines, useful when several routers share a process.
	//
	// Optional; default "router"
	Name string
}

// Router owns a handler registry. Safe for concurrent use.
type Router struct {
	opt Option

	mu       sync.RWMutex
	handlers map[string][]*Subscription
}

// New creates an empty router.
func New(option ...Option) *Router {
	opt := Option{}
	if len(option) > 0 {
		opt = option[0]
	}
	if opt.Name == "" {
		opt.Name = "router"
	}
	return &Router{
		opt:      opt,
		handlers: make(map[string][]*Subscription),
	}
}

// Subscribe appends a handler for msgType. Handlers run in registration order.
func (r *Router) Subscribe(msgType string, handler Handler) *Subscription {
	if r == nil || handler == nil {
		return nil
	}
	sub := &Subscription{msgType: msgType, handler: handler}

	r.mu.Lock()
	r.handlers[msgType] = append(r.handlers[msgType], sub)
	r.mu.Unlock()
	return sub
}

// Unsubscribe removes the first registration matching sub. Unknown
// subscriptions are ignored. It reports whether anything was removed.
func (r *Router) Unsubscribe(msgType string, sub *Subscription) bool {
	if r == nil || sub == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.handlers[msgType]
	for i, existing := range list {
		if existing != sub {
			continue
		}
		next := make([]*Subscription, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(r.handlers, msgType)
		} else {
			r.handlers[msgType] = next
		}
		return true
	}
	return false
}

// Count returns the number of handlers registered for msgType.
func (r *Router) Count(msgType string) int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[msgType])
}

// Dispatch decodes a raw frame and delivers it. Malformed frames are logged
// and dropped without invoking any handler.
func (r *Router) Dispatch(raw []byte) {
	if r == nil {
		return
	}
	r.opt.Metrics.IncFrameIn()

	env, err := protocol.Decode(raw)
	if err != nil {
		r.opt.Metrics.IncMalformed()
		logs.Errorf("%s: drop frame, err: %+v", r.opt.Name, err)
		return
	}
	r.Deliver(env)
}

// Deliver invokes every handler registered for env.Type in order. A failing
// or panicking handler does not stop the handlers after it.
func (r *Router) Deliver(env protocol.Envelope) {
	if r == nil {
		return
	}

	r.mu.RLock()
	subs := r.handlers[env.Type]
	r.mu.RUnlock()

	if len(subs) == 0 {
		r.opt.Metrics.IncUnhandled()
		logs.Debugf("%s: no handler for type %q", r.opt.Name, env.Type)
		return
	}

	start := time.Now()
	for _, sub := range subs {
		if err := invoke(sub.handler, env); err != nil {
			r.opt.Metrics.IncHandlerFailure()
			logs.Errorf("%s: handle %s, err: %+v", r.opt.Name, env.Type, err)
		}
	}
	r.opt.Metrics.ObserveDispatch(time.Since(start))
}

func invoke(handler Handler, env protocol.Envelope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()
	return handler(env)
}
