/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
)

var logger = log.New("aries-framework/dispatcher")

// Result is the outcome of routing one message.
type Result struct {
	// ThreadID is the key the instance is held under after the message was applied.
	ThreadID string
	Protocol string
	Record   instance.Record
	Outbound []service.DIDCommMsgMap
}

// Router delivers messages to the protocol instance of their thread.
type Router struct {
	cache    *instance.Cache
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRouter creates a router over cache.
func NewRouter(cache *instance.Cache) *Router {
	return &Router{cache: cache, handlers: map[string]Handler{}}
}

// Register adds handlers, keyed by their protocol. A later handler for the same protocol replaces the
// earlier one.
func (r *Router) Register(handlers ...Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range handlers {
		r.handlers[h.Protocol()] = h
	}
}

func (r *Router) handler(protocol string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[protocol]

	return h, ok
}

// Route applies msg to the instance of its thread. connectionID names the connection instance the
// envelope arrived on, if any; messages without a ~thread decorator that start no instance of their own
// go to it while the connection is still being established. Messages nobody claims are logged and
// yield a nil result.
func (r *Router) Route(ctx context.Context, connectionID string, msg service.DIDCommMsgMap) (*Result, error) {
	thID, err := msg.ThreadID()
	if err != nil {
		return nil, err
	}

	key, created, err := r.resolve(thID, connectionID, msg)
	if err != nil || key == "" {
		return nil, err
	}

	rec, checkin, err := r.cache.Checkout(ctx, key)
	if errors.Is(err, instance.ErrNotFound) {
		logger.Infof("ignoring %s: instance %s went away", msg.Type(), key)

		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	h, ok := r.handler(rec.Protocol())
	if !ok {
		err = fmt.Errorf("%w: protocol %s", ErrUnhandled, rec.Protocol())
		checkin(rec, err)

		return nil, err
	}

	next, out, err := h.Handle(ctx, rec, msg)
	if err != nil {
		checkin(next, err)

		if created {
			r.cache.Release(key)
		}

		return nil, fmt.Errorf("%s %s: %w", rec.Protocol(), key, err)
	}

	// rekey before checkin so the next owner of the thread sees the instance under its new id
	key = r.rekey(key, next)
	checkin(next, nil)

	logger.Debugf("routed %s on %s to %s state %s", msg.Type(), key, next.Protocol(), next.StateName())

	return &Result{ThreadID: key, Protocol: next.Protocol(), Record: next, Outbound: out}, nil
}

// resolve finds or creates the instance msg belongs to. An empty key means the message is ignored.
func (r *Router) resolve(thID, connectionID string, msg service.DIDCommMsgMap) (string, bool, error) {
	if r.cache.Has(thID) {
		return thID, false, nil
	}

	cls, err := ClassifyMsg(msg)
	if err != nil {
		logger.Infof("ignoring message %s: %s", msg.ID(), err)

		return "", false, nil
	}

	h, ok := r.handler(string(cls.Protocol))
	if ok && h.Initiates(cls.Kind) {
		if !msg.HasThread() && r.pendingConnection(connectionID) && h.Protocol() == string(ProtocolTrustPing) {
			return connectionID, false, nil
		}

		return r.create(h, thID, msg)
	}

	if !msg.HasThread() && r.pendingConnection(connectionID) {
		return connectionID, false, nil
	}

	logger.Infof("ignoring %s %s: no instance for thread %s", cls.Protocol, cls.Kind, thID)

	return "", false, nil
}

func (r *Router) create(h Handler, thID string, msg service.DIDCommMsgMap) (string, bool, error) {
	rec, err := h.New(msg)
	if err != nil {
		return "", false, fmt.Errorf("%s: new instance for %s: %w", h.Protocol(), thID, err)
	}

	err = r.cache.Add(thID, rec)

	switch {
	case err == nil:
		return thID, true, nil
	case errors.Is(err, instance.ErrExists):
		return thID, false, nil
	default:
		return "", false, err
	}
}

func (r *Router) pendingConnection(connectionID string) bool {
	if connectionID == "" {
		return false
	}

	rec, err := r.cache.Get(connectionID)

	return err == nil && !rec.Terminal()
}

// rekey moves an instance whose thread changed while handling to its new thread id. The caller still
// owns the instance.
func (r *Router) rekey(key string, next instance.Record) string {
	thID := next.ThreadID()
	if thID == "" || thID == key {
		return key
	}

	err := r.cache.Move(key, thID)

	switch {
	case err == nil:
		return thID
	case errors.Is(err, instance.ErrNotFound) && r.cache.Has(thID):
		// moved by the owner before us while this checkout waited on key
		return thID
	default:
		logger.Warnf("rekey %s to %s: %s", key, thID, err)

		return key
	}
}
