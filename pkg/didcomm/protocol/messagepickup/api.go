/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import (
	"context"
	"errors"
	"sync"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
)

// ErrNoSession is returned when live delivery is requested without an open session.
var ErrNoSession = errors.New("no live session for account")

// Pusher sends a message to the agent over a session it opened, e.g. a websocket. The pusher packs the
// message for the agent.
type Pusher interface {
	Push(ctx context.Context, msg service.DIDCommMsgMap) error
}

type session struct {
	pusher Pusher
	live   bool
}

// Sessions tracks the open session of each account and whether it asked for live delivery.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewSessions returns an empty registry.
func NewSessions() *Sessions {
	return &Sessions{sessions: map[string]*session{}}
}

// Register makes p the session of authPubKey, replacing any earlier one. The returned func
// unregisters it; it is a no-op once another session replaced p.
func (s *Sessions) Register(authPubKey string, p Pusher) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &session{pusher: p}
	s.sessions[authPubKey] = sess

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.sessions[authPubKey] == sess {
			delete(s.sessions, authPubKey)
		}
	}
}

// SetLive turns live delivery on or off for the session of authPubKey.
func (s *Sessions) SetLive(authPubKey string, live bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[authPubKey]
	if !ok {
		if !live {
			return nil
		}

		return ErrNoSession
	}

	sess.live = live

	return nil
}

// Live returns the pusher of authPubKey when live delivery is on.
func (s *Sessions) Live(authPubKey string) (Pusher, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[authPubKey]
	if !ok || !sess.live {
		return nil, false
	}

	return sess.pusher, true
}
