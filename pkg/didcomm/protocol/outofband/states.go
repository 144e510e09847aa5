/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package outofband

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/fsm"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
)

// State of a handshake reuse exchange.
type State string

// Kind is an inbound reuse message kind or a local action.
type Kind string

const (
	// StateInitial is the initial state.
	StateInitial State = "initial"
	// StateAwaitResponse is the state where the receiver waits for handshake-reuse-accepted.
	StateAwaitResponse State = "await-response"
	// StateDone is the final state.
	StateDone State = "done"

	KindInvitation     Kind = "invitation"
	KindReuse          Kind = "handshake-reuse"
	KindReuseAccepted  Kind = "handshake-reuse-accepted"
	KindUnknown        Kind = "unknown"
	actionRequestReuse Kind = "request-reuse"
)

var (
	receiverTable = fsm.NewTable[State, Kind](Name).
		Add(StateInitial, actionRequestReuse, StateAwaitResponse).
		Add(StateAwaitResponse, KindReuseAccepted, StateDone)
	senderTable = fsm.NewTable[State, Kind](Name).
		Add(StateInitial, KindReuse, StateDone)
)

// Classify returns the out-of-band kind of msg.
func Classify(msg service.DIDCommMsgMap) Kind {
	mt, err := service.ParseMessageType(msg.Type())
	if err != nil || mt.Family != Name || mt.Major != 1 {
		return KindUnknown
	}

	switch k := Kind(mt.Kind); k {
	case KindInvitation, KindReuse, KindReuseAccepted:
		return k
	default:
		return KindUnknown
	}
}

// Reuse is one handshake reuse exchange. The receiver of an invitation sends handshake-reuse over an
// existing connection; the sender of the invitation accepts it.
type Reuse struct {
	sender       bool
	state        State
	thread       string
	invitationID string
}

var _ instance.Record = Reuse{}

// NewReuse creates the invitee side of a reuse of invitation invitationID.
func NewReuse(invitationID string) Reuse {
	return Reuse{state: StateInitial, invitationID: invitationID}
}

func newReuseAcceptor() Reuse {
	return Reuse{sender: true, state: StateInitial}
}

// ThreadID returns the reuse message id.
func (r Reuse) ThreadID() string { return r.thread }

// Protocol returns the family name.
func (r Reuse) Protocol() string { return Name }

// StateName returns the state as a string.
func (r Reuse) StateName() string { return string(r.state) }

// State returns the current state.
func (r Reuse) State() State { return r.state }

// InvitationID returns the reused invitation.
func (r Reuse) InvitationID() string { return r.invitationID }

// Terminal reports whether the exchange is done.
func (r Reuse) Terminal() bool { return r.table().Terminal(r.state) }

func (r Reuse) table() *fsm.Table[State, Kind] {
	if r.sender {
		return senderTable
	}

	return receiverTable
}

// Request builds the handshake-reuse message.
func (r Reuse) Request() (Reuse, *HandshakeReuse, error) {
	next, err := r.table().Next(r.state, actionRequestReuse)
	if err != nil {
		return r, nil, err
	}

	msg := &HandshakeReuse{Type: HandshakeReuseMsgType, ID: uuid.New().String()}
	msg.SetThread(msg.ID)
	msg.WithParent(r.invitationID)

	r.state, r.thread = next, msg.ID

	return r, msg, nil
}

// Handle applies an inbound reuse message.
func (r Reuse) Handle(msg service.DIDCommMsgMap) (Reuse, service.DIDCommMsgMap, error) {
	kind := Classify(msg)
	if kind == KindUnknown {
		logger.Debugf("ignoring %s in state %s", msg.Type(), r.state)

		return r, nil, nil
	}

	next, err := r.table().Next(r.state, kind)
	if err != nil {
		return r, nil, err
	}

	thID, err := msg.ThreadID()
	if err != nil {
		return r, nil, r.table().Errorf(r.state, kind, err)
	}

	if err = fsm.CheckThread(r.thread, thID); err != nil {
		return r, nil, r.table().Errorf(r.state, kind, err)
	}

	pthID := msg.ParentThreadID()
	if r.invitationID != "" && pthID != r.invitationID {
		return r, nil, r.table().Errorf(r.state, kind,
			fmt.Errorf("%w: reuse of invitation %s", fsm.ErrThreadMismatch, pthID))
	}

	r.state, r.thread, r.invitationID = next, thID, pthID

	if kind != KindReuse {
		return r, nil, nil
	}

	accepted := &HandshakeReuseAccepted{Type: HandshakeReuseAcceptedMsgType, ID: uuid.New().String()}
	accepted.SetThread(thID)
	accepted.WithParent(pthID)

	out, err := service.NewDIDCommMsgMap(accepted)
	if err != nil {
		return r, nil, err
	}

	return r, out, nil
}

// Protocol returns the family name.
func (s *Service) Protocol() string { return Name }

// Initiates reports whether kind starts a new exchange: a reuse of an invitation this agent sent.
func (s *Service) Initiates(kind string) bool { return Kind(kind) == KindReuse }

// New creates the acceptor of an inbound handshake-reuse. The reused invitation must be one this agent
// sent.
func (s *Service) New(msg service.DIDCommMsgMap) (instance.Record, error) {
	rec, err := s.Get(msg.ParentThreadID())
	if err != nil {
		return nil, err
	}

	if rec.Role != RoleSender {
		return nil, fmt.Errorf("%w: invitation %s was not sent by this agent", ErrRecordNotFound, rec.ID)
	}

	return newReuseAcceptor(), nil
}

// Handle applies msg to rec.
func (s *Service) Handle(_ context.Context, rec instance.Record,
	msg service.DIDCommMsgMap) (instance.Record, []service.DIDCommMsgMap, error) {
	r, ok := rec.(Reuse)
	if !ok {
		return rec, nil, fmt.Errorf("out-of-band: unexpected record %T", rec)
	}

	next, out, err := r.Handle(msg)
	if err != nil || out == nil {
		return next, nil, err
	}

	return next, []service.DIDCommMsgMap{out}, nil
}
