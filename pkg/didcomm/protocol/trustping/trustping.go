/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package trustping

import (
	"context"
	"fmt"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/fsm"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
)

var logger = log.New("aries-framework/trustping")

// Role of a trust ping participant.
type Role string

// State of a trust ping exchange.
type State string

// Kind is an inbound message kind or a local action.
type Kind string

const (
	// RoleSender pings.
	RoleSender Role = "sender"
	// RoleReceiver answers.
	RoleReceiver Role = "receiver"

	StateInitial  State = "initial"
	StatePingSent State = "ping-sent"
	StateFinished State = "finished"

	KindPing         Kind = "ping"
	KindPingResponse Kind = "ping_response"
	KindUnknown      Kind = "unknown"
	actionSendPing   Kind = "send-ping"
)

var (
	senderTable = fsm.NewTable[State, Kind](ProtocolName).
		Add(StateInitial, actionSendPing, StatePingSent).
		Add(StatePingSent, KindPingResponse, StateFinished)
	receiverTable = fsm.NewTable[State, Kind](ProtocolName).
		Add(StateInitial, KindPing, StateFinished)
)

// Classify returns the kind of a trust ping message.
func Classify(msg service.DIDCommMsgMap) Kind {
	mt, err := service.ParseMessageType(msg.Type())
	if err != nil || mt.Family != ProtocolName || mt.Major != 1 {
		return KindUnknown
	}

	switch k := Kind(mt.Kind); k {
	case KindPing, KindPingResponse:
		return k
	default:
		return KindUnknown
	}
}

// Machine is one trust ping exchange.
type Machine struct {
	role   Role
	state  State
	thread string
}

var _ instance.Record = Machine{}

// NewSender creates the pinging side.
func NewSender() Machine {
	return Machine{role: RoleSender, state: StateInitial}
}

// NewReceiver creates the answering side.
func NewReceiver() Machine {
	return Machine{role: RoleReceiver, state: StateInitial}
}

// ThreadID is the ping @id.
func (m Machine) ThreadID() string { return m.thread }

// Protocol returns the family name.
func (m Machine) Protocol() string { return ProtocolName }

// StateName returns the current state.
func (m Machine) StateName() string { return string(m.state) }

// State returns the current state.
func (m Machine) State() State { return m.state }

// Role returns the machine's role.
func (m Machine) Role() Role { return m.role }

// Terminal reports whether the exchange is over.
func (m Machine) Terminal() bool { return m.table().Terminal(m.state) }

func (m Machine) table() *fsm.Table[State, Kind] {
	if m.role == RoleSender {
		return senderTable
	}

	return receiverTable
}

// SendPing builds a ping requesting a response.
func (m Machine) SendPing(comment string) (Machine, *Ping, error) {
	next, err := m.table().Next(m.state, actionSendPing)
	if err != nil {
		return m, nil, err
	}

	ping := NewPing(true, "")
	ping.Comment = comment

	m.state, m.thread = next, ping.ID

	return m, ping, nil
}

// Handle applies an inbound message.
func (m Machine) Handle(msg service.DIDCommMsgMap) (Machine, service.DIDCommMsgMap, error) {
	kind := Classify(msg)
	if kind == KindUnknown {
		logger.Debugf("ignoring %s in state %s", msg.Type(), m.state)

		return m, nil, nil
	}

	next, err := m.table().Next(m.state, kind)
	if err != nil {
		return m, nil, err
	}

	thID, err := msg.ThreadID()
	if err != nil {
		return m, nil, m.table().Errorf(m.state, kind, err)
	}

	if err = fsm.CheckThread(m.thread, thID); err != nil {
		return m, nil, m.table().Errorf(m.state, kind, err)
	}

	var out service.DIDCommMsgMap

	if kind == KindPing {
		ping := &Ping{}
		if err = msg.Decode(ping); err != nil {
			return m, nil, fmt.Errorf("trust ping: %w", err)
		}

		if ping.ResponseRequested {
			out = service.MustDIDCommMsgMap(NewPingResponse(ping))
		}

		thID = ping.ID
	}

	m.state, m.thread = next, thID

	return m, out, nil
}

// Service plugs trust ping into the message router.
type Service struct{}

// New creates the trust ping service.
func New() *Service {
	return &Service{}
}

// Protocol returns the family name.
func (s *Service) Protocol() string { return ProtocolName }

// Initiates reports whether kind starts a new exchange.
func (s *Service) Initiates(kind string) bool { return Kind(kind) == KindPing }

// New creates the receiver of an inbound ping.
func (s *Service) New(_ service.DIDCommMsgMap) (instance.Record, error) {
	return NewReceiver(), nil
}

// Handle applies msg to rec.
func (s *Service) Handle(_ context.Context, rec instance.Record,
	msg service.DIDCommMsgMap) (instance.Record, []service.DIDCommMsgMap, error) {
	m, ok := rec.(Machine)
	if !ok {
		return rec, nil, fmt.Errorf("trust ping: unexpected record %T", rec)
	}

	next, out, err := m.Handle(msg)
	if err != nil || out == nil {
		return next, nil, err
	}

	return next, []service.DIDCommMsgMap{out}, nil
}
