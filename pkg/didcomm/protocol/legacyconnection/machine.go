/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package legacyconnection

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/fsm"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/trustping"
	"github.com/hyperledger/aries-didcomm-go/pkg/doc/did"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
)

var logger = log.New("aries-framework/legacyconnection")

// Role of a connection participant.
type Role string

// State of a connection.
type State string

// Kind is an inbound message kind or a local action.
type Kind string

const (
	// RoleInviter creates the invitation and answers the request.
	RoleInviter Role = "inviter"
	// RoleInvitee accepts an invitation.
	RoleInvitee Role = "invitee"
)

// Connection states.
const (
	StateInitial   State = "initial"
	StateInvited   State = "invited"
	StateRequested State = "requested"
	StateResponded State = "responded"
	StateCompleted State = "completed"
	StateNull      State = "null"
)

// Inbound message kinds.
const (
	KindInvitation    Kind = "invitation"
	KindRequest       Kind = "request"
	KindResponse      Kind = "response"
	KindAck           Kind = "ack"
	KindPing          Kind = "ping"
	KindPingResponse  Kind = "ping_response"
	KindProblemReport Kind = "problem_report"
	KindUnknown       Kind = "unknown"
)

const (
	actionInvite  Kind = "create-invitation"
	actionAccept  Kind = "accept-invitation"
	actionAbandon Kind = "abandon"
)

var (
	inviterTable = fsm.NewTable[State, Kind](ProtocolName).
		Add(StateInitial, actionInvite, StateInvited).
		Add(StateInvited, KindRequest, StateResponded).
		Add(StateResponded, KindAck, StateCompleted).
		Add(StateResponded, KindPing, StateCompleted).
		Add(StateResponded, KindPingResponse, StateCompleted).
		AddFrom([]State{StateInvited, StateResponded}, KindProblemReport, StateNull).
		AddFrom([]State{StateInvited, StateResponded}, actionAbandon, StateNull)
	inviteeTable = fsm.NewTable[State, Kind](ProtocolName).
		Add(StateInitial, KindInvitation, StateInvited).
		Add(StateInvited, actionAccept, StateRequested).
		Add(StateRequested, KindResponse, StateCompleted).
		AddFrom([]State{StateInvited, StateRequested}, KindProblemReport, StateNull).
		AddFrom([]State{StateInvited, StateRequested}, actionAbandon, StateNull)
)

// Classify returns the connection kind of msg. Trust pings, notification acks and generic problem
// reports are recognised because they may complete or end a connection.
func Classify(msg service.DIDCommMsgMap) Kind {
	mt, err := service.ParseMessageType(msg.Type())
	if err != nil || mt.Major != 1 {
		return KindUnknown
	}

	switch mt.Family {
	case ProtocolName:
		switch k := Kind(mt.Kind); k {
		case KindInvitation, KindRequest, KindResponse, KindAck, KindProblemReport:
			return k
		}
	case "notification":
		if mt.Kind == "ack" {
			return KindAck
		}
	case trustping.ProtocolName:
		switch k := Kind(mt.Kind); k {
		case KindPing, KindPingResponse:
			return k
		}
	case "report-problem":
		if mt.Kind == "problem-report" {
			return KindProblemReport
		}
	}

	return KindUnknown
}

// Identity is the pairwise DID one side discloses in the exchange.
type Identity struct {
	DID    string
	Verkey string
	Doc    *did.Doc
}

// Machine is one side of a connection. Transitions return a new Machine; the receiver never changes.
type Machine struct {
	role  Role
	state State
	// thread is the request @id once known, before that the invitation @id.
	thread       string
	invitationID string

	invitationKey string
	invitation    *service.Destination
	requestAck    bool

	me          Identity
	theirLabel  string
	theirDID    string
	theirDoc    *did.Doc
	theirVerkey string

	problem *model.ProblemReport
}

var _ instance.Record = Machine{}

// NewInviter creates the inviting side. me is disclosed in the response; requestAck sets
// ~please_ack on it.
func NewInviter(me Identity, requestAck bool) Machine {
	return Machine{role: RoleInviter, state: StateInitial, me: me, requestAck: requestAck}
}

// NewInvitee creates the invited side.
func NewInvitee() Machine {
	return Machine{role: RoleInvitee, state: StateInitial}
}

// ThreadID returns the connection thread id, which is also the connection id.
func (m Machine) ThreadID() string { return m.thread }

// Protocol returns the family name.
func (m Machine) Protocol() string { return ProtocolName }

// StateName returns the state as a string.
func (m Machine) StateName() string { return string(m.state) }

// State returns the current state.
func (m Machine) State() State { return m.state }

// Role returns the machine's role.
func (m Machine) Role() Role { return m.role }

// Terminal reports whether the connection is completed or abandoned.
func (m Machine) Terminal() bool { return m.table().Terminal(m.state) }

// InvitationID returns the @id of the invitation the connection started from.
func (m Machine) InvitationID() string { return m.invitationID }

// InvitationDestination returns where the invitee sends its request.
func (m Machine) InvitationDestination() *service.Destination { return m.invitation }

// Me returns the local pairwise identity.
func (m Machine) Me() Identity { return m.me }

// TheirLabel returns the label the counterparty announced.
func (m Machine) TheirLabel() string { return m.theirLabel }

// TheirDID returns the counterparty DID.
func (m Machine) TheirDID() string { return m.theirDID }

// TheirDIDDoc returns the counterparty DID document.
func (m Machine) TheirDIDDoc() *did.Doc { return m.theirDoc }

// TheirVerkey returns the counterparty's recipient key.
func (m Machine) TheirVerkey() string { return m.theirVerkey }

// Problem returns the problem report that ended the connection, if any.
func (m Machine) Problem() *model.ProblemReport { return m.problem }

func (m Machine) table() *fsm.Table[State, Kind] {
	if m.role == RoleInviter {
		return inviterTable
	}

	return inviteeTable
}

// Invite records a created invitation. key is the verkey that signs the response; it is the
// invitation recipient key.
func (m Machine) Invite(inv *Invitation, key string) (Machine, error) {
	next, err := m.table().Next(m.state, actionInvite)
	if err != nil {
		return m, err
	}

	m.state, m.thread, m.invitationID, m.invitationKey = next, inv.ID, inv.ID, key

	return m, nil
}

// ReceiveOOBInvitation applies an out-of-band invitation whose connection service has already been
// resolved to dest.
func (m Machine) ReceiveOOBInvitation(invitationID, label string, dest *service.Destination) (Machine, error) {
	next, err := m.table().Next(m.state, KindInvitation)
	if err != nil {
		return m, err
	}

	if dest == nil || len(dest.RecipientKeys) == 0 {
		return m, m.table().Errorf(m.state, KindInvitation, fmt.Errorf("%w: no recipient key", fsm.ErrInvalidState))
	}

	m.state, m.thread, m.invitationID = next, invitationID, invitationID
	m.invitation, m.invitationKey, m.theirLabel = dest, dest.RecipientKeys[0], label

	return m, nil
}

// Accept accepts the invitation and builds the request that discloses me.
func (m Machine) Accept(label string, me Identity) (Machine, *Request, error) {
	next, err := m.table().Next(m.state, actionAccept)
	if err != nil {
		return m, nil, err
	}

	if me.Doc == nil {
		return m, nil, m.table().Errorf(m.state, actionAccept, fmt.Errorf("%w: no did doc", fsm.ErrInvalidState))
	}

	req := &Request{
		Type:       RequestMsgType,
		ID:         uuid.New().String(),
		Label:      label,
		Connection: &Connection{DID: me.DID, DIDDoc: me.Doc},
	}
	req.SetThread(req.ID)
	req.WithParent(m.invitationID)
	req.SetOutTime(time.Now())

	m.state, m.thread, m.me = next, req.ID, me

	return m, req, nil
}

// Abandon ends a pending connection and builds the problem report telling the counterparty.
func (m Machine) Abandon(code, explain string) (Machine, *model.ProblemReport, error) {
	next, err := m.table().Next(m.state, actionAbandon)
	if err != nil {
		return m, nil, err
	}

	report := newProblemReport(m.thread, code, explain)
	m.state, m.problem = next, report

	return m, report, nil
}

// Handle applies an inbound message. signer is used by the inviter to sign the response and may be nil
// for the invitee.
func (m Machine) Handle(msg service.DIDCommMsgMap, signer Signer) (Machine, service.DIDCommMsgMap, error) {
	prev := m
	kind := Classify(msg)
	if kind == KindUnknown {
		logger.Debugf("ignoring %s in state %s", msg.Type(), m.state)

		return m, nil, nil
	}

	next, err := m.table().Next(m.state, kind)
	if err != nil {
		return m, nil, err
	}

	// A ping without ~thread has already been matched to this connection by its sender's key.
	if kind != KindInvitation && kind != KindRequest && (kind != KindPing || msg.HasThread()) {
		thID, e := msg.ThreadID()
		if e != nil {
			return m, nil, m.table().Errorf(m.state, kind, e)
		}

		if e = fsm.CheckThread(m.thread, thID); e != nil {
			return m, nil, m.table().Errorf(m.state, kind, e)
		}
	}

	var out interface{}

	switch kind {
	case KindInvitation:
		err = m.handleInvitation(msg)
	case KindRequest:
		out, err = m.handleRequest(msg, signer)
	case KindResponse:
		out, err = m.handleResponse(msg)
	case KindPing:
		out, err = m.handlePing(msg)
	case KindProblemReport:
		err = m.handleProblemReport(msg)
	}

	if err != nil {
		return prev, nil, m.table().Errorf(prev.state, kind, err)
	}

	var outMsg service.DIDCommMsgMap

	if out != nil {
		if outMsg, err = service.NewDIDCommMsgMap(out); err != nil {
			return prev, nil, err
		}
	}

	m.state = next

	return m, outMsg, nil
}

// handleInvitation and the other handlers below run on the copy Handle returns.
func (m *Machine) handleInvitation(msg service.DIDCommMsgMap) error {
	inv := &Invitation{}
	if err := msg.Decode(inv); err != nil {
		return err
	}

	if len(inv.RecipientKeys) == 0 || inv.ServiceEndpoint == "" {
		return fmt.Errorf("%w: invitation without recipient keys or endpoint", fsm.ErrInvalidState)
	}

	recipientKeys, err := toVerkeys(inv.RecipientKeys)
	if err != nil {
		return err
	}

	routingKeys, err := toVerkeys(inv.RoutingKeys)
	if err != nil {
		return err
	}

	m.thread, m.invitationID, m.theirLabel = inv.ID, inv.ID, inv.Label
	m.invitationKey = recipientKeys[0]
	m.invitation = &service.Destination{
		RecipientKeys:   recipientKeys,
		ServiceEndpoint: inv.ServiceEndpoint,
		RoutingKeys:     routingKeys,
	}

	return nil
}

func (m *Machine) handleRequest(msg service.DIDCommMsgMap, signer Signer) (*Response, error) {
	req := &Request{}
	if err := msg.Decode(req); err != nil {
		return nil, err
	}

	if p := req.ParentThreadID(); p != "" && p != m.invitationID {
		return nil, fmt.Errorf("%w: request for invitation %s", fsm.ErrThreadMismatch, p)
	}

	if req.Connection == nil || req.Connection.DIDDoc == nil {
		return nil, fmt.Errorf("%w: request without connection did doc", fsm.ErrInvalidState)
	}

	if signer == nil {
		return nil, fmt.Errorf("%w: no signer", fsm.ErrInvalidState)
	}

	theirVerkey, err := req.Connection.DIDDoc.RecipientVerkey()
	if err != nil {
		return nil, err
	}

	sig, err := signConnection(signer, m.invitationKey, &Connection{DID: m.me.DID, DIDDoc: m.me.Doc}, time.Now())
	if err != nil {
		return nil, err
	}

	resp := &Response{Type: ResponseMsgType, ID: uuid.New().String(), ConnectionSignature: sig}
	resp.SetThread(req.ID)
	resp.SetOutTime(time.Now())

	if m.requestAck {
		resp.RequestAck()
	}

	m.thread, m.theirLabel = req.ID, req.Label
	m.theirDID, m.theirDoc, m.theirVerkey = req.Connection.DID, req.Connection.DIDDoc, theirVerkey

	return resp, nil
}

func (m *Machine) handleResponse(msg service.DIDCommMsgMap) (interface{}, error) {
	resp := &Response{}
	if err := msg.Decode(resp); err != nil {
		return nil, err
	}

	conn, err := verifyConnection(resp.ConnectionSignature, m.invitationKey)
	if err != nil {
		return nil, err
	}

	if conn.DIDDoc == nil {
		return nil, fmt.Errorf("%w: response without did doc", fsm.ErrInvalidState)
	}

	theirVerkey, err := conn.DIDDoc.RecipientVerkey()
	if err != nil {
		return nil, err
	}

	m.theirDID, m.theirDoc, m.theirVerkey = conn.DID, conn.DIDDoc, theirVerkey

	if resp.AckRequested() {
		return model.NewAck(AckMsgType, m.thread), nil
	}

	return trustping.NewPing(false, m.thread), nil
}

func (m *Machine) handlePing(msg service.DIDCommMsgMap) (interface{}, error) {
	ping := &trustping.Ping{}
	if err := msg.Decode(ping); err != nil {
		return nil, err
	}

	if !ping.ResponseRequested {
		return nil, nil
	}

	return trustping.NewPingResponse(ping), nil
}

func (m *Machine) handleProblemReport(msg service.DIDCommMsgMap) error {
	report := &model.ProblemReport{}
	if err := msg.Decode(report); err != nil {
		return err
	}

	logger.Warnf("connection %s abandoned by counterparty: %s %s", m.thread, report.ReasonCode(), report.Reason())

	m.problem = report

	return nil
}

func newProblemReport(thID, code, explain string) *model.ProblemReport {
	report := &model.ProblemReport{
		Type:        ProblemReportMsgType,
		ID:          uuid.New().String(),
		ProblemCode: code,
		Explain:     explain,
	}
	report.SetThread(thID)

	return report
}

func toVerkeys(keys []string) ([]string, error) {
	out := make([]string, 0, len(keys))

	for _, k := range keys {
		v, err := did.ToVerkey(k)
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

type machineJSON struct {
	Role         Role                 `json:"role"`
	State        State                `json:"state"`
	ThreadID     string               `json:"thid"`
	InvitationID string               `json:"invitation_id,omitempty"`
	MyDID        string               `json:"my_did,omitempty"`
	TheirLabel   string               `json:"their_label,omitempty"`
	TheirDID     string               `json:"their_did,omitempty"`
	TheirVerkey  string               `json:"their_verkey,omitempty"`
	TheirDIDDoc  *did.Doc             `json:"their_did_doc,omitempty"`
	Problem      *model.ProblemReport `json:"problem_report,omitempty"`
}

// MarshalJSON renders the connection record kept once the connection ends.
func (m Machine) MarshalJSON() ([]byte, error) {
	return json.Marshal(machineJSON{
		Role:         m.role,
		State:        m.state,
		ThreadID:     m.thread,
		InvitationID: m.invitationID,
		MyDID:        m.me.DID,
		TheirLabel:   m.theirLabel,
		TheirDID:     m.theirDID,
		TheirVerkey:  m.theirVerkey,
		TheirDIDDoc:  m.theirDoc,
		Problem:      m.problem,
	})
}
