/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package presentproof

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/fsm"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
)

var logger = log.New("aries-framework/presentproof")

// Role of a presentation participant.
type Role string

// State of a presentation exchange.
type State string

// Kind is an inbound message kind or a local action.
type Kind string

// Status is the outcome of a finished exchange.
type Status string

const (
	// RoleVerifier requests and verifies the presentation.
	RoleVerifier Role = "verifier"
	// RoleProver presents.
	RoleProver Role = "prover"
)

// Presentation states.
const (
	StateInitial                     State = "initial"
	StateProposalReceived            State = "proposal-received"
	StatePresentationRequestSent     State = "presentation-request-sent"
	StateProposalSent                State = "proposal-sent"
	StatePresentationRequestReceived State = "presentation-request-received"
	StatePresentationSent            State = "presentation-sent"
	StateFinished                    State = "finished"
)

// Inbound message kinds.
const (
	KindPropose       Kind = "propose-presentation"
	KindRequest       Kind = "request-presentation"
	KindPresentation  Kind = "presentation"
	KindAck           Kind = "ack"
	KindProblemReport Kind = "problem-report"
	KindUnknown       Kind = "unknown"
)

const (
	actionSendRequest      Kind = "send-request"
	actionSendProposal     Kind = "send-proposal"
	actionSendPresentation Kind = "send-presentation"
	actionDecline          Kind = "decline"
)

// Outcomes of a finished exchange.
const (
	StatusNone     Status = ""
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusDeclined Status = "declined"
)

// Problem codes sent by this protocol.
const (
	ProblemCodeInvalidPresentation = "invalid-presentation"
	ProblemCodeRejected            = "rejected"
)

var (
	verifierTable = fsm.NewTable[State, Kind](Name).
		Add(StateInitial, actionSendRequest, StatePresentationRequestSent).
		Add(StateInitial, KindPropose, StateProposalReceived).
		Add(StateProposalReceived, actionSendRequest, StatePresentationRequestSent).
		Add(StatePresentationRequestSent, KindPropose, StateProposalReceived).
		Add(StatePresentationRequestSent, KindPresentation, StateFinished).
		AddFrom([]State{StateInitial, StateProposalReceived, StatePresentationRequestSent},
			KindProblemReport, StateFinished)
	proverTable = fsm.NewTable[State, Kind](Name).
		Add(StateInitial, KindRequest, StatePresentationRequestReceived).
		Add(StateInitial, actionSendProposal, StateProposalSent).
		Add(StateProposalSent, KindRequest, StatePresentationRequestReceived).
		Add(StatePresentationRequestReceived, actionSendPresentation, StatePresentationSent).
		Add(StatePresentationRequestReceived, actionDecline, StateFinished).
		Add(StatePresentationSent, KindAck, StateFinished).
		AddFrom([]State{
			StateInitial, StateProposalSent, StatePresentationRequestReceived, StatePresentationSent,
		}, KindProblemReport, StateFinished)
)

// Classify returns the presentation kind of msg.
func Classify(msg service.DIDCommMsgMap) Kind {
	mt, err := service.ParseMessageType(msg.Type())
	if err != nil || mt.Major != 1 {
		return KindUnknown
	}

	switch mt.Family {
	case Name:
		switch k := Kind(mt.Kind); k {
		case KindPropose, KindRequest, KindPresentation, KindAck, KindProblemReport:
			return k
		}
	case "notification":
		if mt.Kind == "ack" {
			return KindAck
		}
	case "report-problem":
		if mt.Kind == "problem-report" {
			return KindProblemReport
		}
	}

	return KindUnknown
}

// Machine is one side of a proof presentation. Transitions return a new Machine; the receiver never
// changes.
type Machine struct {
	role   Role
	state  State
	thread string
	status Status

	verification VerificationStatus
	proposal     *ProposePresentation
	request      []byte
	presentation []byte

	problem *model.ProblemReport
}

var _ instance.Record = Machine{}

// NewVerifier creates the verifying side.
func NewVerifier() Machine {
	return Machine{role: RoleVerifier, state: StateInitial}
}

// NewProver creates the presenting side.
func NewProver() Machine {
	return Machine{role: RoleProver, state: StateInitial}
}

// ThreadID returns the exchange thread id.
func (m Machine) ThreadID() string { return m.thread }

// Protocol returns the family name.
func (m Machine) Protocol() string { return Name }

// StateName returns the state as a string.
func (m Machine) StateName() string { return string(m.state) }

// State returns the current state.
func (m Machine) State() State { return m.state }

// Role returns the machine's role.
func (m Machine) Role() Role { return m.role }

// Terminal reports whether the exchange is finished.
func (m Machine) Terminal() bool { return m.table().Terminal(m.state) }

// Status returns the outcome once finished.
func (m Machine) Status() Status { return m.status }

// VerificationStatus returns the verifier's verdict on the presentation.
func (m Machine) VerificationStatus() VerificationStatus { return m.verification }

// Proposal returns the last proposal sent or received.
func (m Machine) Proposal() *ProposePresentation { return m.proposal }

// Request returns the presentation request attachment.
func (m Machine) Request() []byte { return m.request }

// Presentation returns the presentation attachment.
func (m Machine) Presentation() []byte { return m.presentation }

// Problem returns the problem report that ended the exchange, if any.
func (m Machine) Problem() *model.ProblemReport { return m.problem }

func (m Machine) table() *fsm.Table[State, Kind] {
	if m.role == RoleVerifier {
		return verifierTable
	}

	return proverTable
}

// SendRequest builds a request-presentation carrying the anoncreds proof request.
func (m Machine) SendRequest(request []byte) (Machine, *RequestPresentation, error) {
	next, err := m.table().Next(m.state, actionSendRequest)
	if err != nil {
		return m, nil, err
	}

	if len(request) == 0 {
		return m, nil, m.table().Errorf(m.state, actionSendRequest,
			fmt.Errorf("%w: empty request", fsm.ErrInvalidState))
	}

	msg := &RequestPresentation{
		Type:                 RequestPresentationMsgType,
		ID:                   uuid.New().String(),
		RequestPresentations: []decorator.Attachment{jsonAttachment(requestAttachID, request)},
	}

	if m.thread == "" {
		m.thread = msg.ID
	} else {
		msg.SetThread(m.thread)
	}

	m.state, m.request = next, request

	return m, msg, nil
}

// SendProposal builds a propose-presentation from p.
func (m Machine) SendProposal(p ProposePresentation) (Machine, *ProposePresentation, error) {
	next, err := m.table().Next(m.state, actionSendProposal)
	if err != nil {
		return m, nil, err
	}

	msg := p
	msg.Type, msg.ID = ProposePresentationMsgType, uuid.New().String()

	if m.thread == "" {
		m.thread = msg.ID
	} else {
		msg.SetThread(m.thread)
	}

	m.state, m.proposal = next, &msg

	return m, &msg, nil
}

// SendPresentation builds the presentation answering the request.
func (m Machine) SendPresentation(presentation []byte) (Machine, *Presentation, error) {
	next, err := m.table().Next(m.state, actionSendPresentation)
	if err != nil {
		return m, nil, err
	}

	if len(presentation) == 0 {
		return m, nil, m.table().Errorf(m.state, actionSendPresentation,
			fmt.Errorf("%w: empty presentation", fsm.ErrInvalidState))
	}

	msg := &Presentation{
		Type:          PresentationMsgType,
		ID:            uuid.New().String(),
		Presentations: []decorator.Attachment{jsonAttachment(presentationAttachID, presentation)},
	}
	msg.SetThread(m.thread)

	m.state, m.presentation = next, presentation

	return m, msg, nil
}

// Decline rejects the request and builds the problem report telling the verifier.
func (m Machine) Decline(reason string) (Machine, *model.ProblemReport, error) {
	next, err := m.table().Next(m.state, actionDecline)
	if err != nil {
		return m, nil, err
	}

	report := model.NewProblemReport(ProblemReportMsgType, m.thread, ProblemCodeRejected, reason)
	m.state, m.status, m.problem = next, StatusDeclined, report

	return m, report, nil
}

// Verified applies a received presentation together with the outcome of verifying it. A valid
// presentation is acknowledged and an invalid one is answered with a problem report; nothing is sent
// when verification was unavailable.
func (m Machine) Verified(p *Presentation, status VerificationStatus) (Machine, service.DIDCommMsgMap, error) {
	next, err := m.table().Next(m.state, KindPresentation)
	if err != nil {
		return m, nil, err
	}

	if err = fsm.CheckThread(m.thread, p.ThreadID()); err != nil {
		return m, nil, m.table().Errorf(m.state, KindPresentation, err)
	}

	if len(p.Presentations) > 0 {
		m.presentation, err = p.Presentations[0].Bytes()
		if err != nil {
			m.presentation = nil
		}
	}

	var out interface{}

	switch status {
	case StatusValid:
		m.status, out = StatusSuccess, model.NewAck(AckMsgType, m.thread)
	case StatusInvalid:
		report := model.NewProblemReport(ProblemReportMsgType, m.thread, ProblemCodeInvalidPresentation,
			"presentation verification failed")
		m.status, m.problem, out = StatusFailed, report, report
	case StatusUnavailable:
		m.status = StatusFailed
	default:
		return m, nil, m.table().Errorf(m.state, KindPresentation,
			fmt.Errorf("%w: verification status %q", fsm.ErrInvalidState, status))
	}

	m.state, m.verification = next, status

	if out == nil {
		return m, nil, nil
	}

	msg, err := service.NewDIDCommMsgMap(out)
	if err != nil {
		return m, nil, err
	}

	return m, msg, nil
}

// Handle applies an inbound message. Presentations need a verification outcome and go through Verified.
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

	if kind == KindPresentation {
		return m, nil, m.table().Errorf(m.state, kind,
			fmt.Errorf("%w: presentation must be verified first", fsm.ErrInvalidState))
	}

	thID, err := msg.ThreadID()
	if err != nil {
		return m, nil, m.table().Errorf(m.state, kind, err)
	}

	if err = fsm.CheckThread(m.thread, thID); err != nil {
		return m, nil, m.table().Errorf(m.state, kind, err)
	}

	switch kind {
	case KindPropose:
		p := &ProposePresentation{}
		if err = msg.Decode(p); err == nil {
			m.proposal = p
		}
	case KindRequest:
		err = m.handleRequest(msg)
	case KindAck:
		m.status = StatusSuccess
	case KindProblemReport:
		err = m.handleProblemReport(msg)
	}

	if err != nil {
		return m, nil, m.table().Errorf(m.state, kind, err)
	}

	m.state, m.thread = next, thID

	return m, nil, nil
}

func (m *Machine) handleRequest(msg service.DIDCommMsgMap) error {
	req := &RequestPresentation{}
	if err := msg.Decode(req); err != nil {
		return err
	}

	if len(req.RequestPresentations) == 0 {
		return fmt.Errorf("%w: no attachment", fsm.ErrInvalidState)
	}

	data, err := req.RequestPresentations[0].Bytes()
	if err != nil {
		return err
	}

	m.request = data

	return nil
}

func (m *Machine) handleProblemReport(msg service.DIDCommMsgMap) error {
	report := &model.ProblemReport{}
	if err := msg.Decode(report); err != nil {
		return err
	}

	logger.Warnf("presentation %s failed: %s %s", m.thread, report.ReasonCode(), report.Reason())

	m.status, m.problem = StatusFailed, report

	return nil
}

func jsonAttachment(id string, payload []byte) decorator.Attachment {
	return decorator.NewBase64Attachment(id, "application/json", payload)
}

type machineJSON struct {
	Role         Role                 `json:"role"`
	State        State                `json:"state"`
	ThreadID     string               `json:"thid"`
	Status       Status               `json:"status,omitempty"`
	Verification VerificationStatus   `json:"verification_status,omitempty"`
	Problem      *model.ProblemReport `json:"problem_report,omitempty"`
}

// MarshalJSON renders the exchange record kept once it ends.
func (m Machine) MarshalJSON() ([]byte, error) {
	return json.Marshal(machineJSON{
		Role:         m.role,
		State:        m.state,
		ThreadID:     m.thread,
		Status:       m.status,
		Verification: m.verification,
		Problem:      m.problem,
	})
}
