/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

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

var logger = log.New("aries-framework/issuecredential")

// Role of an issuance participant.
type Role string

// State of an issuance.
type State string

// Kind is an inbound message kind or a local action.
type Kind string

// Status is the outcome of a finished issuance.
type Status string

const (
	// RoleIssuer issues the credential.
	RoleIssuer Role = "issuer"
	// RoleHolder receives it.
	RoleHolder Role = "holder"
)

// Issuance states.
const (
	StateInitial          State = "initial"
	StateProposalReceived State = "proposal-received"
	StateOfferSent        State = "offer-sent"
	StateRequestReceived  State = "request-received"
	StateCredentialSent   State = "credential-sent"
	StateProposalSent     State = "proposal-sent"
	StateOfferReceived    State = "offer-received"
	StateRequestSent      State = "request-sent"
	StateFinished         State = "finished"
)

// Inbound message kinds.
const (
	KindPropose       Kind = "propose-credential"
	KindOffer         Kind = "offer-credential"
	KindRequest       Kind = "request-credential"
	KindCredential    Kind = "issue-credential"
	KindAck           Kind = "ack"
	KindProblemReport Kind = "problem-report"
	KindUnknown       Kind = "unknown"
)

const (
	actionSendOffer      Kind = "send-offer"
	actionSendCredential Kind = "send-credential"
	actionSendProposal   Kind = "send-proposal"
	actionSendRequest    Kind = "send-request"
	actionDecline        Kind = "decline"
)

// Outcomes of a finished issuance.
const (
	StatusNone    Status = ""
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ProblemCodeAbandoned is sent by a holder that declines an offer.
const ProblemCodeAbandoned = "issuance-abandoned"

var (
	issuerTable = fsm.NewTable[State, Kind](Name).
		Add(StateInitial, actionSendOffer, StateOfferSent).
		Add(StateInitial, KindPropose, StateProposalReceived).
		Add(StateProposalReceived, actionSendOffer, StateOfferSent).
		Add(StateOfferSent, KindRequest, StateRequestReceived).
		Add(StateOfferSent, KindPropose, StateProposalReceived).
		Add(StateRequestReceived, actionSendCredential, StateCredentialSent).
		Add(StateCredentialSent, KindAck, StateFinished).
		AddFrom([]State{
			StateInitial, StateProposalReceived, StateOfferSent, StateRequestReceived, StateCredentialSent,
		}, KindProblemReport, StateFinished)
	holderTable = fsm.NewTable[State, Kind](Name).
		Add(StateInitial, KindOffer, StateOfferReceived).
		Add(StateInitial, actionSendProposal, StateProposalSent).
		Add(StateProposalSent, KindOffer, StateOfferReceived).
		Add(StateOfferReceived, actionSendRequest, StateRequestSent).
		Add(StateOfferReceived, actionDecline, StateFinished).
		Add(StateRequestSent, KindCredential, StateFinished).
		AddFrom([]State{
			StateInitial, StateProposalSent, StateOfferReceived, StateRequestSent,
		}, KindProblemReport, StateFinished)
)

// Classify returns the issuance kind of msg.
func Classify(msg service.DIDCommMsgMap) Kind {
	mt, err := service.ParseMessageType(msg.Type())
	if err != nil || mt.Major != 1 {
		return KindUnknown
	}

	switch mt.Family {
	case Name:
		switch k := Kind(mt.Kind); k {
		case KindPropose, KindOffer, KindRequest, KindCredential, KindAck, KindProblemReport:
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

// Machine is one side of a credential issuance. Transitions return a new Machine; the receiver never
// changes.
type Machine struct {
	role   Role
	state  State
	thread string
	status Status

	proposal   *ProposeCredential
	preview    *PreviewCredential
	offer      []byte
	request    []byte
	credential []byte
	revocation RevocationInfo

	problem *model.ProblemReport
}

var _ instance.Record = Machine{}

// NewIssuer creates the issuing side.
func NewIssuer() Machine {
	return Machine{role: RoleIssuer, state: StateInitial}
}

// NewHolder creates the receiving side.
func NewHolder() Machine {
	return Machine{role: RoleHolder, state: StateInitial}
}

// ThreadID returns the issuance thread id.
func (m Machine) ThreadID() string { return m.thread }

// Protocol returns the family name.
func (m Machine) Protocol() string { return Name }

// StateName returns the state as a string.
func (m Machine) StateName() string { return string(m.state) }

// State returns the current state.
func (m Machine) State() State { return m.state }

// Role returns the machine's role.
func (m Machine) Role() Role { return m.role }

// Terminal reports whether the issuance is finished.
func (m Machine) Terminal() bool { return m.table().Terminal(m.state) }

// Status returns the outcome once finished.
func (m Machine) Status() Status { return m.status }

// Proposal returns the last proposal sent or received.
func (m Machine) Proposal() *ProposeCredential { return m.proposal }

// Preview returns the offered credential preview.
func (m Machine) Preview() *PreviewCredential { return m.preview }

// Offer returns the credential offer attachment.
func (m Machine) Offer() []byte { return m.offer }

// Request returns the credential request attachment.
func (m Machine) Request() []byte { return m.request }

// Credential returns the issued credential attachment.
func (m Machine) Credential() []byte { return m.credential }

// RevocationInfo returns the revocation registry data recorded so far.
func (m Machine) RevocationInfo() RevocationInfo { return m.revocation }

// IsRevokable reports whether the credential was issued against a revocation registry.
func (m Machine) IsRevokable() bool { return m.revocation.RevRegID != "" }

// Problem returns the problem report that ended the issuance, if any.
func (m Machine) Problem() *model.ProblemReport { return m.problem }

func (m Machine) table() *fsm.Table[State, Kind] {
	if m.role == RoleIssuer {
		return issuerTable
	}

	return holderTable
}

// SendOffer builds an offer-credential. offer is the anoncreds credential offer; rev names the revocation
// registry the credential will be issued against, if any.
func (m Machine) SendOffer(preview PreviewCredential, offer []byte,
	rev RevocationInfo) (Machine, *OfferCredential, error) {
	next, err := m.table().Next(m.state, actionSendOffer)
	if err != nil {
		return m, nil, err
	}

	if len(offer) == 0 {
		return m, nil, m.table().Errorf(m.state, actionSendOffer,
			fmt.Errorf("%w: empty offer", fsm.ErrInvalidState))
	}

	msg := &OfferCredential{
		Type:              OfferCredentialMsgType,
		ID:                uuid.New().String(),
		CredentialPreview: preview,
		OffersAttach:      []decorator.Attachment{jsonAttachment(offerAttachID, offer)},
	}

	if m.thread == "" {
		m.thread = msg.ID
	} else {
		msg.SetThread(m.thread)
	}

	m.state, m.offer, m.preview = next, offer, &preview
	m.revocation.RevRegID, m.revocation.TailsFile = rev.RevRegID, rev.TailsFile

	return m, msg, nil
}

// SendCredential builds the issue-credential answering the holder's request. credRevID is the index of
// the credential in its revocation registry and is empty for credentials that cannot be revoked.
func (m Machine) SendCredential(credential []byte, credRevID string) (Machine, *IssueCredential, error) {
	next, err := m.table().Next(m.state, actionSendCredential)
	if err != nil {
		return m, nil, err
	}

	if len(credential) == 0 {
		return m, nil, m.table().Errorf(m.state, actionSendCredential,
			fmt.Errorf("%w: empty credential", fsm.ErrInvalidState))
	}

	msg := &IssueCredential{
		Type:              IssueCredentialMsgType,
		ID:                uuid.New().String(),
		CredentialsAttach: []decorator.Attachment{jsonAttachment(credentialAttachID, credential)},
	}
	msg.SetThread(m.thread)
	msg.RequestAck()

	m.state, m.credential, m.revocation.CredRevID = next, credential, credRevID

	return m, msg, nil
}

// SendProposal builds a propose-credential from p.
func (m Machine) SendProposal(p ProposeCredential) (Machine, *ProposeCredential, error) {
	next, err := m.table().Next(m.state, actionSendProposal)
	if err != nil {
		return m, nil, err
	}

	msg := p
	msg.Type, msg.ID = ProposeCredentialMsgType, uuid.New().String()

	if m.thread == "" {
		m.thread = msg.ID
	} else {
		msg.SetThread(m.thread)
	}

	m.state, m.proposal = next, &msg

	return m, &msg, nil
}

// SendRequest builds the request-credential for the received offer.
func (m Machine) SendRequest(request []byte) (Machine, *RequestCredential, error) {
	next, err := m.table().Next(m.state, actionSendRequest)
	if err != nil {
		return m, nil, err
	}

	if len(request) == 0 {
		return m, nil, m.table().Errorf(m.state, actionSendRequest,
			fmt.Errorf("%w: empty request", fsm.ErrInvalidState))
	}

	msg := &RequestCredential{
		Type:           RequestCredentialMsgType,
		ID:             uuid.New().String(),
		RequestsAttach: []decorator.Attachment{jsonAttachment(requestAttachID, request)},
	}
	msg.SetThread(m.thread)

	m.state, m.request = next, request

	return m, msg, nil
}

// Decline rejects the received offer and builds the problem report telling the issuer.
func (m Machine) Decline(reason string) (Machine, *model.ProblemReport, error) {
	next, err := m.table().Next(m.state, actionDecline)
	if err != nil {
		return m, nil, err
	}

	report := model.NewProblemReport(ProblemReportMsgType, m.thread, ProblemCodeAbandoned, reason)
	m.state, m.status, m.problem = next, StatusFailed, report

	return m, report, nil
}

// Handle applies an inbound message.
func (m Machine) Handle(msg service.DIDCommMsgMap) (Machine, service.DIDCommMsgMap, error) {
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

	thID, err := msg.ThreadID()
	if err != nil {
		return m, nil, m.table().Errorf(m.state, kind, err)
	}

	if err = fsm.CheckThread(m.thread, thID); err != nil {
		return m, nil, m.table().Errorf(m.state, kind, err)
	}

	var out interface{}

	switch kind {
	case KindPropose:
		err = m.handleProposal(msg)
	case KindOffer:
		err = m.handleOffer(msg)
	case KindRequest:
		err = m.handleRequest(msg)
	case KindCredential:
		out, err = m.handleCredential(msg)
	case KindAck:
		m.status = StatusSuccess
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

	m.state, m.thread = next, thID

	return m, outMsg, nil
}

func (m *Machine) handleProposal(msg service.DIDCommMsgMap) error {
	p := &ProposeCredential{}
	if err := msg.Decode(p); err != nil {
		return err
	}

	m.proposal = p

	return nil
}

func (m *Machine) handleOffer(msg service.DIDCommMsgMap) error {
	offer := &OfferCredential{}
	if err := msg.Decode(offer); err != nil {
		return err
	}

	data, err := firstAttachment(offer.OffersAttach)
	if err != nil {
		return err
	}

	m.offer, m.preview = data, &offer.CredentialPreview

	return nil
}

func (m *Machine) handleRequest(msg service.DIDCommMsgMap) error {
	req := &RequestCredential{}
	if err := msg.Decode(req); err != nil {
		return err
	}

	data, err := firstAttachment(req.RequestsAttach)
	if err != nil {
		return err
	}

	m.request = data

	return nil
}

func (m *Machine) handleCredential(msg service.DIDCommMsgMap) (interface{}, error) {
	issued := &IssueCredential{}
	if err := msg.Decode(issued); err != nil {
		return nil, err
	}

	data, err := firstAttachment(issued.CredentialsAttach)
	if err != nil {
		return nil, err
	}

	ids := RevocationInfo{}
	if err = json.Unmarshal(data, &ids); err != nil {
		logger.Debugf("credential on thread %s is not json: %s", m.thread, err)
	}

	if ids.RevRegID != "" {
		m.revocation.RevRegID = ids.RevRegID
	}

	if ids.CredRevID != "" {
		m.revocation.CredRevID = ids.CredRevID
	}

	m.credential, m.status = data, StatusSuccess

	if !issued.AckRequested() {
		return nil, nil
	}

	return model.NewAck(AckMsgType, m.thread), nil
}

func (m *Machine) handleProblemReport(msg service.DIDCommMsgMap) error {
	report := &model.ProblemReport{}
	if err := msg.Decode(report); err != nil {
		return err
	}

	logger.Warnf("issuance %s failed: %s %s", m.thread, report.ReasonCode(), report.Reason())

	m.status, m.problem = StatusFailed, report

	return nil
}

func jsonAttachment(id string, payload []byte) decorator.Attachment {
	return decorator.NewBase64Attachment(id, "application/json", payload)
}

func firstAttachment(attachments []decorator.Attachment) ([]byte, error) {
	if len(attachments) == 0 {
		return nil, fmt.Errorf("%w: no attachment", fsm.ErrInvalidState)
	}

	return attachments[0].Bytes()
}

type machineJSON struct {
	Role       Role                 `json:"role"`
	State      State                `json:"state"`
	ThreadID   string               `json:"thid"`
	Status     Status               `json:"status,omitempty"`
	Preview    *PreviewCredential   `json:"credential_preview,omitempty"`
	Credential []byte               `json:"credential,omitempty"`
	Revocation RevocationInfo       `json:"revocation"`
	Problem    *model.ProblemReport `json:"problem_report,omitempty"`
}

// MarshalJSON renders the issuance record kept once the exchange ends.
func (m Machine) MarshalJSON() ([]byte, error) {
	return json.Marshal(machineJSON{
		Role:       m.role,
		State:      m.state,
		ThreadID:   m.thread,
		Status:     m.status,
		Preview:    m.preview,
		Credential: m.credential,
		Revocation: m.revocation,
		Problem:    m.problem,
	})
}
