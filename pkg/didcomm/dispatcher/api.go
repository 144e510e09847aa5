/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
)

// Protocol is a message family the router knows about.
type Protocol string

// Known protocols.
const (
	ProtocolConnections         Protocol = "connections"
	ProtocolDIDExchange         Protocol = "didexchange"
	ProtocolIssueCredential     Protocol = "issue-credential"
	ProtocolPresentProof        Protocol = "present-proof"
	ProtocolOutOfBand           Protocol = "out-of-band"
	ProtocolTrustPing           Protocol = "trust_ping"
	ProtocolNotification        Protocol = "notification"
	ProtocolReportProblem       Protocol = "report-problem"
	ProtocolCoordinateMediation Protocol = "coordinate-mediation"
	ProtocolRouting             Protocol = "routing"
	ProtocolMessagePickup       Protocol = "messagepickup"
	ProtocolBasicMessage        Protocol = "basicmessage"
	ProtocolUnknown             Protocol = "unknown"
)

//nolint:gochecknoglobals
var known = map[string]Protocol{
	string(ProtocolConnections):         ProtocolConnections,
	string(ProtocolDIDExchange):         ProtocolDIDExchange,
	string(ProtocolIssueCredential):     ProtocolIssueCredential,
	string(ProtocolPresentProof):        ProtocolPresentProof,
	string(ProtocolOutOfBand):           ProtocolOutOfBand,
	string(ProtocolTrustPing):           ProtocolTrustPing,
	string(ProtocolNotification):        ProtocolNotification,
	string(ProtocolReportProblem):       ProtocolReportProblem,
	string(ProtocolCoordinateMediation): ProtocolCoordinateMediation,
	string(ProtocolRouting):             ProtocolRouting,
	string(ProtocolMessagePickup):       ProtocolMessagePickup,
	string(ProtocolBasicMessage):        ProtocolBasicMessage,
}

// Classification is what the router needs to know about a message before it is routed.
type Classification struct {
	Type     service.MessageType
	Protocol Protocol
	Kind     string
}

// Classify parses raw and names its protocol and message kind. Messages of families the agent does not
// speak return service.ErrUnknownMessageType with a classification of ProtocolUnknown.
func Classify(raw []byte) (Classification, error) {
	msg, err := service.ParseDIDCommMsgMap(raw)
	if err != nil {
		return Classification{Protocol: ProtocolUnknown}, err
	}

	return ClassifyMsg(msg)
}

// ClassifyMsg is Classify for a parsed message.
func ClassifyMsg(msg service.DIDCommMsgMap) (Classification, error) {
	mt, err := service.ParseMessageType(msg.Type())
	if err != nil {
		return Classification{Protocol: ProtocolUnknown}, err
	}

	p, ok := known[mt.Family]
	if !ok {
		return Classification{Type: mt, Protocol: ProtocolUnknown, Kind: mt.Kind},
			fmt.Errorf("%w: family %q", service.ErrUnknownMessageType, mt.Family)
	}

	return Classification{Type: mt, Protocol: p, Kind: mt.Kind}, nil
}

// Handler is a protocol service as seen by the router.
type Handler interface {
	// Protocol is the family of the records the handler creates.
	Protocol() string
	// Initiates reports whether a message of kind starts a new instance.
	Initiates(kind string) bool
	// New creates the instance an initiating message starts.
	New(msg service.DIDCommMsgMap) (instance.Record, error)
	// Handle applies msg to rec and returns the next record and the messages to send.
	Handle(ctx context.Context, rec instance.Record,
		msg service.DIDCommMsgMap) (instance.Record, []service.DIDCommMsgMap, error)
}

// ErrUnhandled is returned for messages no instance or handler claims.
var ErrUnhandled = errors.New("no handler for message")
