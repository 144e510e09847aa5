/*
Copyright Avast Software. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package legacyconnection

import (
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-didcomm-go/pkg/doc/did"
)

const (
	// ProtocolName is the connections/1.0 family.
	ProtocolName = "connections"
	// PIURI is the connection protocol identifier URI.
	PIURI = "https://didcomm.org/connections/1.0"
	// InvitationMsgType defines the connection invitation message type.
	InvitationMsgType = PIURI + "/invitation"
	// RequestMsgType defines the connection request message type.
	RequestMsgType = PIURI + "/request"
	// ResponseMsgType defines the connection response message type.
	ResponseMsgType = PIURI + "/response"
	// AckMsgType defines the connection ack message type.
	AckMsgType = PIURI + "/ack"
	// ProblemReportMsgType defines the connection problem report message type.
	ProblemReportMsgType = PIURI + "/problem_report"
)

// Invitation model
//
// Invitation defines Connection protocol invitation message
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0160-connection-protocol#0-invitation-to-connect
type Invitation struct {
	Type            string   `json:"@type,omitempty"`
	ID              string   `json:"@id,omitempty"`
	Label           string   `json:"label,omitempty"`
	RecipientKeys   []string `json:"recipientKeys,omitempty"`
	ServiceEndpoint string   `json:"serviceEndpoint,omitempty"`
	RoutingKeys     []string `json:"routingKeys,omitempty"`
	ImageURL        string   `json:"imageUrl,omitempty"`
	// DID is set by public invitations, which carry no keys or endpoint.
	DID string `json:"did,omitempty"`
}

// Request defines a2a Connection request
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0160-connection-protocol#1-connection-request
type Request struct {
	Type       string      `json:"@type,omitempty"`
	ID         string      `json:"@id,omitempty"`
	Label      string      `json:"label"`
	Connection *Connection `json:"connection,omitempty"`
	decorator.Threaded
	decorator.Timed
}

// Response defines a2a Connection response
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0160-connection-protocol#2-connection-response
type Response struct {
	Type                string               `json:"@type,omitempty"`
	ID                  string               `json:"@id,omitempty"`
	ConnectionSignature *decorator.Signature `json:"connection~sig,omitempty"`
	decorator.Threaded
	decorator.AckRequest
	decorator.Timed
}

// Connection defines connection body of connection request.
type Connection struct {
	DID    string   `json:"DID,omitempty"`
	DIDDoc *did.Doc `json:"DIDDoc,omitempty"`
}
