/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package outofband

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-didcomm-go/pkg/doc/did"
)

const (
	// Name of this protocol service.
	Name = "out-of-band"
	// PIURI is the out-of-band protocol identifier URI.
	PIURI = "https://didcomm.org/out-of-band/1.1"
	// InvitationMsgType is the '@type' for the invitation message.
	InvitationMsgType = PIURI + "/invitation"
	// HandshakeReuseMsgType is the '@type' for the reuse message.
	HandshakeReuseMsgType = PIURI + "/handshake-reuse"
	// HandshakeReuseAcceptedMsgType is the '@type' for the reuse-accepted message.
	HandshakeReuseAcceptedMsgType = PIURI + "/handshake-reuse-accepted"

	// ConnectionsProtocol is the connections/1.0 handshake protocol.
	ConnectionsProtocol = "https://didcomm.org/connections/1.0"
	// DIDExchangeProtocol is the didexchange/1.0 handshake protocol.
	DIDExchangeProtocol = "https://didcomm.org/didexchange/1.0"

	// CredentialOfferAttachID identifies an attached credential offer.
	CredentialOfferAttachID = "libindy-cred-offer-0"
	// PresentationRequestAttachID identifies an attached presentation request.
	PresentationRequestAttachID = "libindy-request-presentation-0"

	inlineServiceID = "#inline"
)

// Invitation is this protocol's `invitation` message.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0434-outofband#messages
type Invitation struct {
	Type               string                 `json:"@type"`
	ID                 string                 `json:"@id"`
	Label              string                 `json:"label,omitempty"`
	GoalCode           string                 `json:"goal_code,omitempty"`
	Goal               string                 `json:"goal,omitempty"`
	Accept             []string               `json:"accept,omitempty"`
	HandshakeProtocols []string               `json:"handshake_protocols,omitempty"`
	Services           []InvitationService    `json:"services"`
	Requests           []decorator.Attachment `json:"requests~attach,omitempty"`
	decorator.Timed
}

// InvitationService is one entry of an invitation's services: either a DID or an inline DIDComm service block.
type InvitationService struct {
	DID    string
	Inline *did.Service
}

// MarshalJSON writes a DID as a string and an inline service as an object.
func (s InvitationService) MarshalJSON() ([]byte, error) {
	if s.Inline != nil {
		return json.Marshal(s.Inline)
	}

	return json.Marshal(s.DID)
}

// UnmarshalJSON accepts either form.
func (s *InvitationService) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.DID)
	}

	inline := &did.Service{}
	if err := json.Unmarshal(data, inline); err != nil {
		return fmt.Errorf("invitation service: %w", err)
	}

	s.Inline = inline

	return nil
}

// HandshakeReuse asks the inviter to reuse an existing connection instead of creating a new one.
type HandshakeReuse struct {
	Type string `json:"@type"`
	ID   string `json:"@id"`
	decorator.Threaded
}

// HandshakeReuseAccepted answers a HandshakeReuse.
type HandshakeReuseAccepted struct {
	Type string `json:"@type"`
	ID   string `json:"@id"`
	decorator.Threaded
}
