/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package trustping

import (
	"time"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
)

const (
	// ProtocolName is the trust ping family.
	ProtocolName = "trust_ping"
	// PingMsgType defines the trust ping message type.
	PingMsgType = "https://didcomm.org/trust_ping/1.0/ping"
	// PingResponseMsgType defines the trust ping response message type.
	PingResponseMsgType = "https://didcomm.org/trust_ping/1.0/ping_response"
)

// Ping is the trust ping message
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0048-trust-ping
type Ping struct {
	Type              string `json:"@type,omitempty"`
	ID                string `json:"@id,omitempty"`
	ResponseRequested bool   `json:"response_requested"`
	Comment           string `json:"comment,omitempty"`
	decorator.Threaded
	decorator.Timed
}

// PingResponse answers a Ping. Its thread is the ping @id.
type PingResponse struct {
	Type    string `json:"@type,omitempty"`
	ID      string `json:"@id,omitempty"`
	Comment string `json:"comment,omitempty"`
	decorator.Threaded
	decorator.Timed
}

// NewPing creates a ping. A non empty thID places the ping on an existing thread.
func NewPing(responseRequested bool, thID string) *Ping {
	p := &Ping{Type: PingMsgType, ID: uuid.New().String(), ResponseRequested: responseRequested}
	if thID != "" {
		p.SetThread(thID)
	}

	p.SetOutTime(time.Now())

	return p
}

// NewPingResponse creates the response to ping.
func NewPingResponse(ping *Ping) *PingResponse {
	r := &PingResponse{Type: PingResponseMsgType, ID: uuid.New().String()}
	r.SetThread(ping.ID)
	r.SetOutTime(time.Now())

	return r
}
