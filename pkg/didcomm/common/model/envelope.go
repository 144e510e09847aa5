/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ForwardMsgType is the routing/1.0 forward message.
const ForwardMsgType = "https://didcomm.org/routing/1.0/forward"

// Forward wraps an envelope for the next hop. Msg is the packed envelope JSON, kept verbatim.
type Forward struct {
	Type string          `json:"@type,omitempty"`
	ID   string          `json:"@id,omitempty"`
	To   string          `json:"to,omitempty"`
	Msg  json.RawMessage `json:"msg,omitempty"`
}

// NewForward builds a forward of envelope to the recipient key to.
func NewForward(to string, envelope []byte) *Forward {
	return &Forward{Type: ForwardMsgType, ID: uuid.New().String(), To: to, Msg: envelope}
}
