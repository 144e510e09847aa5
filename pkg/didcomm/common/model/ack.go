/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package model

import (
	"github.com/google/uuid"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
)

// Ack statuses.
const (
	AckStatusOK      = "OK"
	AckStatusFail    = "FAIL"
	AckStatusPending = "PENDING"
)

// NotificationAckMsgType is the generic notification ack.
const NotificationAckMsgType = "https://didcomm.org/notification/1.0/ack"

// Ack acknowledgement struct.
type Ack struct {
	Type   string `json:"@type,omitempty"`
	ID     string `json:"@id,omitempty"`
	Status string `json:"status,omitempty"`
	decorator.Threaded
}

// NewAck builds an OK ack of the given family type for thID.
func NewAck(msgType, thID string) *Ack {
	ack := &Ack{Type: msgType, ID: uuid.New().String(), Status: AckStatusOK}
	ack.SetThread(thID)

	return ack
}
