/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import "github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"

// Handler describes middleware interface
type Handler interface {
	Handle(metadata MetaData) error
}

// Middleware function receives next handler and returns handler that needs to be executed
type Middleware func(next Handler) Handler

// HandlerFunc is a helper type which implements the middleware Handler interface
type HandlerFunc func(metadata MetaData) error

// Handle implements function to satisfy the Handler interface
func (hf HandlerFunc) Handle(metadata MetaData) error {
	return hf(metadata)
}

// MetaData provides helpful information for the processing
type MetaData interface {
	// Message contains the inbound message, nil for local actions.
	Message() service.DIDCommMsgMap
	// StateName provides the state the machine moved to
	StateName() string
	// Machine is the machine after the transition.
	Machine() Machine
}

var initialHandler = HandlerFunc(func(MetaData) error {
	return nil
})

type metaData struct {
	msg     service.DIDCommMsgMap
	machine Machine
}

func (md *metaData) Message() service.DIDCommMsgMap { return md.msg }

func (md *metaData) StateName() string { return md.machine.StateName() }

func (md *metaData) Machine() Machine { return md.machine }
