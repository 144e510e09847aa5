/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package presentproof

import "github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"

// Handler describes middleware interface
type Handler interface {
	Handle(metadata Metadata) error
}

// Middleware function receives next handler and returns handler that needs to be executed
type Middleware func(next Handler) Handler

// HandlerFunc is a helper type which implements the middleware Handler interface
type HandlerFunc func(metadata Metadata) error

// Handle implements function to satisfy the Handler interface
func (hf HandlerFunc) Handle(metadata Metadata) error {
	return hf(metadata)
}

// Metadata provides helpful information for the processing
type Metadata interface {
	// Message contains the inbound message, nil for local actions
	Message() service.DIDCommMsgMap
	// StateName provides the state name
	StateName() string
	// Machine is the machine after the transition
	Machine() Machine
}

var initialHandler = HandlerFunc(func(Metadata) error {
	return nil
})

type metadata struct {
	msg     service.DIDCommMsgMap
	machine Machine
}

func (md *metadata) Message() service.DIDCommMsgMap { return md.msg }

func (md *metadata) StateName() string { return md.machine.StateName() }

func (md *metadata) Machine() Machine { return md.machine }
