/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package aries is the root of a DIDComm protocol core for Hyperledger Aries agents and mediators
// (https://www.hyperledger.org/projects/aries).
//
// Packages for end developer usage
//
// pkg/framework/agent: wires wallet, envelope packager, message router, protocol services and transports
// into a single agent. No package keeps global state; every dependency is passed in explicitly.
//
// pkg/didcomm/packager: packs and unpacks DIDComm envelopes, in both the legacy (RFC 0019) and the
// modern JWE layouts, anonymous or authenticated.
//
// pkg/didcomm/protocol/...: the protocol state machines (connections, issue-credential, present-proof,
// out-of-band, trust ping) and the mediator services (coordinate-mediation, routing, message pickup).
//
// cmd/mediator-rest: a store-and-forward mediator daemon.
//
// Basic workflow
//
//	1) Create a wallet and a storage provider.
//	2) Create an agent with agent.New, passing those dependencies as options.
//	3) Feed inbound envelopes to Agent.Receive, or mount the HTTP/WS inbound handlers.
//	4) Drive local protocol actions (invitations, offers, requests) through the agent's services.
package aries
