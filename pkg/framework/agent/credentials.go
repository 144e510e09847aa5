/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"context"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/issuecredential"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/presentproof"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
)

// Issuer offers and issues credentials.
type Issuer struct {
	a *Agent
}

// Offer starts an issuance on connectionID and returns its thread.
func (i *Issuer) Offer(ctx context.Context, connectionID string, preview issuecredential.PreviewCredential,
	offer []byte, rev issuecredential.RevocationInfo) (string, error) {
	m, msg, err := i.a.issuanceSvc.SendOffer(ctx, "", preview, offer, rev)
	if err != nil {
		return "", err
	}

	return m.ThreadID(), i.a.send(ctx, connectionID, m, msg)
}

// PrepareOffer starts an issuance without sending the offer, to be attached to an out-of-band
// invitation.
func (i *Issuer) PrepareOffer(ctx context.Context, preview issuecredential.PreviewCredential, offer []byte,
	rev issuecredential.RevocationInfo) (string, service.DIDCommMsgMap, error) {
	m, msg, err := i.a.issuanceSvc.SendOffer(ctx, "", preview, offer, rev)
	if err != nil {
		return "", nil, err
	}

	return m.ThreadID(), msg, nil
}

// AcceptProposal answers the proposal received on thID with an offer.
func (i *Issuer) AcceptProposal(ctx context.Context, thID string, preview issuecredential.PreviewCredential,
	offer []byte, rev issuecredential.RevocationInfo) error {
	return i.a.act(ctx, thID, func() (instance.Record, service.DIDCommMsgMap, error) {
		return i.a.issuanceSvc.SendOffer(ctx, thID, preview, offer, rev)
	})
}

// Issue answers the request received on thID with the credential.
func (i *Issuer) Issue(ctx context.Context, thID string, credential []byte, credRevID string) error {
	return i.a.act(ctx, thID, func() (instance.Record, service.DIDCommMsgMap, error) {
		return i.a.issuanceSvc.SendCredential(ctx, thID, credential, credRevID)
	})
}

// Get returns the issuance on thID.
func (i *Issuer) Get(thID string) (issuecredential.Machine, error) {
	return i.a.issuanceSvc.Get(thID)
}

// Holder proposes, requests and receives credentials.
type Holder struct {
	a *Agent
}

// Propose starts an issuance on connectionID with a proposal and returns its thread.
func (h *Holder) Propose(ctx context.Context, connectionID string, p issuecredential.ProposeCredential) (string,
	error) {
	m, msg, err := h.a.issuanceSvc.SendProposal(ctx, "", p)
	if err != nil {
		return "", err
	}

	return m.ThreadID(), h.a.send(ctx, connectionID, m, msg)
}

// Request requests the credential offered on thID.
func (h *Holder) Request(ctx context.Context, thID string, request []byte) error {
	return h.a.act(ctx, thID, func() (instance.Record, service.DIDCommMsgMap, error) {
		return h.a.issuanceSvc.SendRequest(ctx, thID, request)
	})
}

// Decline rejects the offer received on thID.
func (h *Holder) Decline(ctx context.Context, thID, reason string) error {
	return h.a.act(ctx, thID, func() (instance.Record, service.DIDCommMsgMap, error) {
		return h.a.issuanceSvc.Decline(ctx, thID, reason)
	})
}

// Get returns the issuance on thID.
func (h *Holder) Get(thID string) (issuecredential.Machine, error) {
	return h.a.issuanceSvc.Get(thID)
}

// Verifier requests and verifies presentations.
type Verifier struct {
	a *Agent
}

// Request starts an exchange on connectionID with a presentation request and returns its thread.
func (v *Verifier) Request(ctx context.Context, connectionID string, request []byte) (string, error) {
	m, msg, err := v.a.presentSvc.SendRequest(ctx, "", request)
	if err != nil {
		return "", err
	}

	return m.ThreadID(), v.a.send(ctx, connectionID, m, msg)
}

// PrepareRequest starts an exchange without sending the request, to be attached to an out-of-band
// invitation.
func (v *Verifier) PrepareRequest(ctx context.Context, request []byte) (string, service.DIDCommMsgMap, error) {
	m, msg, err := v.a.presentSvc.SendRequest(ctx, "", request)
	if err != nil {
		return "", nil, err
	}

	return m.ThreadID(), msg, nil
}

// AcceptProposal answers the proposal received on thID with a request.
func (v *Verifier) AcceptProposal(ctx context.Context, thID string, request []byte) error {
	return v.a.act(ctx, thID, func() (instance.Record, service.DIDCommMsgMap, error) {
		return v.a.presentSvc.SendRequest(ctx, thID, request)
	})
}

// Get returns the exchange on thID.
func (v *Verifier) Get(thID string) (presentproof.Machine, error) {
	return v.a.presentSvc.Get(thID)
}

// Prover proposes and sends presentations.
type Prover struct {
	a *Agent
}

// Propose starts an exchange on connectionID with a proposal and returns its thread.
func (p *Prover) Propose(ctx context.Context, connectionID string,
	proposal presentproof.ProposePresentation) (string, error) {
	m, msg, err := p.a.presentSvc.SendProposal(ctx, "", proposal)
	if err != nil {
		return "", err
	}

	return m.ThreadID(), p.a.send(ctx, connectionID, m, msg)
}

// Present answers the request received on thID.
func (p *Prover) Present(ctx context.Context, thID string, presentation []byte) error {
	return p.a.act(ctx, thID, func() (instance.Record, service.DIDCommMsgMap, error) {
		return p.a.presentSvc.SendPresentation(ctx, thID, presentation)
	})
}

// Decline rejects the request received on thID.
func (p *Prover) Decline(ctx context.Context, thID, reason string) error {
	return p.a.act(ctx, thID, func() (instance.Record, service.DIDCommMsgMap, error) {
		return p.a.presentSvc.Decline(ctx, thID, reason)
	})
}

// Get returns the exchange on thID.
func (p *Prover) Get(thID string) (presentproof.Machine, error) {
	return p.a.presentSvc.Get(thID)
}
