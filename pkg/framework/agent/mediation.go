/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"context"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
)

// Mediation asks a mediator, reached over a completed connection, to route for this agent. Once it grants
// mediation, new invitations and DID docs advertise its endpoint and routing keys.
type Mediation struct {
	a *Agent
}

// Request sends a mediate-request over connectionID. The grant may arrive on the reply to the request.
func (m *Mediation) Request(ctx context.Context, connectionID string) error {
	req := m.a.mediation.Request()

	return m.send(ctx, connectionID, req.ID, req)
}

// AddKeys registers keys with the mediator on connectionID, so that it queues what is forwarded to them.
func (m *Mediation) AddKeys(ctx context.Context, connectionID string, keys ...string) error {
	update := m.a.mediation.KeylistUpdate(mediator.ActionAdd, keys...)

	return m.send(ctx, connectionID, update.ID, update)
}

// RemoveKeys unregisters keys with the mediator on connectionID.
func (m *Mediation) RemoveKeys(ctx context.Context, connectionID string, keys ...string) error {
	update := m.a.mediation.KeylistUpdate(mediator.ActionRemove, keys...)

	return m.send(ctx, connectionID, update.ID, update)
}

// Config returns the router configuration of the mediator that granted mediation.
func (m *Mediation) Config() (*mediator.Config, bool) {
	return m.a.mediation.Config()
}

func (m *Mediation) send(ctx context.Context, connectionID, thID string, msg interface{}) error {
	out, err := service.NewDIDCommMsgMap(msg)
	if err != nil {
		return err
	}

	return m.a.inbound.Send(ctx, connectionID, &dispatcher.Result{
		ThreadID: thID,
		Protocol: mediator.Coordination,
		Outbound: []service.DIDCommMsgMap{out},
	})
}
