/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcutil/base58"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/legacyconnection"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/outofband"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/trustping"
	"github.com/hyperledger/aries-didcomm-go/pkg/doc/did"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
)

var (
	// ErrConnectionNotFound is returned for messages on threads bound to no known connection.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrConnectionNotReady is returned when the counterparty of a connection is not known yet.
	ErrConnectionNotReady = errors.New("connection not ready")
)

// Connections creates and accepts invitations and keeps track of which connection every protocol
// thread runs over. A connection is named by the thread of its connection protocol instance, the
// request @id, which both sides share.
type Connections struct {
	a *Agent

	mu sync.RWMutex
	// byKey maps the pairwise verkey this agent disclosed to the connection.
	byKey map[string]string
	// threads maps protocol threads to the connection they run over.
	threads map[string]string
	// attached holds the messages of accepted out-of-band invitations until their connection completes.
	attached map[string]service.DIDCommMsgMap
}

var _ interface {
	ConnectionID(myKey, theirKey string) string
	Destination(ctx context.Context, connectionID string,
		res *dispatcher.Result) (*service.Destination, string, error)
} = (*Connections)(nil)

func newConnections(a *Agent) *Connections {
	return &Connections{
		a:        a,
		byKey:    map[string]string{},
		threads:  map[string]string{},
		attached: map[string]service.DIDCommMsgMap{},
	}
}

// CreateInvitation creates a connections/1.0 invitation.
func (c *Connections) CreateInvitation(label string) (*legacyconnection.Invitation, error) {
	return c.a.connectionSvc.CreateInvitation(label)
}

// CreateOOBInvitation creates an out-of-band invitation whose inline service offers connections/1.0 with
// a fresh did:key recipient. opts may attach a credential offer or a presentation request.
func (c *Connections) CreateOOBInvitation(label string,
	opts ...outofband.InvitationOption) (*outofband.Invitation, error) {
	key, err := c.a.wallet.CreateKey()
	if err != nil {
		return nil, fmt.Errorf("create invitation key: %w", err)
	}

	didKey, _ := did.CreateDIDKey(base58.Decode(key))
	endpoint, routingKeys := c.a.connectionSvc.Routing()

	opts = append([]outofband.InvitationOption{
		outofband.WithLabel(label),
		outofband.WithHandshakeProtocols(outofband.ConnectionsProtocol),
		outofband.WithInlineService([]string{didKey}, routingKeys, endpoint),
	}, opts...)

	inv, err := c.a.oobSvc.CreateInvitation(opts...)
	if err != nil {
		return nil, err
	}

	err = c.a.connectionSvc.SaveInvitation(&legacyconnection.Invitation{
		Type:            legacyconnection.InvitationMsgType,
		ID:              inv.ID,
		Label:           label,
		RecipientKeys:   []string{key},
		ServiceEndpoint: endpoint,
		RoutingKeys:     routingKeys,
	}, key)
	if err != nil {
		return nil, err
	}

	return inv, nil
}

// AcceptInvitation answers a connections/1.0 invitation with a request and returns the connection id.
func (c *Connections) AcceptInvitation(ctx context.Context, inv *legacyconnection.Invitation,
	label string) (string, error) {
	msg, err := service.NewDIDCommMsgMap(inv)
	if err != nil {
		return "", err
	}

	m, _, err := legacyconnection.NewInvitee().Handle(msg, nil)
	if err != nil {
		return "", err
	}

	return c.accept(ctx, m, label)
}

// AcceptOOBInvitation stores inv and answers it with a connection request over the first usable service.
// A message attached to the invitation is applied once the connection completes.
func (c *Connections) AcceptOOBInvitation(ctx context.Context, inv *outofband.Invitation,
	label string) (string, error) {
	raw, err := json.Marshal(inv)
	if err != nil {
		return "", fmt.Errorf("marshal invitation: %w", err)
	}

	if inv, err = c.a.oobSvc.ReceiveInvitation(raw); err != nil {
		return "", err
	}

	attached, err := inv.ExtractAttachedMessage()
	if err != nil {
		return "", err
	}

	recipient, err := outofband.ResolveRecipient(ctx, inv, c.a.resolver)
	if err != nil {
		return "", err
	}

	m, err := legacyconnection.NewInvitee().ReceiveOOBInvitation(inv.ID, inv.Label, recipient.Destination())
	if err != nil {
		return "", err
	}

	accepted, req, err := c.a.connectionSvc.AcceptInvitation(m, label)
	if err != nil {
		return "", err
	}

	if attached != nil {
		c.mu.Lock()
		c.attached[req.ID] = attached
		c.mu.Unlock()
	}

	if err = c.a.oobSvc.SetConnection(inv.ID, req.ID); err != nil {
		return "", err
	}

	return req.ID, c.request(ctx, accepted, req)
}

func (c *Connections) accept(ctx context.Context, m legacyconnection.Machine, label string) (string, error) {
	accepted, req, err := c.a.connectionSvc.AcceptInvitation(m, label)
	if err != nil {
		return "", err
	}

	return req.ID, c.request(ctx, accepted, req)
}

// request registers the accepted connection before the request goes out: the response may arrive
// before the send returns.
func (c *Connections) request(ctx context.Context, m legacyconnection.Machine, req *legacyconnection.Request) error {
	if err := c.a.cache.Add(m.ThreadID(), m); err != nil {
		return err
	}

	c.index(m.ThreadID(), m)

	msg, err := service.NewDIDCommMsgMap(req)
	if err != nil {
		return err
	}

	return c.a.send(ctx, m.ThreadID(), m, msg)
}

// Connection returns the connection instance named id.
func (c *Connections) Connection(id string) (legacyconnection.Machine, error) {
	rec, err := c.a.cache.Get(id)
	if err != nil {
		if errors.Is(err, instance.ErrNotFound) {
			return legacyconnection.Machine{}, fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
		}

		return legacyconnection.Machine{}, err
	}

	m, ok := rec.(legacyconnection.Machine)
	if !ok {
		return legacyconnection.Machine{}, fmt.Errorf("%w: %s is a %s instance", ErrConnectionNotFound, id,
			rec.Protocol())
	}

	return m, nil
}

// State returns the state of the connection on threadID.
func (c *Connections) State(threadID string) (legacyconnection.State, error) {
	m, err := c.Connection(threadID)
	if err != nil {
		return "", err
	}

	return m.State(), nil
}

// Ping sends a trust ping asking for a response over connectionID and returns its thread.
func (c *Connections) Ping(ctx context.Context, connectionID, comment string) (string, error) {
	m, ping, err := trustping.NewSender().SendPing(comment)
	if err != nil {
		return "", err
	}

	if err = c.a.cache.Add(m.ThreadID(), m); err != nil {
		return "", err
	}

	return m.ThreadID(), c.a.send(ctx, connectionID, m, service.MustDIDCommMsgMap(ping))
}

// PingState returns the state of the trust ping on threadID.
func (c *Connections) PingState(threadID string) (trustping.State, error) {
	rec, err := c.a.cache.Get(threadID)
	if err != nil {
		return "", err
	}

	m, ok := rec.(trustping.Machine)
	if !ok {
		return "", fmt.Errorf("%s is a %s instance", threadID, rec.Protocol())
	}

	return m.State(), nil
}

// ConnectionID returns the connection myKey was disclosed on.
func (c *Connections) ConnectionID(myKey, _ string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.byKey[myKey]
}

// Destination returns where the outbound messages of res go. Connection protocol messages go to what the
// instance itself knows of the counterparty; other protocols go over the connection of their thread.
func (c *Connections) Destination(_ context.Context, connectionID string,
	res *dispatcher.Result) (*service.Destination, string, error) {
	if res.Protocol == legacyconnection.ProtocolName {
		m, ok := res.Record.(legacyconnection.Machine)
		if !ok {
			return nil, "", fmt.Errorf("unexpected connection record %T", res.Record)
		}

		return counterparty(m)
	}

	id := c.connectionOf(res.ThreadID, connectionID)
	if id == "" {
		return nil, "", fmt.Errorf("%w: thread %s", ErrConnectionNotFound, res.ThreadID)
	}

	m, err := c.Connection(id)
	if err != nil {
		return nil, "", err
	}

	return counterparty(m)
}

func counterparty(m legacyconnection.Machine) (*service.Destination, string, error) {
	if m.Me().Verkey == "" {
		return nil, "", fmt.Errorf("%w: %s has no pairwise key", ErrConnectionNotReady, m.ThreadID())
	}

	if doc := m.TheirDIDDoc(); doc != nil {
		dest, err := service.CreateDestination(doc)
		if err != nil {
			return nil, "", err
		}

		return dest, m.Me().Verkey, nil
	}

	if dest := m.InvitationDestination(); dest != nil {
		return dest, m.Me().Verkey, nil
	}

	return nil, "", fmt.Errorf("%w: %s", ErrConnectionNotReady, m.ThreadID())
}

func (c *Connections) connectionOf(threadID, connectionID string) string {
	if connectionID != "" {
		return connectionID
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.threads[threadID]
}

func (c *Connections) bind(threadID, connectionID string) {
	if threadID == "" || connectionID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.threads[threadID]; !ok {
		c.threads[threadID] = connectionID
	}
}

func (c *Connections) index(connectionID string, m legacyconnection.Machine) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.threads[connectionID] = connectionID

	if key := m.Me().Verkey; key != "" {
		c.byKey[key] = connectionID
	}
}

// observe follows routed messages: connection instances are indexed by the key they disclose, and other
// threads are bound to the connection they arrived on.
func (c *Connections) observe(ctx context.Context, connectionID string, res *dispatcher.Result) {
	if res.Protocol != legacyconnection.ProtocolName {
		c.bind(res.ThreadID, connectionID)

		return
	}

	m, ok := res.Record.(legacyconnection.Machine)
	if !ok {
		return
	}

	c.index(res.ThreadID, m)

	if m.State() == legacyconnection.StateCompleted {
		c.completed(ctx, res.ThreadID, m)
	}
}

func (c *Connections) completed(ctx context.Context, connectionID string, m legacyconnection.Machine) {
	logger.Infof("connection %s with %q completed", connectionID, m.TheirLabel())

	if m.Role() == legacyconnection.RoleInviter {
		err := c.a.oobSvc.SetConnection(m.InvitationID(), connectionID)
		if err != nil && !errors.Is(err, outofband.ErrRecordNotFound) {
			logger.Warnf("connection %s: record out-of-band invitation: %s", connectionID, err)
		}
	}

	c.mu.Lock()
	msg, ok := c.attached[connectionID]
	delete(c.attached, connectionID)
	c.mu.Unlock()

	if !ok {
		return
	}

	if err := c.a.route(ctx, connectionID, msg); err != nil {
		logger.Warnf("connection %s: attached %s: %s", connectionID, msg.Type(), err)
	}
}
