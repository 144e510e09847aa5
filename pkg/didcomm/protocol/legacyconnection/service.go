/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package legacyconnection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/doc/did"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
	"github.com/hyperledger/aries-didcomm-go/pkg/wallet"
)

// InvitationStoreName is the spi store holding the invitations this agent created.
const InvitationStoreName = "connection_invitations"

// ErrInvitationNotFound is returned for requests that answer no invitation of this agent.
var ErrInvitationNotFound = errors.New("invitation not found")

type invitationRecord struct {
	Invitation *Invitation `json:"invitation"`
	Key        string      `json:"key"`
}

// Service runs the connection protocol for one agent: it keeps the invitations the agent created and
// creates the pairwise identities it discloses.
type Service struct {
	wallet     wallet.Wallet
	store      storage.Store
	requestAck bool

	mu          sync.RWMutex
	endpoint    string
	routingKeys []string
}

// Option configures the Service.
type Option func(s *Service)

// WithRoutingKeys sets the routing keys of the agent's mediator, advertised in invitations and DID docs.
func WithRoutingKeys(keys ...string) Option {
	return func(s *Service) {
		s.routingKeys = keys
	}
}

// WithoutAckRequest makes the inviter leave ~please_ack off its responses, so invitees answer with a
// trust ping.
func WithoutAckRequest() Option {
	return func(s *Service) {
		s.requestAck = false
	}
}

// New creates the connection service. endpoint is the agent's inbound service endpoint.
func New(provider storage.Provider, w wallet.Wallet, endpoint string, opts ...Option) (*Service, error) {
	store, err := provider.OpenStore(InvitationStoreName)
	if err != nil {
		return nil, fmt.Errorf("open invitation store: %w", err)
	}

	s := &Service{wallet: w, store: store, endpoint: endpoint, requestAck: true}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// SetRouting replaces the endpoint and routing keys advertised from now on, as when a mediator granted
// mediation. Invitations and identities created earlier keep what they advertised.
func (s *Service) SetRouting(endpoint string, routingKeys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endpoint, s.routingKeys = endpoint, routingKeys
}

// Routing returns the advertised endpoint and routing keys.
func (s *Service) Routing() (string, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.endpoint, s.routingKeys
}

// CreateInvitation creates a connections/1.0 invitation with a fresh recipient key.
func (s *Service) CreateInvitation(label string) (*Invitation, error) {
	key, err := s.wallet.CreateKey()
	if err != nil {
		return nil, fmt.Errorf("create invitation key: %w", err)
	}

	endpoint, routingKeys := s.Routing()

	inv := &Invitation{
		Type:            InvitationMsgType,
		ID:              uuid.New().String(),
		Label:           label,
		RecipientKeys:   []string{key},
		ServiceEndpoint: endpoint,
		RoutingKeys:     routingKeys,
	}

	if err = s.SaveInvitation(inv, key); err != nil {
		return nil, err
	}

	return inv, nil
}

// SaveInvitation records an invitation created elsewhere, like an out-of-band invitation, so that
// requests answering it are accepted. key is the ed25519 verkey that signs the responses.
func (s *Service) SaveInvitation(inv *Invitation, key string) error {
	raw, err := json.Marshal(invitationRecord{Invitation: inv, Key: key})
	if err != nil {
		return fmt.Errorf("marshal invitation: %w", err)
	}

	if err = s.store.Put(inv.ID, raw); err != nil {
		return fmt.Errorf("store invitation: %w", err)
	}

	return nil
}

// Invitation returns a stored invitation and its signing key.
func (s *Service) Invitation(id string) (*Invitation, string, error) {
	raw, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, "", fmt.Errorf("%w: %s", ErrInvitationNotFound, id)
		}

		return nil, "", fmt.Errorf("get invitation: %w", err)
	}

	rec := invitationRecord{}
	if err = json.Unmarshal(raw, &rec); err != nil {
		return nil, "", fmt.Errorf("unmarshal invitation: %w", err)
	}

	return rec.Invitation, rec.Key, nil
}

// NewIdentity creates a pairwise DID and the legacy DID doc disclosing it.
func (s *Service) NewIdentity() (Identity, error) {
	myDID, verkey, err := s.wallet.CreateDID(nil)
	if err != nil {
		return Identity{}, fmt.Errorf("create pairwise did: %w", err)
	}

	endpoint, routingKeys := s.Routing()

	return Identity{
		DID:    myDID,
		Verkey: verkey,
		Doc:    did.NewLegacyDoc(myDID, verkey, endpoint, routingKeys),
	}, nil
}

// AcceptInvitation accepts the invitation held by an invited machine with a new pairwise identity.
func (s *Service) AcceptInvitation(m Machine, label string) (Machine, *Request, error) {
	me, err := s.NewIdentity()
	if err != nil {
		return m, nil, err
	}

	return m.Accept(label, me)
}

// Protocol returns the family name.
func (s *Service) Protocol() string { return ProtocolName }

// Initiates reports whether kind starts a new connection: an invitation for the invitee, a request
// for the inviter.
func (s *Service) Initiates(kind string) bool {
	return Kind(kind) == KindInvitation || Kind(kind) == KindRequest
}

// New creates the machine an initiating message starts.
func (s *Service) New(msg service.DIDCommMsgMap) (instance.Record, error) {
	if Classify(msg) != KindRequest {
		return NewInvitee(), nil
	}

	inv, key, err := s.Invitation(msg.ParentThreadID())
	if err != nil {
		return nil, err
	}

	me, err := s.NewIdentity()
	if err != nil {
		return nil, err
	}

	return NewInviter(me, s.requestAck).Invite(inv, key)
}

// Handle applies msg to rec.
func (s *Service) Handle(_ context.Context, rec instance.Record,
	msg service.DIDCommMsgMap) (instance.Record, []service.DIDCommMsgMap, error) {
	m, ok := rec.(Machine)
	if !ok {
		return rec, nil, fmt.Errorf("connection: unexpected record %T", rec)
	}

	next, out, err := m.Handle(msg, s.wallet)
	if err != nil || out == nil {
		return next, nil, err
	}

	return next, []service.DIDCommMsgMap{out}, nil
}
