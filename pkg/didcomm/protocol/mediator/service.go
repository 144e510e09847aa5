/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/doc/did"
)

var logger = log.New("aries-framework/mediator")

// ErrUnauthenticated is returned for coordinate-mediation messages that did not arrive authcrypted.
var ErrUnauthenticated = errors.New("coordinate-mediation message without sender key")

// Policy decides what happens to a forward for a key no account registered.
type Policy int

const (
	// PolicyQueue queues the message; it becomes visible once an account registers the key.
	PolicyQueue Policy = iota
	// PolicyStrict rejects the message with ErrAccountNotFound.
	PolicyStrict
)

// Service for Route Coordination protocol, mediator side, and for the forwards sent to mediated keys.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0211-route-coordination
type Service struct {
	store       Persistence
	keys        KeyCreator
	endpoint    string
	routingKeys []string
	policy      Policy
	deny        func(ctx context.Context, authPubKey string) bool
	notifier    Notifier
}

// Option configures the Service.
type Option func(s *Service)

// WithRoutingKeys puts keys before the account key in every grant, for mediators that sit behind
// another mediator.
func WithRoutingKeys(keys ...string) Option {
	return func(s *Service) {
		s.routingKeys = keys
	}
}

// WithPolicy sets the policy for forwards to unregistered keys.
func WithPolicy(p Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithDenyPolicy answers mediate-request with mediate-deny whenever deny returns true.
func WithDenyPolicy(deny func(ctx context.Context, authPubKey string) bool) Option {
	return func(s *Service) {
		s.deny = deny
	}
}

// WithNotifier reports queued messages to n, for live delivery.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// New return route coordination service. endpoint is the mediator's inbound endpoint announced in grants.
func New(store Persistence, keys KeyCreator, endpoint string, opts ...Option) *Service {
	s := &Service{store: store, keys: keys, endpoint: endpoint}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Store returns the persistence the service runs on.
func (s *Service) Store() Persistence {
	return s.store
}

// Accept checks whether the service can handle the message type.
func (s *Service) Accept(msgType string) bool {
	mt, err := service.ParseMessageType(msgType)
	if err != nil || mt.Major != 1 {
		return false
	}

	return mt.Family == Coordination || (mt.Family == "routing" && mt.Kind == "forward")
}

// Handle processes msg. senderKey is the verkey the envelope was authenticated with and is empty for
// anoncrypted envelopes, which only forwards may use.
func (s *Service) Handle(ctx context.Context, senderKey string,
	msg service.DIDCommMsgMap) (service.DIDCommMsgMap, error) {
	mt, err := service.ParseMessageType(msg.Type())
	if err != nil {
		return nil, err
	}

	if mt.Family == "routing" {
		return nil, s.handleForward(ctx, msg)
	}

	if senderKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnauthenticated, msg.Type())
	}

	var out interface{}

	switch mt.Kind {
	case "mediate-request":
		out, err = s.handleRequest(ctx, senderKey, msg)
	case "keylist-update":
		out, err = s.handleKeylistUpdate(ctx, senderKey, msg)
	case "keylist-query":
		out, err = s.handleKeylistQuery(ctx, senderKey, msg)
	default:
		logger.Debugf("ignoring %s from %s", msg.Type(), senderKey)

		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return service.NewDIDCommMsgMap(out)
}

func (s *Service) handleRequest(ctx context.Context, senderKey string,
	msg service.DIDCommMsgMap) (interface{}, error) {
	if s.deny != nil && s.deny(ctx, senderKey) {
		deny := &Deny{Type: DenyMsgType, ID: uuid.New().String()}
		deny.SetThread(msg.ID())

		return deny, nil
	}

	details, err := s.account(ctx, senderKey)
	if err != nil {
		return nil, err
	}

	grant := &Grant{
		Type:        GrantMsgType,
		ID:          uuid.New().String(),
		Endpoint:    s.endpoint,
		RoutingKeys: append(append([]string{}, s.routingKeys...), details.OurSigningKey),
	}
	grant.SetThread(msg.ID())

	logger.Debugf("granted mediation %s to %s", details.ID, senderKey)

	return grant, nil
}

// account returns the account of authPubKey, creating it on first request.
func (s *Service) account(ctx context.Context, authPubKey string) (*AccountDetails, error) {
	details, err := s.store.GetAccountDetails(ctx, authPubKey)
	if err == nil {
		return details, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("get account: %w", err)
	}

	key, err := s.keys.CreateKey()
	if err != nil {
		return nil, fmt.Errorf("create mediator key: %w", err)
	}

	err = s.store.CreateAccount(ctx, authPubKey, key, nil)
	if err != nil && !errors.Is(err, ErrAccountExists) {
		return nil, fmt.Errorf("create account: %w", err)
	}

	return s.store.GetAccountDetails(ctx, authPubKey)
}

func (s *Service) handleKeylistUpdate(ctx context.Context, senderKey string,
	msg service.DIDCommMsgMap) (interface{}, error) {
	keyUpdate := &KeylistUpdate{}
	if err := msg.Decode(keyUpdate); err != nil {
		return nil, fmt.Errorf("route key list update message unmarshal : %w", err)
	}

	if _, err := s.store.GetAccountID(ctx, senderKey); err != nil {
		return nil, err
	}

	resp := &KeylistUpdateResponse{
		Type:    KeylistUpdateResponseMsgType,
		ID:      uuid.New().String(),
		Updated: make([]UpdateResponse, 0, len(keyUpdate.Updates)),
	}
	resp.SetThread(msg.ID())

	for _, u := range keyUpdate.Updates {
		resp.Updated = append(resp.Updated, UpdateResponse{
			RecipientKey: u.RecipientKey,
			Action:       u.Action,
			Result:       s.applyUpdate(ctx, senderKey, u),
		})
	}

	return resp, nil
}

func (s *Service) applyUpdate(ctx context.Context, senderKey string, u Update) string {
	key, err := did.ToVerkey(u.RecipientKey)
	if err != nil || key == "" {
		return ResultClientError
	}

	var changed bool

	switch u.Action {
	case ActionAdd:
		changed, err = s.store.AddRecipient(ctx, senderKey, key)
	case ActionRemove:
		changed, err = s.store.RemoveRecipient(ctx, senderKey, key)
	default:
		return ResultClientError
	}

	switch {
	case errors.Is(err, ErrRecipientTaken), errors.Is(err, ErrAccountNotFound):
		return ResultClientError
	case err != nil:
		logger.Errorf("keylist %s %s: %s", u.Action, key, err)

		return ResultServerError
	case !changed:
		return ResultNoChange
	default:
		return ResultSuccess
	}
}

func (s *Service) handleKeylistQuery(ctx context.Context, senderKey string,
	msg service.DIDCommMsgMap) (interface{}, error) {
	query := &KeylistQuery{}
	if err := msg.Decode(query); err != nil {
		return nil, fmt.Errorf("keylist query unmarshal: %w", err)
	}

	keys, err := s.store.ListRecipientKeys(ctx, senderKey)
	if err != nil {
		return nil, err
	}

	offset, limit := 0, len(keys)

	if p := query.Paginate; p != nil {
		offset = min(max(p.Offset, 0), len(keys))

		if p.Limit > 0 {
			limit = p.Limit
		}
	}

	page := keys[offset:min(offset+limit, len(keys))]

	list := &Keylist{
		Type: KeylistMsgType,
		ID:   uuid.New().String(),
		Keys: make([]KeylistKey, 0, len(page)),
		Pagination: &Pagination{
			Count:     len(page),
			Offset:    offset,
			Remaining: len(keys) - offset - len(page),
		},
	}
	list.SetThread(msg.ID())

	for _, k := range page {
		list.Keys = append(list.Keys, KeylistKey{RecipientKey: k})
	}

	return list, nil
}

func (s *Service) handleForward(ctx context.Context, msg service.DIDCommMsgMap) error {
	forward := &model.Forward{}
	if err := msg.Decode(forward); err != nil {
		return fmt.Errorf("forward message unmarshal : %w", err)
	}

	if forward.To == "" || len(forward.Msg) == 0 {
		return fmt.Errorf("forward %s: missing to or msg", forward.ID)
	}

	to, err := did.ToVerkey(forward.To)
	if err != nil {
		return fmt.Errorf("forward %s: %w", forward.ID, err)
	}

	authPubKey, err := s.store.GetRecipientAccount(ctx, to)

	switch {
	case errors.Is(err, ErrAccountNotFound) && s.policy == PolicyStrict:
		return fmt.Errorf("forward to %s: %w", to, err)
	case err != nil && !errors.Is(err, ErrAccountNotFound):
		return fmt.Errorf("forward to %s: %w", to, err)
	}

	queued, err := s.store.PersistForwardMessage(ctx, to, forward.Msg)
	if err != nil {
		return fmt.Errorf("persist forward: %w", err)
	}

	if authPubKey != "" && s.notifier != nil && s.notifier.Notify(ctx, authPubKey, queued) {
		logger.Debugf("pushed %s to %s", queued.ID, to)
	}

	return nil
}
