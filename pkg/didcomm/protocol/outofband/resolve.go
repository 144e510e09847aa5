/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package outofband

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/doc/did"
)

const didKeyPrefix = "did:key:"

// ServiceKey is the recipient an invitation resolves to.
type ServiceKey struct {
	// Key is the base58 key the invitation discloses: an ed25519 verkey for inline services, the
	// X25519 key agreement key for DID services.
	Key string
	// Verkey is the ed25519 verkey to encrypt for.
	Verkey      string
	Endpoint    string
	RoutingKeys []string
}

// Destination returns the packing destination of the resolved service.
func (k *ServiceKey) Destination() *service.Destination {
	return &service.Destination{
		RecipientKeys:   []string{k.Verkey},
		ServiceEndpoint: k.Endpoint,
		RoutingKeys:     k.RoutingKeys,
	}
}

// ResolveRecipient picks the service an invitee talks to. Every service is tried in order within
// each tier, and the tiers are tried in order:
//  1. an inline service whose first recipient key is an ed25519 did:key;
//  2. an inline service whose first recipient key is a raw base58 verkey;
//  3. a DID, resolved with resolver, using its first key agreement method.
func ResolveRecipient(ctx context.Context, inv *Invitation, resolver did.Resolver) (*ServiceKey, error) {
	for _, s := range inv.Services {
		if k, ok := inlineKey(s, true); ok {
			return k, nil
		}
	}

	for _, s := range inv.Services {
		if k, ok := inlineKey(s, false); ok {
			return k, nil
		}
	}

	var lastErr error

	for _, s := range inv.Services {
		if s.Inline != nil || s.DID == "" {
			continue
		}

		k, err := didKey(ctx, s.DID, resolver)
		if err != nil {
			logger.Debugf("invitation %s: skipping service %s: %s", inv.ID, s.DID, err)
			lastErr = err

			continue
		}

		return k, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: no usable service: %v", ErrInvalidInvitation, lastErr)
	}

	return nil, fmt.Errorf("%w: no usable service", ErrInvalidInvitation)
}

func inlineKey(s InvitationService, wantDIDKey bool) (*ServiceKey, bool) {
	if s.Inline == nil || len(s.Inline.RecipientKeys) == 0 || s.Inline.ServiceEndpoint == "" {
		return nil, false
	}

	first := s.Inline.RecipientKeys[0]
	if strings.HasPrefix(first, didKeyPrefix) != wantDIDKey {
		return nil, false
	}

	if !wantDIDKey && strings.HasPrefix(first, "did:") {
		return nil, false
	}

	key, err := did.ToVerkey(first)
	if err != nil || len(base58.Decode(key)) == 0 {
		return nil, false
	}

	routingKeys, err := verkeys(s.Inline.RoutingKeys)
	if err != nil {
		return nil, false
	}

	return &ServiceKey{Key: key, Verkey: key, Endpoint: s.Inline.ServiceEndpoint, RoutingKeys: routingKeys}, true
}

func didKey(ctx context.Context, id string, resolver did.Resolver) (*ServiceKey, error) {
	if resolver == nil {
		return nil, fmt.Errorf("no resolver for %s", id)
	}

	doc, err := resolver.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	_, raw, err := doc.FirstKeyAgreement()
	if err != nil {
		return nil, err
	}

	dest, err := service.CreateDestination(doc)
	if err != nil {
		return nil, err
	}

	return &ServiceKey{
		Key:         base58.Encode(raw),
		Verkey:      dest.RecipientKeys[0],
		Endpoint:    dest.ServiceEndpoint,
		RoutingKeys: dest.RoutingKeys,
	}, nil
}

func verkeys(keys []string) ([]string, error) {
	out := make([]string, 0, len(keys))

	for _, k := range keys {
		v, err := did.ToVerkey(k)
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}
