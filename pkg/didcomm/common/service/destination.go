/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcutil/base58"

	"github.com/hyperledger/aries-didcomm-go/pkg/doc/did"
)

// Destination provides the recipientKeys, routingKeys, and serviceEndpoint for an outbound message.
// Keys are raw base58 verkeys.
type Destination struct {
	RecipientKeys   []string
	ServiceEndpoint string
	RoutingKeys     []string
}

// GetDestination constructs a Destination by resolving the given DID.
func GetDestination(ctx context.Context, id string, resolver did.Resolver) (*Destination, error) {
	doc, err := resolver.Resolve(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getDestination: failed to resolve did [%s] : %w", id, err)
	}

	return CreateDestination(doc)
}

// CreateDestination makes a DIDComm Destination object from a DID Doc as per the DIDComm service conventions:
// https://github.com/hyperledger/aries-rfcs/blob/master/features/0067-didcomm-diddoc-conventions/README.md.
func CreateDestination(didDoc *did.Doc) (*Destination, error) {
	didCommService, ok := did.LookupDIDCommService(didDoc)
	if !ok {
		return nil, fmt.Errorf("create destination: missing DID doc service")
	}

	if didCommService.ServiceEndpoint == "" {
		return nil, fmt.Errorf("create destination: no service endpoint on didcomm service block in diddoc: %s",
			didDoc.ID)
	}

	if len(didCommService.RecipientKeys) == 0 {
		return nil, fmt.Errorf("create destination: no recipient keys on didcomm service block in diddoc: %s",
			didDoc.ID)
	}

	recipientKeys, err := toVerkeys(didDoc, didCommService.RecipientKeys)
	if err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	routingKeys, err := toVerkeys(didDoc, didCommService.RoutingKeys)
	if err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	return &Destination{
		RecipientKeys:   recipientKeys,
		ServiceEndpoint: didCommService.ServiceEndpoint,
		RoutingKeys:     routingKeys,
	}, nil
}

// toVerkeys converts service keys (raw base58, did:key, or a relative reference to a verification
// method of the same document) into raw base58 verkeys.
func toVerkeys(doc *did.Doc, keys []string) ([]string, error) {
	var out []string

	for _, key := range keys {
		if key != "" && key[0] == '#' {
			vk, err := resolveRelativeKey(doc, key)
			if err != nil {
				return nil, err
			}

			out = append(out, vk)

			continue
		}

		vk, err := did.ToVerkey(key)
		if err != nil {
			return nil, err
		}

		out = append(out, vk)
	}

	return out, nil
}

func resolveRelativeKey(doc *did.Doc, ref string) (string, error) {
	methods := append(append([]did.VerificationMethod{}, doc.VerificationMethod...), doc.PublicKey...)

	for _, vm := range methods {
		if vm.ID == ref || vm.ID == doc.ID+ref {
			raw, err := vm.RawKey()
			if err != nil {
				return "", err
			}

			return base58.Encode(raw), nil
		}
	}

	// did:peer:2 services reference key agreement keys; the recipient is the first authentication key
	for _, vm := range doc.KeyAgreement {
		if (vm.ID == ref || vm.ID == doc.ID+ref) && len(doc.VerificationMethod) > 0 {
			raw, err := doc.VerificationMethod[0].RawKey()
			if err != nil {
				return "", err
			}

			return base58.Encode(raw), nil
		}
	}

	return "", fmt.Errorf("key reference %s not found in %s", ref, doc.ID)
}
