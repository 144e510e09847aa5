/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package did holds the DID document model exchanged by the connection protocol and the resolvers for
// the DID methods the protocol core needs to understand (did:key, did:peer numalgo 2).
package did

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

const (
	// ContextV1 is the DID document JSON-LD context.
	ContextV1 = "https://w3id.org/did/v1"

	// Ed25519VerificationKey2018 is the verification method type for ed25519 keys.
	Ed25519VerificationKey2018 = "Ed25519VerificationKey2018"
	// X25519KeyAgreementKey2019 is the verification method type for curve25519 keys.
	X25519KeyAgreementKey2019 = "X25519KeyAgreementKey2019"
	// Ed25519SignatureAuthentication2018 is the legacy authentication type.
	Ed25519SignatureAuthentication2018 = "Ed25519SignatureAuthentication2018"

	// DIDCommServiceType is the Aries RFC 0067 service type.
	DIDCommServiceType = "did-communication"
	// LegacyServiceType is the service type used by Indy based agents.
	LegacyServiceType = "IndyAgent"
	// DIDCommMessagingServiceType is the DIDComm v2 service type.
	DIDCommMessagingServiceType = "DIDCommMessaging"

	legacyServiceIDSuffix = ";indy"
)

var (
	// ErrNotFound is returned when a DID cannot be resolved.
	ErrNotFound = errors.New("did not found")
	// ErrUnsupportedMethod is returned for DID methods no resolver handles.
	ErrUnsupportedMethod = errors.New("unsupported did method")
	// ErrNoKeyAgreement is returned when a document lists no key agreement method.
	ErrNoKeyAgreement = errors.New("did document has no key agreement method")
)

// Doc is a DID document, in the shape used by Aries connections/1.0 and by resolved peer DIDs.
type Doc struct {
	Context            string               `json:"@context,omitempty"`
	ID                 string               `json:"id"`
	PublicKey          []VerificationMethod `json:"publicKey,omitempty"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	Authentication     []Authentication     `json:"authentication,omitempty"`
	KeyAgreement       []VerificationMethod `json:"keyAgreement,omitempty"`
	Service            []Service            `json:"service,omitempty"`
}

// VerificationMethod is a public key entry of a DID document.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller,omitempty"`
	PublicKeyBase58    string `json:"publicKeyBase58,omitempty"`
	PublicKeyMultibase string `json:"publicKeyMultibase,omitempty"`
}

// Authentication is the legacy authentication reference.
type Authentication struct {
	Type      string `json:"type"`
	PublicKey string `json:"publicKey"`
}

// Service is a DIDComm service endpoint entry.
type Service struct {
	ID              string   `json:"id"`
	Type            string   `json:"type"`
	Priority        int      `json:"priority,omitempty"`
	RecipientKeys   []string `json:"recipientKeys,omitempty"`
	RoutingKeys     []string `json:"routingKeys,omitempty"`
	ServiceEndpoint string   `json:"serviceEndpoint"`
	Accept          []string `json:"accept,omitempty"`
}

// NewLegacyDoc builds the DID document an agent discloses in a connections/1.0 request or response.
func NewLegacyDoc(did, verkey, endpoint string, routingKeys []string) *Doc {
	return &Doc{
		Context: ContextV1,
		ID:      did,
		PublicKey: []VerificationMethod{{
			ID:              did + "#1",
			Type:            Ed25519VerificationKey2018,
			Controller:      did,
			PublicKeyBase58: verkey,
		}},
		Authentication: []Authentication{{
			Type:      Ed25519SignatureAuthentication2018,
			PublicKey: did + "#1",
		}},
		Service: []Service{{
			ID:              did + legacyServiceIDSuffix,
			Type:            LegacyServiceType,
			RecipientKeys:   []string{verkey},
			RoutingKeys:     routingKeys,
			ServiceEndpoint: endpoint,
		}},
	}
}

// LookupService returns the first service of the given type.
func LookupService(doc *Doc, serviceType string) (*Service, bool) {
	if doc == nil {
		return nil, false
	}

	for i := range doc.Service {
		if doc.Service[i].Type == serviceType {
			return &doc.Service[i], true
		}
	}

	return nil, false
}

// LookupDIDCommService returns the first DIDComm service, in RFC 0067, v2 or Indy flavour.
func LookupDIDCommService(doc *Doc) (*Service, bool) {
	for _, t := range []string{DIDCommServiceType, DIDCommMessagingServiceType, LegacyServiceType} {
		if s, ok := LookupService(doc, t); ok {
			return s, true
		}
	}

	return nil, false
}

// RecipientVerkey returns the first recipient key of the DIDComm service, as a raw base58 verkey.
func (d *Doc) RecipientVerkey() (string, error) {
	s, ok := LookupDIDCommService(d)
	if !ok || len(s.RecipientKeys) == 0 {
		if len(d.PublicKey) > 0 && d.PublicKey[0].PublicKeyBase58 != "" {
			return d.PublicKey[0].PublicKeyBase58, nil
		}

		return "", fmt.Errorf("did doc %s: no recipient key", d.ID)
	}

	return ToVerkey(s.RecipientKeys[0])
}

// FirstKeyAgreement returns the raw public key of the first key agreement verification method.
func (d *Doc) FirstKeyAgreement() (*VerificationMethod, []byte, error) {
	if len(d.KeyAgreement) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoKeyAgreement, d.ID)
	}

	vm := d.KeyAgreement[0]

	raw, err := vm.RawKey()
	if err != nil {
		return nil, nil, err
	}

	return &vm, raw, nil
}

// RawKey decodes the public key material of the method.
func (vm *VerificationMethod) RawKey() ([]byte, error) {
	switch {
	case vm.PublicKeyBase58 != "":
		return base58.Decode(vm.PublicKeyBase58), nil
	case vm.PublicKeyMultibase != "":
		_, raw, err := decodeMultikey(vm.PublicKeyMultibase)

		return raw, err
	default:
		return nil, fmt.Errorf("verification method %s carries no key", vm.ID)
	}
}

// ToVerkey normalises a recipient key reference (raw base58, did:key or did:key URL) to a base58 verkey.
func ToVerkey(key string) (string, error) {
	if !strings.HasPrefix(key, "did:key:") {
		return key, nil
	}

	raw, codec, err := PubKeyFromDIDKey(key)
	if err != nil {
		return "", err
	}

	if codec != ed25519PubCodec {
		return "", fmt.Errorf("did:key %s is not an ed25519 key", key)
	}

	return base58.Encode(raw), nil
}

// Method returns the method name of a DID, e.g. "peer" for did:peer:2...
func Method(did string) (string, error) {
	parts := strings.SplitN(did, ":", 3) //nolint:gomnd
	if len(parts) < 3 || parts[0] != "did" || parts[1] == "" || parts[2] == "" { //nolint:gomnd
		return "", fmt.Errorf("invalid did %q", did)
	}

	return parts[1], nil
}
