/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package did

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	peer2Prefix = "did:peer:2"

	purposeKeyAgreement   = 'E'
	purposeAuthentication = 'V'
	purposeService        = 'S'
)

// peerService is the abbreviated service encoding of did:peer:2.
type peerService struct {
	Type        string   `json:"t"`
	Endpoint    string   `json:"s"`
	RoutingKeys []string `json:"r,omitempty"`
	Accept      []string `json:"a,omitempty"`
}

// CreatePeer2 builds a did:peer:2 from curve25519 agreement keys, ed25519 authentication keys and an
// optional DIDComm service.
func CreatePeer2(agreementKeys, authKeys [][]byte, service *Service) (string, error) {
	var sb strings.Builder

	sb.WriteString(peer2Prefix)

	for _, k := range agreementKeys {
		sb.WriteString(".")
		sb.WriteRune(purposeKeyAgreement)
		sb.WriteString(encodeMultikey(k, x25519PubCodec))
	}

	for _, k := range authKeys {
		sb.WriteString(".")
		sb.WriteRune(purposeAuthentication)
		sb.WriteString(encodeMultikey(k, ed25519PubCodec))
	}

	if service != nil {
		t := service.Type
		if t == DIDCommMessagingServiceType {
			t = "dm"
		}

		raw, err := json.Marshal(peerService{
			Type:        t,
			Endpoint:    service.ServiceEndpoint,
			RoutingKeys: service.RoutingKeys,
			Accept:      service.Accept,
		})
		if err != nil {
			return "", fmt.Errorf("encode peer service: %w", err)
		}

		sb.WriteString(".")
		sb.WriteRune(purposeService)
		sb.WriteString(base64.RawURLEncoding.EncodeToString(raw))
	}

	return sb.String(), nil
}

// peerResolver resolves did:peer numalgo 2 DIDs without any network access.
type peerResolver struct{}

func (peerResolver) resolve(did string) (*Doc, error) {
	if !strings.HasPrefix(did, peer2Prefix+".") {
		return nil, fmt.Errorf("%w: only did:peer:2 is supported, got %q", ErrUnsupportedMethod, did)
	}

	doc := &Doc{Context: ContextV1, ID: did}
	keyIndex := 0
	serviceIndex := 0

	for _, element := range strings.Split(strings.TrimPrefix(did, peer2Prefix+"."), ".") {
		if len(element) < 2 { //nolint:gomnd
			return nil, fmt.Errorf("did:peer:2 %q: malformed element %q", did, element)
		}

		purpose, value := element[0], element[1:]

		switch purpose {
		case purposeKeyAgreement, purposeAuthentication:
			codec, _, err := decodeMultikey(value)
			if err != nil {
				return nil, fmt.Errorf("did:peer:2 %q: %w", did, err)
			}

			keyIndex++
			vm := VerificationMethod{
				ID:                 fmt.Sprintf("#key-%d", keyIndex),
				Controller:         did,
				PublicKeyMultibase: value,
			}

			if purpose == purposeKeyAgreement {
				if codec != x25519PubCodec {
					return nil, fmt.Errorf("did:peer:2 %q: key agreement key must be X25519", did)
				}

				vm.Type = X25519KeyAgreementKey2019
				doc.KeyAgreement = append(doc.KeyAgreement, vm)

				continue
			}

			vm.Type = Ed25519VerificationKey2018
			doc.VerificationMethod = append(doc.VerificationMethod, vm)
			doc.Authentication = append(doc.Authentication, Authentication{
				Type: Ed25519SignatureAuthentication2018, PublicKey: vm.ID,
			})
		case purposeService:
			svc, err := decodePeerService(value)
			if err != nil {
				return nil, fmt.Errorf("did:peer:2 %q: %w", did, err)
			}

			svc.ID = "#didcommmessaging-" + fmt.Sprint(serviceIndex)
			serviceIndex++

			for _, ka := range doc.KeyAgreement {
				svc.RecipientKeys = append(svc.RecipientKeys, ka.ID)
			}

			doc.Service = append(doc.Service, *svc)
		default:
			// other purposes (assertion, invocation, delegation) carry nothing this core uses
		}
	}

	return doc, nil
}

func decodePeerService(value string) (*Service, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
	if err != nil {
		return nil, fmt.Errorf("decode service: %w", err)
	}

	var ps peerService

	if err = json.Unmarshal(raw, &ps); err != nil {
		return nil, fmt.Errorf("unmarshal service: %w", err)
	}

	t := ps.Type
	if t == "dm" {
		t = DIDCommMessagingServiceType
	}

	return &Service{Type: t, ServiceEndpoint: ps.Endpoint, RoutingKeys: ps.RoutingKeys, Accept: ps.Accept}, nil
}
