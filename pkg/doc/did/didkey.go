/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package did

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"

	"github.com/hyperledger/aries-didcomm-go/pkg/internal/cryptoutil"
)

const (
	ed25519PubCodec = uint64(0xed)
	x25519PubCodec  = uint64(0xec)

	didKeyPrefix = "did:key:"
)

// CreateDIDKey builds a did:key from a raw ed25519 public key. It returns the DID and the key id URL.
func CreateDIDKey(pub []byte) (string, string) {
	return createMultikeyDID(pub, ed25519PubCodec)
}

// CreateX25519DIDKey builds a did:key from a raw curve25519 public key.
func CreateX25519DIDKey(pub []byte) (string, string) {
	return createMultikeyDID(pub, x25519PubCodec)
}

func createMultikeyDID(pub []byte, codec uint64) (string, string) {
	fp := encodeMultikey(pub, codec)
	did := didKeyPrefix + fp

	return did, did + "#" + fp
}

// PubKeyFromDIDKey decodes the raw key and its multicodec from a did:key or did:key URL.
func PubKeyFromDIDKey(didKey string) ([]byte, uint64, error) {
	if !strings.HasPrefix(didKey, didKeyPrefix) {
		return nil, 0, fmt.Errorf("not a did:key: %q", didKey)
	}

	fp := strings.TrimPrefix(didKey, didKeyPrefix)
	if i := strings.IndexByte(fp, '#'); i >= 0 {
		fp = fp[:i]
	}

	codec, raw, err := decodeMultikey(fp)
	if err != nil {
		return nil, 0, fmt.Errorf("did:key %q: %w", didKey, err)
	}

	return raw, codec, nil
}

// IsX25519Multikey reports whether a multibase fingerprint carries a curve25519 key.
func IsX25519Multikey(fp string) bool {
	codec, _, err := decodeMultikey(fp)

	return err == nil && codec == x25519PubCodec
}

func encodeMultikey(pub []byte, codec uint64) string {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, codec)

	// base58btc is always a valid multibase encoding
	fp, _ := multibase.Encode(multibase.Base58BTC, append(buf[:n], pub...)) //nolint:errcheck

	return fp
}

func decodeMultikey(fp string) (uint64, []byte, error) {
	enc, data, err := multibase.Decode(fp)
	if err != nil {
		return 0, nil, fmt.Errorf("multibase decode: %w", err)
	}

	if enc != multibase.Base58BTC {
		return 0, nil, fmt.Errorf("unsupported multibase encoding %q", string(rune(enc)))
	}

	codec, n := binary.Uvarint(data)
	if n <= 0 {
		return 0, nil, fmt.Errorf("invalid multicodec prefix")
	}

	switch codec {
	case ed25519PubCodec, x25519PubCodec:
	default:
		return 0, nil, fmt.Errorf("unsupported multicodec 0x%x", codec)
	}

	raw := data[n:]
	if len(raw) != 32 { //nolint:gomnd
		return 0, nil, fmt.Errorf("invalid key length %d", len(raw))
	}

	return codec, raw, nil
}

// keyResolver resolves did:key DIDs. An ed25519 key also yields its derived curve25519 key agreement method.
type keyResolver struct{}

func (keyResolver) resolve(didKey string) (*Doc, error) {
	raw, codec, err := PubKeyFromDIDKey(didKey)
	if err != nil {
		return nil, err
	}

	fp := strings.TrimPrefix(strings.SplitN(didKey, "#", 2)[0], didKeyPrefix)
	vm := VerificationMethod{
		ID:                 didKey + "#" + fp,
		Controller:         didKey,
		PublicKeyMultibase: fp,
	}

	doc := &Doc{Context: ContextV1, ID: didKey}

	if codec == x25519PubCodec {
		vm.Type = X25519KeyAgreementKey2019
		doc.KeyAgreement = []VerificationMethod{vm}

		return doc, nil
	}

	vm.Type = Ed25519VerificationKey2018
	doc.VerificationMethod = []VerificationMethod{vm}
	doc.Authentication = []Authentication{{Type: Ed25519SignatureAuthentication2018, PublicKey: vm.ID}}

	curve, err := cryptoutil.PublicEd25519toCurve25519(raw)
	if err != nil {
		return nil, fmt.Errorf("did:key %q: %w", didKey, err)
	}

	kaFP := encodeMultikey(curve, x25519PubCodec)
	doc.KeyAgreement = []VerificationMethod{{
		ID:                 didKey + "#" + kaFP,
		Type:               X25519KeyAgreementKey2019,
		Controller:         didKey,
		PublicKeyMultibase: kaFP,
	}}

	return doc, nil
}
