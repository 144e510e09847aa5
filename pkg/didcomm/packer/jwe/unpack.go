/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package jwe

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	chacha "golang.org/x/crypto/chacha20poly1305"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-didcomm-go/pkg/internal/cryptoutil"
)

// Unpack decrypts a modern envelope with the first recipient key held by the wallet. The returned
// FromKey is the protected `skid` of ECDH-1PU envelopes.
func (p *Packer) Unpack(envelope []byte) (*packer.Envelope, error) {
	var env Envelope

	if err := json.Unmarshal(envelope, &env); err != nil {
		return nil, fmt.Errorf("jwe unpack: %w: %s", packer.ErrDecryption, err.Error())
	}

	header, err := parseProtected(env.Protected)
	if err != nil {
		return nil, fmt.Errorf("jwe unpack: %w", err)
	}

	var rec *Recipient

	for i := range env.Recipients {
		if kid := env.Recipients[i].Header.KID; kid != "" && p.wallet.HasKey(kid) {
			rec = &env.Recipients[i]

			break
		}
	}

	if rec == nil {
		return nil, fmt.Errorf("jwe unpack: %w: none of the recipient keys were found in the wallet",
			packer.ErrDecryption)
	}

	cek, err := p.unwrapKey(header, rec, env.Recipients)
	if err != nil {
		return nil, fmt.Errorf("jwe unpack: %w", err)
	}

	msg, err := open(cek, env.IV, env.CipherText, env.Tag, []byte(env.Protected))
	if err != nil {
		return nil, fmt.Errorf("jwe unpack: %w", err)
	}

	return &packer.Envelope{Message: msg, FromKey: header.SKID, ToKey: rec.Header.KID}, nil
}

func parseProtected(protected string) (*Protected, error) {
	raw, err := decode(protected)
	if err != nil {
		return nil, err
	}

	header := &Protected{}

	if err = json.Unmarshal(raw, header); err != nil {
		return nil, fmt.Errorf("%w: protected header: %s", packer.ErrDecryption, err.Error())
	}

	if header.Typ != EncodingType {
		return nil, fmt.Errorf("message type %s not supported", header.Typ)
	}

	switch header.Alg {
	case AnonAlg:
		if header.SKID != "" {
			return nil, fmt.Errorf("%w: skid set on anonymous envelope", packer.ErrDecryption)
		}
	case AuthAlg:
		if header.SKID == "" {
			return nil, fmt.Errorf("%w: missing skid", packer.ErrDecryption)
		}
	default:
		return nil, fmt.Errorf("message format %s not supported", header.Alg)
	}

	return header, nil
}

func (p *Packer) unwrapKey(header *Protected, rec *Recipient, all []Recipient) ([]byte, error) {
	epk, err := decode(header.EPK.X)
	if err != nil {
		return nil, err
	}

	kids := make([]string, 0, len(all))
	for _, r := range all {
		kids = append(kids, r.Header.KID)
	}

	apv := recipientsDigest(kids)
	if encode(apv) != header.APV {
		return nil, fmt.Errorf("%w: recipients do not match apv", packer.ErrDecryption)
	}

	z, err := p.wallet.DeriveX25519(rec.Header.KID, epk)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", packer.ErrDecryption, err.Error())
	}

	if header.Alg == AuthAlg {
		senderPub, e := cryptoutil.PublicEd25519toCurve25519(base58.Decode(header.SKID))
		if e != nil {
			return nil, fmt.Errorf("%w: skid: %s", packer.ErrDecryption, e.Error())
		}

		zs, e := p.wallet.DeriveX25519(rec.Header.KID, senderPub)
		if e != nil {
			return nil, fmt.Errorf("%w: %s", packer.ErrDecryption, e.Error())
		}

		z = append(z, zs...)
	}

	kek := cryptoutil.DeriveKEK([]byte(header.Alg), epk, apv, z)

	return open(kek, rec.Header.IV, rec.EncryptedKey, rec.Header.Tag, nil)
}

func open(key []byte, iv, cipherText, tag string, aad []byte) ([]byte, error) {
	nonce, err := decode(iv)
	if err != nil {
		return nil, err
	}

	ct, err := decode(cipherText)
	if err != nil {
		return nil, err
	}

	t, err := decode(tag)
	if err != nil {
		return nil, err
	}

	if len(key) != chacha.KeySize || len(nonce) != chacha.NonceSizeX {
		return nil, fmt.Errorf("%w: invalid key or iv size", packer.ErrDecryption)
	}

	aead, err := chacha.NewX(key)
	if err != nil {
		return nil, err
	}

	out, err := aead.Open(nil, nonce, append(ct, t...), aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", packer.ErrDecryption, err.Error())
	}

	return out, nil
}
