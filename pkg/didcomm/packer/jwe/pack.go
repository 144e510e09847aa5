/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package jwe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/base58"
	chacha "golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/poly1305"

	"github.com/hyperledger/aries-didcomm-go/pkg/internal/cryptoutil"
)

// Pack encrypts payload for recipients. An authcrypt Packer requires senderKey.
func (p *Packer) Pack(payload []byte, senderKey string, recipients []string) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, errors.New("jwe pack: empty recipients keys, must have at least one recipient")
	}

	if p.auth && senderKey == "" {
		return nil, errors.New("jwe pack: sender key is required")
	}

	epk, esk, err := box.GenerateKey(p.randSource)
	if err != nil {
		return nil, fmt.Errorf("jwe pack: ephemeral key: %w", err)
	}

	apv := recipientsDigest(recipients)

	header := Protected{
		Typ: EncodingType,
		Enc: ContentEncryption,
		Alg: p.Algorithm(),
		APU: encode(epk[:]),
		APV: encode(apv),
		EPK: EPK{KTY: keyTypeOKP, CRV: curveX25519, X: encode(epk[:])},
	}

	if p.auth {
		header.SKID = senderKey
	}

	cek := make([]byte, chacha.KeySize)

	if _, err = io.ReadFull(p.randSource, cek); err != nil {
		return nil, fmt.Errorf("jwe pack: cek: %w", err)
	}

	env := Envelope{}

	for i, kid := range recipients {
		rec, e := p.wrapKey(cek, esk[:], epk[:], apv, senderKey, kid)
		if e != nil {
			return nil, fmt.Errorf("jwe pack: recipient %d: %w", i+1, e)
		}

		env.Recipients = append(env.Recipients, *rec)
	}

	protectedBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("jwe pack: %w", err)
	}

	env.Protected = encode(protectedBytes)

	nonce, cipherText, tag, err := p.seal(cek, payload, []byte(env.Protected))
	if err != nil {
		return nil, fmt.Errorf("jwe pack: %w", err)
	}

	env.IV, env.CipherText, env.Tag = encode(nonce), encode(cipherText), encode(tag)

	logger.Debugf("packed %s envelope for %d recipients", header.Alg, len(recipients))

	return json.Marshal(env)
}

func (p *Packer) wrapKey(cek, esk, epk, apv []byte, senderKey, kid string) (*Recipient, error) {
	recPub, err := cryptoutil.PublicEd25519toCurve25519(base58.Decode(kid))
	if err != nil {
		return nil, err
	}

	z, err := cryptoutil.X25519(esk, recPub)
	if err != nil {
		return nil, err
	}

	if p.auth {
		zs, e := p.wallet.DeriveX25519(senderKey, recPub)
		if e != nil {
			return nil, e
		}

		z = append(z, zs...)
	}

	kek := cryptoutil.DeriveKEK([]byte(p.Algorithm()), epk, apv, z)

	nonce, encKey, tag, err := p.seal(kek, cek, nil)
	if err != nil {
		return nil, err
	}

	return &Recipient{
		EncryptedKey: encode(encKey),
		Header:       RecipientHeader{KID: kid, IV: encode(nonce), Tag: encode(tag)},
	}, nil
}

func (p *Packer) seal(key, plaintext, aad []byte) ([]byte, []byte, []byte, error) {
	aead, err := chacha.NewX(key)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce := make([]byte, chacha.NonceSizeX)

	if _, err = io.ReadFull(p.randSource, nonce); err != nil {
		return nil, nil, nil, err
	}

	sealed := aead.Seal(nil, nonce, plaintext, aad)

	return nonce, sealed[:len(sealed)-poly1305.TagSize], sealed[len(sealed)-poly1305.TagSize:], nil
}
