/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package jwe packs DIDComm messages in the general JSON JWE layout, using X25519 key agreement
// (ECDH-ES for anonymous and ECDH-1PU for authenticated envelopes) and XChaCha20-Poly1305 both for key
// wrapping and content encryption.
package jwe

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-didcomm-go/pkg/wallet"
)

var logger = log.New("aries-framework/packer/jwe")

const (
	// EncodingType is the `typ` of modern envelopes.
	EncodingType = "application/didcomm-encrypted+json"
	// ContentEncryption is the `enc` value, XChaCha20-Poly1305.
	ContentEncryption = "XC20P"
	// AnonAlg is the recipient key agreement of anonymous envelopes.
	AnonAlg = "ECDH-ES+XC20PKW"
	// AuthAlg is the recipient key agreement of authenticated envelopes.
	AuthAlg = "ECDH-1PU+XC20PKW"

	curveX25519 = "X25519"
	keyTypeOKP  = "OKP"
)

// Envelope is a general JSON serialized JWE.
type Envelope struct {
	Protected  string      `json:"protected"`
	Recipients []Recipient `json:"recipients"`
	IV         string      `json:"iv"`
	CipherText string      `json:"ciphertext"`
	Tag        string      `json:"tag"`
}

// Recipient is one entry of the recipients array.
type Recipient struct {
	EncryptedKey string          `json:"encrypted_key"`
	Header       RecipientHeader `json:"header"`
}

// RecipientHeader is the per recipient unprotected header.
type RecipientHeader struct {
	KID string `json:"kid"`
	IV  string `json:"iv"`
	Tag string `json:"tag"`
}

// Protected is the protected header shared by all recipients.
type Protected struct {
	Typ  string `json:"typ"`
	Enc  string `json:"enc"`
	Alg  string `json:"alg"`
	SKID string `json:"skid,omitempty"`
	APU  string `json:"apu"`
	APV  string `json:"apv"`
	EPK  EPK    `json:"epk"`
}

// EPK is the ephemeral public key, as an OKP JWK.
type EPK struct {
	KTY string `json:"kty"`
	CRV string `json:"crv"`
	X   string `json:"x"`
}

// Packer packs and unpacks modern envelopes.
type Packer struct {
	randSource io.Reader
	wallet     wallet.Wallet
	auth       bool
}

var _ packer.Packer = (*Packer)(nil)

// NewAnoncrypt creates a Packer producing ECDH-ES envelopes. It unpacks both modes.
func NewAnoncrypt(w wallet.Wallet) packer.Packer {
	return &Packer{randSource: rand.Reader, wallet: w}
}

// NewAuthcrypt creates a Packer producing ECDH-1PU envelopes. It unpacks both modes.
func NewAuthcrypt(w wallet.Wallet) packer.Packer {
	return &Packer{randSource: rand.Reader, wallet: w, auth: true}
}

// EncodingType returns the `typ` header value.
func (p *Packer) EncodingType() string {
	return EncodingType
}

// Algorithm returns the `alg` header value.
func (p *Packer) Algorithm() string {
	if p.auth {
		return AuthAlg
	}

	return AnonAlg
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decode(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", packer.ErrDecryption, err.Error())
	}

	return b, nil
}

// recipientsDigest is the apv value: sha256 over the sorted kids joined by ".".
func recipientsDigest(kids []string) []byte {
	sorted := append([]string{}, kids...)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, ".")))

	return sum[:]
}
