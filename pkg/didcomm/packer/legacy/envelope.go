/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package legacy holds the RFC 0019 envelope layout shared by the legacy authcrypt and anoncrypt packers.
package legacy

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	chacha "golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/poly1305"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-didcomm-go/pkg/wallet"
)

const (
	// EncodingType is the `typ` string identifier in a message that identifies the format as being legacy.
	EncodingType = "JWM/1.0"
	// ContentEncryption is the `enc` value of legacy envelopes.
	ContentEncryption = "xchacha20poly1305_ietf"
	// Authcrypt is the `alg` value of authenticated envelopes.
	Authcrypt = "Authcrypt"
	// Anoncrypt is the `alg` value of anonymous envelopes.
	Anoncrypt = "Anoncrypt"
)

// Envelope is the full payload envelope for the JSON message.
type Envelope struct {
	Protected  string `json:"protected,omitempty"`
	IV         string `json:"iv,omitempty"`
	CipherText string `json:"ciphertext,omitempty"`
	Tag        string `json:"tag,omitempty"`
}

// Protected is the protected header of the JSON envelope.
type Protected struct {
	Enc        string      `json:"enc,omitempty"`
	Typ        string      `json:"typ,omitempty"`
	Alg        string      `json:"alg,omitempty"`
	Recipients []Recipient `json:"recipients,omitempty"`
}

// Recipient holds the data for a recipient in the envelope header.
type Recipient struct {
	EncryptedKey string          `json:"encrypted_key,omitempty"`
	Header       RecipientHeader `json:"header,omitempty"`
}

// RecipientHeader holds the header data for a recipient.
type RecipientHeader struct {
	KID    string `json:"kid,omitempty"`
	Sender string `json:"sender,omitempty"`
	IV     string `json:"iv,omitempty"`
}

// Encode base64 URL encodes b with padding.
func Encode(b []byte) string {
	return base64.URLEncoding.EncodeToString(b)
}

// Decode accepts padded and raw base64 URL input.
func Decode(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", packer.ErrDecryption, err.Error())
	}

	return b, nil
}

// NewCEK creates a random content encryption key.
func NewCEK(randSource io.Reader) ([]byte, error) {
	cek := make([]byte, chacha.KeySize)

	if _, err := io.ReadFull(randSource, cek); err != nil {
		return nil, fmt.Errorf("generate cek: %w", err)
	}

	return cek, nil
}

// Seal encrypts payload with cek and serializes the envelope. Additional data is the encoded
// protected header.
func Seal(randSource io.Reader, cek []byte, header *Protected, payload []byte) ([]byte, error) {
	nonce := make([]byte, chacha.NonceSizeX)

	if _, err := io.ReadFull(randSource, nonce); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	header.Enc = ContentEncryption
	header.Typ = EncodingType

	protectedBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshal protected: %w", err)
	}

	aad := Encode(protectedBytes)

	aead, err := chacha.NewX(cek)
	if err != nil {
		return nil, err
	}

	symPld := aead.Seal(nil, nonce, payload, []byte(aad))

	// the tag is the trailing poly1305.TagSize bytes
	tag := symPld[len(symPld)-poly1305.TagSize:]
	cipherText := symPld[:len(symPld)-poly1305.TagSize]

	return json.Marshal(Envelope{
		Protected:  aad,
		IV:         Encode(nonce),
		CipherText: Encode(cipherText),
		Tag:        Encode(tag),
	})
}

// Parse reads an envelope and its protected header, checking the expected `alg`.
func Parse(raw []byte, alg string) (*Envelope, *Protected, error) {
	var env Envelope

	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", packer.ErrDecryption, err.Error())
	}

	protectedBytes, err := Decode(env.Protected)
	if err != nil {
		return nil, nil, err
	}

	var header Protected

	if err = json.Unmarshal(protectedBytes, &header); err != nil {
		return nil, nil, fmt.Errorf("%w: protected header: %s", packer.ErrDecryption, err.Error())
	}

	if header.Typ != EncodingType {
		return nil, nil, fmt.Errorf("message type %s not supported", header.Typ)
	}

	if header.Alg != alg {
		return nil, nil, fmt.Errorf("message format %s not supported", header.Alg)
	}

	return &env, &header, nil
}

// FindRecipient returns the index of the first recipient whose kid the wallet holds.
func FindRecipient(w wallet.Wallet, recipients []Recipient) (int, error) {
	for i, r := range recipients {
		if r.Header.KID != "" && w.HasKey(r.Header.KID) {
			return i, nil
		}
	}

	return -1, fmt.Errorf("%w: none of the recipient keys were found in the wallet", packer.ErrDecryption)
}

// Open decrypts the ciphertext of env with cek.
func Open(cek []byte, env *Envelope) ([]byte, error) {
	cipherText, err := Decode(env.CipherText)
	if err != nil {
		return nil, err
	}

	nonce, err := Decode(env.IV)
	if err != nil {
		return nil, err
	}

	tag, err := Decode(env.Tag)
	if err != nil {
		return nil, err
	}

	if len(cek) != chacha.KeySize || len(nonce) != chacha.NonceSizeX {
		return nil, fmt.Errorf("%w: invalid key or iv size", packer.ErrDecryption)
	}

	aead, err := chacha.NewX(cek)
	if err != nil {
		return nil, err
	}

	message, err := aead.Open(nil, nonce, append(cipherText, tag...), []byte(env.Protected))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", packer.ErrDecryption, err.Error())
	}

	return message, nil
}
