/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authcrypt

import (
	"crypto/rand"
	"io"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer/legacy"
	"github.com/hyperledger/aries-didcomm-go/pkg/wallet"
)

// Packer represents an Authcrypt Pack/Unpacker that outputs/reads legacy Aries envelopes.
type Packer struct {
	randSource io.Reader
	wallet     wallet.Wallet
}

var _ packer.Packer = (*Packer)(nil)

// New will create a Packer that encrypts messages using the legacy Aries format.
func New(w wallet.Wallet) packer.Packer {
	return &Packer{
		randSource: rand.Reader,
		wallet:     w,
	}
}

// EncodingType returns the type of the encoding, as in the `Typ` field of the envelope header.
func (p *Packer) EncodingType() string {
	return legacy.EncodingType
}

// Algorithm returns the `alg` header value.
func (p *Packer) Algorithm() string {
	return legacy.Authcrypt
}
