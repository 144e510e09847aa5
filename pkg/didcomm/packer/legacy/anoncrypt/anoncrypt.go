/*
Copyright Avast Software. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package anoncrypt

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/base58"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer/legacy"
	"github.com/hyperledger/aries-didcomm-go/pkg/internal/cryptoutil"
	"github.com/hyperledger/aries-didcomm-go/pkg/wallet"
)

// Packer represents an Anoncrypt Pack/Unpacker that outputs/reads legacy Aries envelopes.
type Packer struct {
	randSource io.Reader
	wallet     wallet.Wallet
}

var _ packer.Packer = (*Packer)(nil)

// New will create a Packer that encrypts messages anonymously using the legacy Aries format.
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
	return legacy.Anoncrypt
}

// Pack will encode the payload argument for recipients without disclosing a sender.
func (p *Packer) Pack(payload []byte, _ string, recipients []string) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, errors.New("anoncrypt pack: empty recipients keys, must have at least one recipient")
	}

	cek, err := legacy.NewCEK(p.randSource)
	if err != nil {
		return nil, fmt.Errorf("anoncrypt pack: %w", err)
	}

	header := &legacy.Protected{Alg: legacy.Anoncrypt}

	for i, recKey := range recipients {
		recPKCurve, e := cryptoutil.PublicEd25519toCurve25519(base58.Decode(recKey))
		if e != nil {
			return nil, fmt.Errorf("anoncrypt pack: recipient %d: %w", i+1, e)
		}

		encCEK, e := wallet.SealBox(cek, recPKCurve, p.randSource)
		if e != nil {
			return nil, fmt.Errorf("anoncrypt pack: recipient %d: %w", i+1, e)
		}

		header.Recipients = append(header.Recipients, legacy.Recipient{
			EncryptedKey: legacy.Encode(encCEK),
			Header:       legacy.RecipientHeader{KID: recKey},
		})
	}

	return legacy.Seal(p.randSource, cek, header, payload)
}
