/*
Copyright Avast Software. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package anoncrypt

import (
	"fmt"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer/legacy"
)

// Unpack will decode the envelope using the legacy format
// Using XChacha20 encryption algorithm and Poly1035 authenticator.
func (p *Packer) Unpack(envelope []byte) (*packer.Envelope, error) {
	envelopeData, protectedData, err := legacy.Parse(envelope, legacy.Anoncrypt)
	if err != nil {
		return nil, fmt.Errorf("anoncrypt unpack: %w", err)
	}

	recKeyIdx, err := legacy.FindRecipient(p.wallet, protectedData.Recipients)
	if err != nil {
		return nil, fmt.Errorf("anoncrypt unpack: %w", err)
	}

	recip := protectedData.Recipients[recKeyIdx]

	encCEK, err := legacy.Decode(recip.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("anoncrypt unpack: %w", err)
	}

	cek, err := p.wallet.SealOpen(encCEK, recip.Header.KID)
	if err != nil {
		return nil, fmt.Errorf("anoncrypt unpack: %w: failed to decrypt CEK: %s", packer.ErrDecryption, err.Error())
	}

	data, err := legacy.Open(cek, envelopeData)
	if err != nil {
		return nil, fmt.Errorf("anoncrypt unpack: %w", err)
	}

	return &packer.Envelope{
		Message: data,
		ToKey:   recip.Header.KID,
	}, nil
}
