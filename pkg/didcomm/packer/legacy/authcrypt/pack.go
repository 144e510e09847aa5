/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authcrypt

import (
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/base58"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer/legacy"
	"github.com/hyperledger/aries-didcomm-go/pkg/internal/cryptoutil"
)

// Pack will encode the payload argument
// Using the protocol defined by Aries RFC 0019.
func (p *Packer) Pack(payload []byte, senderKey string, recipients []string) ([]byte, error) {
	if senderKey == "" {
		return nil, errors.New("authcrypt pack: sender key is required")
	}

	if len(recipients) == 0 {
		return nil, errors.New("authcrypt pack: empty recipients keys, must have at least one recipient")
	}

	cek, err := legacy.NewCEK(p.randSource)
	if err != nil {
		return nil, fmt.Errorf("authcrypt pack: %w", err)
	}

	header := &legacy.Protected{Alg: legacy.Authcrypt}

	for i, recKey := range recipients {
		rec, e := p.buildRecipient(cek, senderKey, recKey)
		if e != nil {
			return nil, fmt.Errorf("authcrypt pack: recipient %d: %w", i+1, e)
		}

		header.Recipients = append(header.Recipients, *rec)
	}

	return legacy.Seal(p.randSource, cek, header, payload)
}

// buildRecipient encodes the necessary data for the recipient to decrypt the message
// encrypting the CEK and sender pub key.
func (p *Packer) buildRecipient(cek []byte, senderKey, recKey string) (*legacy.Recipient, error) {
	nonce := make([]byte, cryptoutil.NonceSize)

	if _, err := io.ReadFull(p.randSource, nonce); err != nil {
		return nil, err
	}

	recPKCurve, err := cryptoutil.PublicEd25519toCurve25519(base58.Decode(recKey))
	if err != nil {
		return nil, err
	}

	encCEK, err := p.wallet.Easy(cek, nonce, recPKCurve, senderKey)
	if err != nil {
		return nil, err
	}

	encSender, err := p.wallet.Seal([]byte(senderKey), recPKCurve)
	if err != nil {
		return nil, err
	}

	return &legacy.Recipient{
		EncryptedKey: legacy.Encode(encCEK),
		Header: legacy.RecipientHeader{
			KID:    recKey,
			Sender: legacy.Encode(encSender),
			IV:     legacy.Encode(nonce),
		},
	}, nil
}
