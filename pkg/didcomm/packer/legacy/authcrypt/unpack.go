/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authcrypt

import (
	"fmt"

	"github.com/btcsuite/btcutil/base58"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer/legacy"
	"github.com/hyperledger/aries-didcomm-go/pkg/internal/cryptoutil"
	"github.com/hyperledger/aries-didcomm-go/pkg/wallet"
)

// Unpack will decode the envelope using the legacy format
// Using XChacha20 encryption algorithm and Poly1035 authenticator.
func (p *Packer) Unpack(envelope []byte) (*packer.Envelope, error) {
	envelopeData, protectedData, err := legacy.Parse(envelope, legacy.Authcrypt)
	if err != nil {
		return nil, fmt.Errorf("authcrypt unpack: %w", err)
	}

	k, err := getCEK(protectedData.Recipients, p.wallet)
	if err != nil {
		return nil, fmt.Errorf("authcrypt unpack: %w", err)
	}

	data, err := legacy.Open(k.cek, envelopeData)
	if err != nil {
		return nil, fmt.Errorf("authcrypt unpack: %w", err)
	}

	return &packer.Envelope{
		Message: data,
		FromKey: k.theirKey,
		ToKey:   k.myKey,
	}, nil
}

type keys struct {
	cek      []byte
	theirKey string
	myKey    string
}

func getCEK(recipients []legacy.Recipient, w wallet.Wallet) (*keys, error) {
	recKeyIdx, err := legacy.FindRecipient(w, recipients)
	if err != nil {
		return nil, err
	}

	recip := recipients[recKeyIdx]
	recKey := recip.Header.KID

	senderKey, senderPubCurve, err := decodeSender(recip.Header.Sender, recKey, w)
	if err != nil {
		return nil, err
	}

	nonce, err := legacy.Decode(recip.Header.IV)
	if err != nil {
		return nil, err
	}

	encCEK, err := legacy.Decode(recip.EncryptedKey)
	if err != nil {
		return nil, err
	}

	cek, err := w.EasyOpen(encCEK, nonce, senderPubCurve, recKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt CEK: %s", packer.ErrDecryption, err.Error())
	}

	return &keys{
		cek:      cek,
		theirKey: senderKey,
		myKey:    recKey,
	}, nil
}

func decodeSender(b64Sender, recKey string, w wallet.Wallet) (string, []byte, error) {
	encSender, err := legacy.Decode(b64Sender)
	if err != nil {
		return "", nil, err
	}

	senderPub, err := w.SealOpen(encSender, recKey)
	if err != nil {
		return "", nil, fmt.Errorf("%w: failed to decrypt sender: %s", packer.ErrDecryption, err.Error())
	}

	senderPubCurve, err := cryptoutil.PublicEd25519toCurve25519(base58.Decode(string(senderPub)))
	if err != nil {
		return "", nil, fmt.Errorf("%w: sender key: %s", packer.ErrDecryption, err.Error())
	}

	return string(senderPub), senderPubCurve, nil
}
