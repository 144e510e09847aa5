/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package packer

import (
	"errors"

	"github.com/hyperledger/aries-didcomm-go/pkg/wallet"
)

// ErrDecryption is wrapped by every unpack failure that stems from the envelope contents: malformed
// fields, an unknown recipient or a failed integrity check.
var ErrDecryption = errors.New("envelope decryption failed")

// Envelope holds an unpacked message together with the keys it travelled between.
type Envelope struct {
	Message []byte
	// FromKey is the base58 sender verkey. It is empty for anonymous envelopes.
	FromKey string
	// ToKey is the base58 verkey of the recipient that could open the envelope.
	ToKey string
}

// Creator method to create new Packer service.
type Creator func(w wallet.Wallet) Packer

// Packer is an Aries envelope packer/unpacker to support
// secure DIDComm exchange of envelopes between Aries agents.
type Packer interface {
	// Pack a payload for the recipients' base58 verkeys. senderKey is ignored by anonymous packers.
	Pack(payload []byte, senderKey string, recipients []string) ([]byte, error)
	// Unpack an envelope with the first recipient key held by the wallet.
	Unpack(envelope []byte) (*Envelope, error)
	// EncodingType returns the type of the encoding, as found in the header `typ` field.
	EncodingType() string
	// Algorithm returns the header `alg` value the packer produces.
	Algorithm() string
}
