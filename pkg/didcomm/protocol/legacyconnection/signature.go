/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package legacyconnection

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcutil/base58"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-didcomm-go/pkg/internal/cryptoutil"
	"github.com/hyperledger/aries-didcomm-go/pkg/wallet"
)

const timestampLength = 8

// ErrSignature is returned when a connection~sig does not verify against the invitation key.
var ErrSignature = errors.New("invalid connection signature")

// Signer signs with a key held by the local wallet.
type Signer interface {
	Sign(verkey string, msg []byte) ([]byte, error)
}

// signConnection produces connection~sig: an 8 byte big endian timestamp followed by the connection
// JSON, signed by verkey.
func signConnection(signer Signer, verkey string, conn *Connection, now time.Time) (*decorator.Signature, error) {
	connBytes, err := json.Marshal(conn)
	if err != nil {
		return nil, fmt.Errorf("marshal connection: %w", err)
	}

	data := make([]byte, timestampLength, timestampLength+len(connBytes))
	binary.BigEndian.PutUint64(data, uint64(now.Unix()))
	data = append(data, connBytes...)

	sig, err := signer.Sign(verkey, data)
	if err != nil {
		return nil, fmt.Errorf("sign connection: %w", err)
	}

	return &decorator.Signature{
		Type:       decorator.SignatureType,
		SignedData: base64.URLEncoding.EncodeToString(data),
		SignVerKey: verkey,
		Signature:  base64.URLEncoding.EncodeToString(sig),
	}, nil
}

// verifyConnection checks connSig against the invitation key and returns the signed connection.
func verifyConnection(connSig *decorator.Signature, invitationKey string) (*Connection, error) {
	if connSig == nil {
		return nil, fmt.Errorf("%w: missing connection~sig", ErrSignature)
	}

	sigData, err := decodeURL(connSig.SignedData)
	if err != nil {
		return nil, fmt.Errorf("%w: decode signature data: %v", ErrSignature, err)
	}

	if len(sigData) <= timestampLength {
		return nil, fmt.Errorf("%w: missing connection data", ErrSignature)
	}

	sig, err := decodeURL(connSig.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: decode signature: %v", ErrSignature, err)
	}

	if !signerMatches(connSig.SignVerKey, invitationKey) {
		return nil, fmt.Errorf("%w: signer %s is not the invitation key", ErrSignature, connSig.SignVerKey)
	}

	if err = wallet.VerifySignature(connSig.SignVerKey, sigData, sig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	conn := &Connection{}
	if err = json.Unmarshal(sigData[timestampLength:], conn); err != nil {
		return nil, fmt.Errorf("%w: unmarshal connection: %v", ErrSignature, err)
	}

	return conn, nil
}

// signerMatches reports whether the ed25519 signer is the invitation key, either directly or as the
// ed25519 key behind an X25519 invitation key.
func signerMatches(signer, invitationKey string) bool {
	if signer == invitationKey {
		return true
	}

	curve, err := cryptoutil.PublicEd25519toCurve25519(base58.Decode(signer))
	if err != nil {
		return false
	}

	return bytes.Equal(curve, base58.Decode(invitationKey))
}

func decodeURL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
