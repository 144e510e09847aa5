/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cryptoutil

import (
	"crypto"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	josecipher "github.com/go-jose/go-jose/v3/cipher"
	"github.com/teserakt-io/golang-ed25519/extra25519"
	chacha "golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
)

const (
	// Curve25519KeySize number of bytes in a Curve25519 public or private key.
	Curve25519KeySize = 32
	// NonceSize size of a nonce used by Box encryption (Xchacha20Poly1305).
	NonceSize = 24
)

// ErrInvalidKey is returned when a key has the wrong size or cannot be converted.
var ErrInvalidKey = errors.New("invalid key")

// Nonce makes a nonce using blake2b, to match the format expected by libsodium.
func Nonce(pub1, pub2 []byte) (*[NonceSize]byte, error) {
	var nonce [NonceSize]byte

	nonceWriter, err := blake2b.New(NonceSize, nil)
	if err != nil {
		return nil, err
	}

	if _, err = nonceWriter.Write(pub1); err != nil {
		return nil, err
	}

	if _, err = nonceWriter.Write(pub2); err != nil {
		return nil, err
	}

	copy(nonce[:], nonceWriter.Sum(nil))

	return &nonce, nil
}

// PublicEd25519toCurve25519 takes an Ed25519 public key and provides the corresponding Curve25519 public key.
func PublicEd25519toCurve25519(pub []byte) ([]byte, error) {
	if len(pub) == 0 {
		return nil, fmt.Errorf("%w: key is nil", ErrInvalidKey)
	}

	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %d-byte key size is invalid", ErrInvalidKey, len(pub))
	}

	pkOut := new([Curve25519KeySize]byte)
	pKIn := new([Curve25519KeySize]byte)
	copy(pKIn[:], pub)

	if !extra25519.PublicKeyToCurve25519(pkOut, pKIn) {
		return nil, fmt.Errorf("%w: error converting public key", ErrInvalidKey)
	}

	return pkOut[:], nil
}

// SecretEd25519toCurve25519 converts a secret key from Ed25519 to curve25519 format.
func SecretEd25519toCurve25519(priv []byte) ([]byte, error) {
	if len(priv) == 0 {
		return nil, fmt.Errorf("%w: key is nil", ErrInvalidKey)
	}

	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: %d-byte key size is invalid", ErrInvalidKey, len(priv))
	}

	sKIn := new([ed25519.PrivateKeySize]byte)
	copy(sKIn[:], priv)

	sKOut := new([Curve25519KeySize]byte)
	extra25519.PrivateKeyToCurve25519(sKOut, sKIn)

	return sKOut[:], nil
}

// X25519 computes the shared secret between a curve25519 private key and a curve25519 public key.
func X25519(priv, pub []byte) ([]byte, error) {
	if len(priv) != Curve25519KeySize || len(pub) != Curve25519KeySize {
		return nil, ErrInvalidKey
	}

	z, err := curve25519.X25519(priv, pub)
	if err != nil {
		return nil, fmt.Errorf("x25519: %w", err)
	}

	return z, nil
}

// DeriveKEK derives a chacha20poly1305 key-wrapping key from the shared secret z with the
// concat KDF of NIST SP 800-56A, using the JWA ECDH-ES conventions.
func DeriveKEK(alg, apu, apv, z []byte) []byte {
	supPubInfo := make([]byte, 4)
	binary.BigEndian.PutUint32(supPubInfo, uint32(chacha.KeySize)*8)

	reader := josecipher.NewConcatKDF(crypto.SHA256, z, LengthPrefix(alg), LengthPrefix(apu),
		LengthPrefix(apv), supPubInfo, []byte{})

	kek := make([]byte, chacha.KeySize)

	_, _ = reader.Read(kek) // nolint:errcheck // ConcatKDF's Read() never returns an error

	return kek
}

// LengthPrefix prefixes array with its 4 byte big-endian length.
func LengthPrefix(array []byte) []byte {
	const prefixLen = 4

	arrInfo := make([]byte, prefixLen+len(array))
	binary.BigEndian.PutUint32(arrInfo, uint32(len(array)))
	copy(arrInfo[prefixLen:], array)

	return arrInfo
}
