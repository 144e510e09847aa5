/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cryptoutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

func TestNonce(t *testing.T) {
	n1, err := Nonce([]byte("a"), []byte("b"))
	require.NoError(t, err)

	n2, err := Nonce([]byte("a"), []byte("b"))
	require.NoError(t, err)
	require.Equal(t, n1, n2)

	n3, err := Nonce([]byte("b"), []byte("a"))
	require.NoError(t, err)
	require.NotEqual(t, n1, n3)
}

func TestEd25519ToCurve25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	curvePub, err := PublicEd25519toCurve25519(pub)
	require.NoError(t, err)
	require.Len(t, curvePub, Curve25519KeySize)

	curvePriv, err := SecretEd25519toCurve25519(priv)
	require.NoError(t, err)

	derived, err := curve25519.X25519(curvePriv, curve25519.Basepoint)
	require.NoError(t, err)
	require.Equal(t, curvePub, derived)

	t.Run("invalid sizes", func(t *testing.T) {
		_, err = PublicEd25519toCurve25519(nil)
		require.ErrorIs(t, err, ErrInvalidKey)

		_, err = PublicEd25519toCurve25519([]byte("short"))
		require.ErrorIs(t, err, ErrInvalidKey)

		_, err = SecretEd25519toCurve25519([]byte("short"))
		require.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestDeriveKEK(t *testing.T) {
	z := make([]byte, 32)
	_, err := rand.Read(z)
	require.NoError(t, err)

	k1 := DeriveKEK([]byte("ECDH-ES+XC20PKW"), []byte("apu"), []byte("apv"), z)
	k2 := DeriveKEK([]byte("ECDH-ES+XC20PKW"), []byte("apu"), []byte("apv"), z)
	require.Len(t, k1, 32)
	require.Equal(t, k1, k2)

	k3 := DeriveKEK([]byte("ECDH-1PU+XC20PKW"), []byte("apu"), []byte("apv"), z)
	require.NotEqual(t, k1, k3)
}

func TestLengthPrefix(t *testing.T) {
	require.Equal(t, []byte{0, 0, 0, 3, 'a', 'b', 'c'}, LengthPrefix([]byte("abc")))
	require.Equal(t, []byte{0, 0, 0, 0}, LengthPrefix(nil))
}

func TestX25519(t *testing.T) {
	a := make([]byte, 32)
	b := make([]byte, 32)
	_, _ = rand.Read(a)
	_, _ = rand.Read(b)

	aPub, err := curve25519.X25519(a, curve25519.Basepoint)
	require.NoError(t, err)
	bPub, err := curve25519.X25519(b, curve25519.Basepoint)
	require.NoError(t, err)

	z1, err := X25519(a, bPub)
	require.NoError(t, err)
	z2, err := X25519(b, aPub)
	require.NoError(t, err)
	require.Equal(t, z1, z2)

	_, err = X25519([]byte("x"), bPub)
	require.ErrorIs(t, err, ErrInvalidKey)
}
