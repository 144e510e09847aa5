/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package wallet

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/internal/cryptoutil"
)

func newWallet(t *testing.T) *LocalWallet {
	t.Helper()

	w, err := New(mem.NewProvider())
	require.NoError(t, err)

	return w
}

func TestLocalWallet_Keys(t *testing.T) {
	w := newWallet(t)

	t.Run("create key", func(t *testing.T) {
		vk, err := w.CreateKey()
		require.NoError(t, err)
		require.Len(t, base58.Decode(vk), 32)
		require.True(t, w.HasKey(vk))
	})

	t.Run("seeded key is deterministic", func(t *testing.T) {
		seed := bytes.Repeat([]byte{1}, 32)

		vk1, err := w.CreateKeyFromSeed(seed)
		require.NoError(t, err)

		vk2, err := newWallet(t).CreateKeyFromSeed(seed)
		require.NoError(t, err)
		require.Equal(t, vk1, vk2)
	})

	t.Run("invalid seed", func(t *testing.T) {
		_, err := w.CreateKeyFromSeed([]byte("short"))
		require.ErrorIs(t, err, ErrInvalidSeed)
	})

	t.Run("create did", func(t *testing.T) {
		did, vk, err := w.CreateDID(nil)
		require.NoError(t, err)
		require.Equal(t, base58.Encode(base58.Decode(vk)[:16]), did)
	})

	t.Run("missing key", func(t *testing.T) {
		require.False(t, w.HasKey("unknown"))

		_, err := w.Sign("unknown", []byte("msg"))
		require.ErrorIs(t, err, ErrWalletRecordNotFound)
	})
}

func TestLocalWallet_SignVerify(t *testing.T) {
	w := newWallet(t)

	vk, err := w.CreateKey()
	require.NoError(t, err)

	sig, err := w.Sign(vk, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Verify(vk, []byte("hello"), sig))
	require.Error(t, w.Verify(vk, []byte("other"), sig))
	require.Error(t, VerifySignature("bad", []byte("hello"), sig))
}

func TestLocalWallet_CryptoBox(t *testing.T) {
	w := newWallet(t)

	alice, err := w.CreateKey()
	require.NoError(t, err)

	bob, err := w.CreateKey()
	require.NoError(t, err)

	alicePub, err := cryptoutil.PublicEd25519toCurve25519(base58.Decode(alice))
	require.NoError(t, err)

	bobPub, err := cryptoutil.PublicEd25519toCurve25519(base58.Decode(bob))
	require.NoError(t, err)

	t.Run("easy", func(t *testing.T) {
		nonce := make([]byte, cryptoutil.NonceSize)
		_, err = rand.Read(nonce)
		require.NoError(t, err)

		ct, err := w.Easy([]byte("secret"), nonce, bobPub, alice)
		require.NoError(t, err)

		pt, err := w.EasyOpen(ct, nonce, alicePub, bob)
		require.NoError(t, err)
		require.Equal(t, []byte("secret"), pt)

		ct[0] ^= 0xff
		_, err = w.EasyOpen(ct, nonce, alicePub, bob)
		require.Error(t, err)
	})

	t.Run("seal", func(t *testing.T) {
		ct, err := w.Seal([]byte("anon"), bobPub)
		require.NoError(t, err)

		pt, err := w.SealOpen(ct, bob)
		require.NoError(t, err)
		require.Equal(t, []byte("anon"), pt)

		_, err = w.SealOpen(ct, alice)
		require.Error(t, err)

		_, err = w.SealOpen([]byte("x"), bob)
		require.Error(t, err)
	})

	t.Run("derive", func(t *testing.T) {
		z1, err := w.DeriveX25519(alice, bobPub)
		require.NoError(t, err)

		z2, err := w.DeriveX25519(bob, alicePub)
		require.NoError(t, err)
		require.Equal(t, z1, z2)
	})
}
