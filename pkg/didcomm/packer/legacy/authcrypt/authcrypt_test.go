/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authcrypt

import (
	"encoding/json"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer/legacy"
	"github.com/hyperledger/aries-didcomm-go/pkg/wallet"
)

func newWallet(t *testing.T) *wallet.LocalWallet {
	t.Helper()

	w, err := wallet.New(mem.NewProvider())
	require.NoError(t, err)

	return w
}

func TestEncodingType(t *testing.T) {
	p := New(newWallet(t))
	require.Equal(t, "JWM/1.0", p.EncodingType())
	require.Equal(t, "Authcrypt", p.Algorithm())
}

func TestPackUnpack(t *testing.T) {
	senderWallet := newWallet(t)
	recipientWallet := newWallet(t)

	sender, err := senderWallet.CreateKey()
	require.NoError(t, err)

	other, err := senderWallet.CreateKey()
	require.NoError(t, err)

	rec1, err := recipientWallet.CreateKey()
	require.NoError(t, err)

	rec2, err := recipientWallet.CreateKey()
	require.NoError(t, err)

	payload := []byte(`{"@type":"https://didcomm.org/trust_ping/1.0/ping","@id":"1"}`)

	t.Run("round trip for every recipient", func(t *testing.T) {
		env, err := New(senderWallet).Pack(payload, sender, []string{other, rec2})
		require.NoError(t, err)

		out, err := New(recipientWallet).Unpack(env)
		require.NoError(t, err)
		require.Equal(t, payload, out.Message)
		require.Equal(t, sender, out.FromKey)
		require.Equal(t, rec2, out.ToKey)

		out, err = New(senderWallet).Unpack(env)
		require.NoError(t, err)
		require.Equal(t, other, out.ToKey)
	})

	t.Run("protected header layout", func(t *testing.T) {
		env, err := New(senderWallet).Pack(payload, sender, []string{rec1})
		require.NoError(t, err)

		var e legacy.Envelope
		require.NoError(t, json.Unmarshal(env, &e))

		raw, err := legacy.Decode(e.Protected)
		require.NoError(t, err)

		var h legacy.Protected
		require.NoError(t, json.Unmarshal(raw, &h))
		require.Equal(t, "xchacha20poly1305_ietf", h.Enc)
		require.Equal(t, "JWM/1.0", h.Typ)
		require.Equal(t, "Authcrypt", h.Alg)
		require.Len(t, h.Recipients, 1)
		require.Equal(t, rec1, h.Recipients[0].Header.KID)
		require.NotEmpty(t, h.Recipients[0].Header.Sender)
		require.NotEmpty(t, h.Recipients[0].Header.IV)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		env, err := New(senderWallet).Pack(payload, sender, []string{rec1})
		require.NoError(t, err)

		var e legacy.Envelope
		require.NoError(t, json.Unmarshal(env, &e))

		ct, err := legacy.Decode(e.CipherText)
		require.NoError(t, err)

		for i := range ct {
			flipped := append([]byte{}, ct...)
			flipped[i] ^= 0x01
			e2 := e
			e2.CipherText = legacy.Encode(flipped)

			raw, err := json.Marshal(e2)
			require.NoError(t, err)

			_, err = New(recipientWallet).Unpack(raw)
			require.ErrorIs(t, err, packer.ErrDecryption)
		}
	})

	t.Run("no recipient key held", func(t *testing.T) {
		env, err := New(senderWallet).Pack(payload, sender, []string{rec1})
		require.NoError(t, err)

		_, err = New(newWallet(t)).Unpack(env)
		require.ErrorIs(t, err, packer.ErrDecryption)
	})

	t.Run("pack errors", func(t *testing.T) {
		_, err := New(senderWallet).Pack(payload, "", []string{rec1})
		require.Error(t, err)

		_, err = New(senderWallet).Pack(payload, sender, nil)
		require.Error(t, err)

		_, err = New(senderWallet).Pack(payload, sender, []string{"bad"})
		require.Error(t, err)

		_, err = New(recipientWallet).Pack(payload, sender, []string{rec1})
		require.ErrorIs(t, err, wallet.ErrWalletRecordNotFound)
	})

	t.Run("unpack errors", func(t *testing.T) {
		_, err := New(recipientWallet).Unpack([]byte("{"))
		require.ErrorIs(t, err, packer.ErrDecryption)

		_, err = New(recipientWallet).Unpack([]byte(`{"protected":"!!"}`))
		require.ErrorIs(t, err, packer.ErrDecryption)

		anon, err := json.Marshal(legacy.Envelope{Protected: legacy.Encode([]byte(`{"typ":"JWM/1.0","alg":"Anoncrypt"}`))})
		require.NoError(t, err)

		_, err = New(recipientWallet).Unpack(anon)
		require.EqualError(t, err, "authcrypt unpack: message format Anoncrypt not supported")
	})
}
