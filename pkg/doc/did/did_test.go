/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package did

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/internal/cryptoutil"
)

func TestDIDKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	did, kid := CreateDIDKey(pub)
	require.True(t, strings.HasPrefix(did, "did:key:z6Mk"))
	require.True(t, strings.HasPrefix(kid, did+"#"))

	raw, codec, err := PubKeyFromDIDKey(kid)
	require.NoError(t, err)
	require.Equal(t, ed25519PubCodec, codec)
	require.Equal(t, []byte(pub), raw)

	vk, err := ToVerkey(did)
	require.NoError(t, err)
	require.Equal(t, base58.Encode(pub), vk)

	vk, err = ToVerkey(base58.Encode(pub))
	require.NoError(t, err)
	require.Equal(t, base58.Encode(pub), vk)

	t.Run("x25519 did:key", func(t *testing.T) {
		curve, err := cryptoutil.PublicEd25519toCurve25519(pub)
		require.NoError(t, err)

		xdid, _ := CreateX25519DIDKey(curve)
		require.True(t, strings.HasPrefix(xdid, "did:key:z6LS"))

		_, err = ToVerkey(xdid)
		require.Error(t, err)
	})

	t.Run("invalid", func(t *testing.T) {
		_, _, err = PubKeyFromDIDKey("did:example:123")
		require.Error(t, err)

		_, _, err = PubKeyFromDIDKey("did:key:zInvalid")
		require.Error(t, err)
	})
}

func TestPeer2RoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	curve, err := cryptoutil.PublicEd25519toCurve25519(pub)
	require.NoError(t, err)

	did, err := CreatePeer2([][]byte{curve}, [][]byte{pub}, &Service{
		Type:            DIDCommMessagingServiceType,
		ServiceEndpoint: "https://faber.example.com",
		RoutingKeys:     []string{"did:key:z6Mkrouting"},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(did, "did:peer:2.Ez6LS"))

	doc, err := NewRegistry().Resolve(context.Background(), did)
	require.NoError(t, err)
	require.Equal(t, did, doc.ID)
	require.Len(t, doc.KeyAgreement, 1)
	require.Len(t, doc.VerificationMethod, 1)
	require.Len(t, doc.Service, 1)
	require.Equal(t, "https://faber.example.com", doc.Service[0].ServiceEndpoint)
	require.Equal(t, DIDCommMessagingServiceType, doc.Service[0].Type)

	_, raw, err := doc.FirstKeyAgreement()
	require.NoError(t, err)
	require.Equal(t, curve, raw)

	t.Run("malformed", func(t *testing.T) {
		_, err = NewRegistry().Resolve(context.Background(), "did:peer:2.X")
		require.Error(t, err)

		_, err = NewRegistry().Resolve(context.Background(), "did:peer:0z6Mk")
		require.ErrorIs(t, err, ErrUnsupportedMethod)
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve(context.Background(), "did:sov:123")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve(context.Background(), "not-a-did")
	require.Error(t, err)

	doc := NewLegacyDoc("did:sov:123", "verkey", "https://endpoint", nil)
	r.Store(doc)

	resolved, err := r.Resolve(context.Background(), "did:sov:123")
	require.NoError(t, err)
	require.Equal(t, doc, resolved)

	vk, err := resolved.RecipientVerkey()
	require.NoError(t, err)
	require.Equal(t, "verkey", vk)

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	didKey, _ := CreateDIDKey(pub)

	keyDoc, err := r.Resolve(context.Background(), didKey)
	require.NoError(t, err)
	require.Len(t, keyDoc.KeyAgreement, 1)
}

func TestLookupService(t *testing.T) {
	doc := NewLegacyDoc("did:sov:abc", "vk", "https://x", []string{"rk"})

	s, ok := LookupDIDCommService(doc)
	require.True(t, ok)
	require.Equal(t, LegacyServiceType, s.Type)
	require.Equal(t, []string{"rk"}, s.RoutingKeys)

	_, ok = LookupService(doc, DIDCommServiceType)
	require.False(t, ok)

	_, ok = LookupService(nil, DIDCommServiceType)
	require.False(t, ok)
}
