/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/doc/did"
	"github.com/hyperledger/aries-didcomm-go/pkg/internal/cryptoutil"
)

func TestCreateDestination(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	vk := base58.Encode(pub)

	t.Run("legacy doc", func(t *testing.T) {
		routing, _ := did.CreateDIDKey(pub)

		dest, err := CreateDestination(did.NewLegacyDoc("did:sov:abc", vk, "https://x", []string{routing}))
		require.NoError(t, err)
		require.Equal(t, []string{vk}, dest.RecipientKeys)
		require.Equal(t, []string{vk}, dest.RoutingKeys)
		require.Equal(t, "https://x", dest.ServiceEndpoint)
	})

	t.Run("peer doc", func(t *testing.T) {
		curve, err := cryptoutil.PublicEd25519toCurve25519(pub)
		require.NoError(t, err)

		peer, err := did.CreatePeer2([][]byte{curve}, [][]byte{pub}, &did.Service{
			Type: did.DIDCommMessagingServiceType, ServiceEndpoint: "https://peer",
		})
		require.NoError(t, err)

		dest, err := GetDestination(context.Background(), peer, did.NewRegistry())
		require.NoError(t, err)
		require.Equal(t, []string{vk}, dest.RecipientKeys)
		require.Equal(t, "https://peer", dest.ServiceEndpoint)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := CreateDestination(&did.Doc{ID: "did:x:1"})
		require.Error(t, err)

		_, err = CreateDestination(&did.Doc{ID: "did:x:1", Service: []did.Service{{Type: did.DIDCommServiceType}}})
		require.Error(t, err)

		_, err = CreateDestination(&did.Doc{ID: "did:x:1", Service: []did.Service{{
			Type: did.DIDCommServiceType, ServiceEndpoint: "https://x",
		}}})
		require.Error(t, err)

		_, err = CreateDestination(&did.Doc{ID: "did:x:1", Service: []did.Service{{
			Type: did.DIDCommServiceType, ServiceEndpoint: "https://x", RecipientKeys: []string{"#missing"},
		}}})
		require.Error(t, err)

		_, err = GetDestination(context.Background(), "did:sov:unknown", did.NewRegistry())
		require.Error(t, err)
	})
}
