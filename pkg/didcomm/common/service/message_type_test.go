/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMessageType(t *testing.T) {
	t.Run("canonical", func(t *testing.T) {
		mt, err := ParseMessageType("https://didcomm.org/connections/1.0/request")
		require.NoError(t, err)
		require.Equal(t, MessageType{
			Prefix: DIDCommPrefix, Family: "connections", Major: 1, Minor: 0, Kind: "request",
		}, mt)
		require.Equal(t, "https://didcomm.org/connections/1.0/request", mt.String())
	})

	t.Run("legacy prefix", func(t *testing.T) {
		mt, err := ParseMessageType("did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/trust_ping/1.0/ping")
		require.NoError(t, err)
		require.Equal(t, "trust_ping", mt.Family)
		require.Equal(t, "https://didcomm.org/trust_ping/1.0/ping", mt.String())
	})

	t.Run("minor version is ignored when comparing", func(t *testing.T) {
		require.True(t, IsType("https://didcomm.org/out-of-band/1.0/invitation",
			NewMessageType("out-of-band", 1, 1, "invitation")))
		require.False(t, IsType("https://didcomm.org/out-of-band/2.0/invitation",
			NewMessageType("out-of-band", 1, 1, "invitation")))
		require.False(t, IsType("garbage", NewMessageType("out-of-band", 1, 1, "invitation")))
	})

	for _, bad := range []string{
		"",
		"https://example.org/connections/1.0/request",
		"https://didcomm.org/connections/request",
		"https://didcomm.org/connections/1/request",
		"https://didcomm.org/connections/a.0/request",
		"https://didcomm.org/connections/1.b/request",
		"https://didcomm.org//1.0/request",
		"https://didcomm.org/connections/1.0/",
	} {
		_, err := ParseMessageType(bad)
		require.ErrorIs(t, err, ErrUnknownMessageType, bad)
	}
}
