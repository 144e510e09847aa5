/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
)

func TestClient_Grant(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	sender, _ := newVerkey(t)

	var granted []*mediator.Config

	client := mediator.NewClient(func(cfg *mediator.Config) {
		granted = append(granted, cfg)
	})

	_, ok := client.Config()
	require.False(t, ok)

	grant, err := svc.Handle(ctx, sender, service.MustDIDCommMsgMap(client.Request()))
	require.NoError(t, err)
	require.True(t, client.Accept(grant.Type()))

	out, err := client.Handle(ctx, "mediator-key", grant)
	require.NoError(t, err)
	require.Nil(t, out)

	cfg, ok := client.Config()
	require.True(t, ok)
	require.Equal(t, endpoint, cfg.Endpoint())
	require.Equal(t, []string{"mediator-key-1"}, cfg.Keys())
	require.Equal(t, []*mediator.Config{cfg}, granted)

	t.Run("grant is accepted once", func(t *testing.T) {
		_, err := client.Handle(ctx, "mediator-key", grant)
		require.ErrorIs(t, err, mediator.ErrUnsolicited)
	})

	t.Run("anonymous grant", func(t *testing.T) {
		_, err := client.Handle(ctx, "", grant)
		require.ErrorIs(t, err, mediator.ErrUnauthenticated)
	})
}

func TestClient_Deny(t *testing.T) {
	ctx := context.Background()
	sender, _ := newVerkey(t)
	svc, _ := newService(t, mediator.WithDenyPolicy(func(context.Context, string) bool { return true }))
	client := mediator.NewClient()

	deny, err := svc.Handle(ctx, sender, service.MustDIDCommMsgMap(client.Request()))
	require.NoError(t, err)
	require.Equal(t, mediator.DenyMsgType, deny.Type())

	_, err = client.Handle(ctx, "mediator-key", deny)
	require.NoError(t, err)

	_, ok := client.Config()
	require.False(t, ok)

	_, err = client.Handle(ctx, "mediator-key", deny)
	require.ErrorIs(t, err, mediator.ErrUnsolicited)
}

func TestClient_KeylistUpdate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	sender, _ := newVerkey(t)
	key, _ := newVerkey(t)
	client := mediator.NewClient()

	request(t, svc, sender)

	update := client.KeylistUpdate(mediator.ActionAdd, key)
	require.Equal(t, []mediator.Update{{RecipientKey: key, Action: mediator.ActionAdd}}, update.Updates)

	resp, err := svc.Handle(ctx, sender, service.MustDIDCommMsgMap(update))
	require.NoError(t, err)
	require.True(t, client.Accept(resp.Type()))

	out, err := client.Handle(ctx, "mediator-key", resp)
	require.NoError(t, err)
	require.Nil(t, out)

	keys, err := svc.Store().ListRecipientKeys(ctx, sender)
	require.NoError(t, err)
	require.Equal(t, []string{key}, keys)

	require.False(t, client.Accept(mediator.RequestMsgType))
	require.False(t, client.Accept(mediator.KeylistUpdateMsgType))
}
