/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packager"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport"
	mocktransport "github.com/hyperledger/aries-didcomm-go/pkg/internal/gomocks/transport"
	"github.com/hyperledger/aries-didcomm-go/pkg/wallet"
)

const endpoint = "https://bob.example.com/didcomm"

type party struct {
	packager *packager.Packager
	key      string
}

func newParty(t *testing.T) *party {
	t.Helper()

	w, err := wallet.New(mem.NewProvider())
	require.NoError(t, err)

	key, err := w.CreateKey()
	require.NoError(t, err)

	return &party{packager: packager.New(w), key: key}
}

func ping() service.DIDCommMsgMap {
	return service.DIDCommMsgMap{"@id": "1", "@type": "https://didcomm.org/trust_ping/1.0/ping"}
}

func expectSend(t *testing.T, ctrl *gomock.Controller, reply []byte) (*mocktransport.MockSender, *[]byte) {
	t.Helper()

	var sent []byte

	s := mocktransport.NewMockSender(ctrl)
	s.EXPECT().Accept(endpoint).Return(true).AnyTimes()
	s.EXPECT().Send(gomock.Any(), gomock.Any(), endpoint).DoAndReturn(
		func(_ context.Context, env []byte, _ string) ([]byte, error) {
			sent = env

			return reply, nil
		})

	return s, &sent
}

func TestDispatcher_Send(t *testing.T) {
	ctx := context.Background()
	alice, bob := newParty(t), newParty(t)

	t.Run("direct with return route", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		sender, sent := expectSend(t, ctrl, []byte("reply"))

		o := New(alice.packager, WithTransports(sender), WithReturnRoute(decorator.TransportReturnRouteAll))

		reply, err := o.Send(ctx, ping(), alice.key, &service.Destination{
			RecipientKeys:   []string{bob.key},
			ServiceEndpoint: endpoint,
		})
		require.NoError(t, err)
		require.Equal(t, "reply", string(reply))

		env, err := bob.packager.Unpack(ctx, *sent)
		require.NoError(t, err)
		require.Equal(t, alice.key, env.FromKey)
		require.Equal(t, packager.VersionLegacy, env.Version)

		var trans decorator.Transport
		require.NoError(t, json.Unmarshal(env.Message, &trans))
		require.True(t, trans.ReturnsRoute())
	})

	t.Run("through a mediator", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mediator := newParty(t)
		sender, sent := expectSend(t, ctrl, nil)

		o := New(alice.packager, WithTransports(sender), WithVersion(packager.VersionModern),
			WithReturnRoute(decorator.TransportReturnRouteAll))

		_, err := o.Send(ctx, ping(), alice.key, &service.Destination{
			RecipientKeys:   []string{bob.key},
			ServiceEndpoint: endpoint,
			RoutingKeys:     []string{mediator.key},
		})
		require.NoError(t, err)

		outer, err := mediator.packager.Unpack(ctx, *sent)
		require.NoError(t, err)
		require.Empty(t, outer.FromKey)

		fwd := &model.Forward{}
		require.NoError(t, json.Unmarshal(outer.Message, fwd))
		require.Equal(t, bob.key, fwd.To)

		inner, err := bob.packager.Unpack(ctx, fwd.Msg)
		require.NoError(t, err)
		require.Equal(t, packager.VersionModern, inner.Version)
		require.NotContains(t, string(inner.Message), "~transport")
	})

	t.Run("no transport for endpoint", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s := mocktransport.NewMockSender(ctrl)
		s.EXPECT().Accept(gomock.Any()).Return(false)

		_, err := New(alice.packager, WithTransports(s)).Send(ctx, ping(), alice.key, &service.Destination{
			RecipientKeys:   []string{bob.key},
			ServiceEndpoint: "ws://bob",
		})
		require.ErrorIs(t, err, transport.ErrNoSender)
	})

	t.Run("transport fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s := mocktransport.NewMockSender(ctrl)
		s.EXPECT().Accept(endpoint).Return(true)
		s.EXPECT().Send(gomock.Any(), gomock.Any(), endpoint).Return(nil, errors.New("connection refused"))

		_, err := New(alice.packager, WithTransports(s)).Send(ctx, ping(), alice.key, &service.Destination{
			RecipientKeys:   []string{bob.key},
			ServiceEndpoint: endpoint,
		})
		require.Error(t, err)
	})

	t.Run("invalid destination", func(t *testing.T) {
		_, err := New(alice.packager).Send(ctx, ping(), alice.key, nil)
		require.Error(t, err)

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		s := mocktransport.NewMockSender(ctrl)
		s.EXPECT().Accept(endpoint).Return(true)

		_, err = New(alice.packager, WithTransports(s)).Send(ctx, ping(), alice.key,
			&service.Destination{ServiceEndpoint: endpoint})
		require.Error(t, err)
	})
}
