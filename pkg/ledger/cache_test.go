/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	ledgerMocks "github.com/hyperledger/aries-didcomm-go/pkg/internal/gomocks/ledger"
	"github.com/hyperledger/aries-didcomm-go/pkg/ledger"
)

func TestCachingReader(t *testing.T) {
	ctx := context.Background()

	t.Run("definitions are read once", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		next := ledgerMocks.NewMockReader(ctrl)
		next.EXPECT().GetSchema(gomock.Any(), "s1").Return(json.RawMessage(`{"name":"degree"}`), nil).Times(1)
		next.EXPECT().GetCredDef(gomock.Any(), "c1").Return(json.RawMessage(`{}`), nil).Times(1)
		next.EXPECT().GetRevRegDef(gomock.Any(), "r1").Return(json.RawMessage(`{}`), nil).Times(1)

		r := ledger.NewCachingReader(next)

		for i := 0; i < 3; i++ {
			raw, err := r.GetSchema(ctx, "s1")
			require.NoError(t, err)
			require.JSONEq(t, `{"name":"degree"}`, string(raw))

			_, err = r.GetCredDef(ctx, "c1")
			require.NoError(t, err)

			_, err = r.GetRevRegDef(ctx, "r1")
			require.NoError(t, err)
		}
	})

	t.Run("ids of different kinds do not collide", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		next := ledgerMocks.NewMockReader(ctrl)
		next.EXPECT().GetSchema(gomock.Any(), "x").Return(json.RawMessage(`"schema"`), nil)
		next.EXPECT().GetCredDef(gomock.Any(), "x").Return(json.RawMessage(`"def"`), nil)

		r := ledger.NewCachingReader(next)

		schema, err := r.GetSchema(ctx, "x")
		require.NoError(t, err)

		def, err := r.GetCredDef(ctx, "x")
		require.NoError(t, err)
		require.NotEqual(t, string(schema), string(def))
	})

	t.Run("errors are not cached", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		next := ledgerMocks.NewMockReader(ctrl)
		gomock.InOrder(
			next.EXPECT().GetCredDef(gomock.Any(), "c1").Return(nil, ledger.ErrLedgerItemNotFound),
			next.EXPECT().GetCredDef(gomock.Any(), "c1").Return(nil, errors.New("pool timeout")),
			next.EXPECT().GetCredDef(gomock.Any(), "c1").Return(json.RawMessage(`{}`), nil),
		)

		r := ledger.NewCachingReader(next)

		_, err := r.GetCredDef(ctx, "c1")
		require.ErrorIs(t, err, ledger.ErrLedgerItemNotFound)

		_, err = r.GetCredDef(ctx, "c1")
		require.EqualError(t, err, "pool timeout")

		_, err = r.GetCredDef(ctx, "c1")
		require.NoError(t, err)

		_, err = r.GetCredDef(ctx, "c1")
		require.NoError(t, err)
	})

	t.Run("revocation state is read through", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		next := ledgerMocks.NewMockReader(ctrl)
		next.EXPECT().GetRevStatusList(gomock.Any(), "r1", nil).Return(&ledger.RevStatusList{}, nil).Times(2)
		next.EXPECT().GetRevRegDelta(gomock.Any(), "r1", nil, nil).Return(&ledger.RevRegDelta{}, nil).Times(2)

		r := ledger.NewCachingReader(next)

		for i := 0; i < 2; i++ {
			_, err := r.GetRevStatusList(ctx, "r1", nil)
			require.NoError(t, err)

			_, err = r.GetRevRegDelta(ctx, "r1", nil, nil)
			require.NoError(t, err)
		}
	})

	t.Run("ttl and purge", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		next := ledgerMocks.NewMockReader(ctrl)
		next.EXPECT().GetSchema(gomock.Any(), "s1").Return(json.RawMessage(`{}`), nil).Times(3)

		r := ledger.NewCachingReader(next, ledger.WithCacheSize(10), ledger.WithCacheTTL(20*time.Millisecond))

		_, err := r.GetSchema(ctx, "s1")
		require.NoError(t, err)

		r.Purge()

		_, err = r.GetSchema(ctx, "s1")
		require.NoError(t, err)

		time.Sleep(40 * time.Millisecond)

		_, err = r.GetSchema(ctx, "s1")
		require.NoError(t, err)
	})

	t.Run("over a mem ledger", func(t *testing.T) {
		mem := ledger.NewMemLedger()
		mem.PutSchema("s1", json.RawMessage(`{"v":1}`))

		r := ledger.NewCachingReader(mem)

		raw, err := r.GetSchema(ctx, "s1")
		require.NoError(t, err)
		require.JSONEq(t, `{"v":1}`, string(raw))
	})
}
