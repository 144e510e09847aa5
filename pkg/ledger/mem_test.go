/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestMemLedger_Definitions(t *testing.T) {
	ctx := context.Background()
	l := NewMemLedger()

	l.PutSchema("s1", json.RawMessage(`{"name":"degree"}`))
	l.PutCredDef("c1", json.RawMessage(`{"tag":"default"}`))
	l.PutRevRegDef("r1", json.RawMessage(`{"max_cred_num":100}`), 10)

	tests := []struct {
		name string
		get  func(ctx context.Context, id string) (json.RawMessage, error)
		id   string
		want string
	}{
		{name: "schema", get: l.GetSchema, id: "s1", want: `{"name":"degree"}`},
		{name: "cred def", get: l.GetCredDef, id: "c1", want: `{"tag":"default"}`},
		{name: "rev reg def", get: l.GetRevRegDef, id: "r1", want: `{"max_cred_num":100}`},
		{name: "missing schema", get: l.GetSchema, id: "c1"},
		{name: "missing cred def", get: l.GetCredDef, id: "s1"},
	}

	for i := range tests {
		tc := tests[i]
		t.Run(tc.name, func(t *testing.T) {
			raw, err := tc.get(ctx, tc.id)
			if tc.want == "" {
				require.ErrorIs(t, err, ErrLedgerItemNotFound)

				return
			}

			require.NoError(t, err)
			require.JSONEq(t, tc.want, string(raw))
		})
	}

	t.Run("returned copies", func(t *testing.T) {
		raw, err := l.GetSchema(ctx, "s1")
		require.NoError(t, err)

		raw[0] = 'x'

		again, err := l.GetSchema(ctx, "s1")
		require.NoError(t, err)
		require.JSONEq(t, `{"name":"degree"}`, string(again))
	})
}

func TestMemLedger_Revocation(t *testing.T) {
	ctx := context.Background()
	l := NewMemLedger()

	require.ErrorIs(t, l.Revoke("r1", 20, 1), ErrLedgerItemNotFound)

	l.PutRevRegDef("r1", json.RawMessage(`{}`), 10)
	require.NoError(t, l.Revoke("r1", 20, 3, 1))
	require.NoError(t, l.Revoke("r1", 30, 1, 2))
	require.Error(t, l.Revoke("r1", 25, 4))

	t.Run("status list", func(t *testing.T) {
		latest, err := l.GetRevStatusList(ctx, "r1", nil)
		require.NoError(t, err)
		require.Equal(t, []int64{1, 2, 3}, latest.Revoked)
		require.Equal(t, int64(30), latest.Timestamp)

		at, err := l.GetRevStatusList(ctx, "r1", int64p(25))
		require.NoError(t, err)
		require.Equal(t, []int64{1, 3}, at.Revoked)
		require.Equal(t, int64(20), at.Timestamp)

		_, err = l.GetRevStatusList(ctx, "r1", int64p(5))
		require.ErrorIs(t, err, ErrLedgerItemNotFound)

		_, err = l.GetRevStatusList(ctx, "r2", nil)
		require.ErrorIs(t, err, ErrLedgerItemNotFound)
	})

	t.Run("delta", func(t *testing.T) {
		all, err := l.GetRevRegDelta(ctx, "r1", nil, nil)
		require.NoError(t, err)
		require.Equal(t, []int64{1, 2, 3}, all.Revoked)
		require.Empty(t, all.Issued)
		require.Equal(t, int64(30), all.To)

		window, err := l.GetRevRegDelta(ctx, "r1", int64p(20), int64p(35))
		require.NoError(t, err)
		require.Equal(t, []int64{2}, window.Revoked)
		require.Equal(t, int64(20), window.From)

		_, err = l.GetRevRegDelta(ctx, "r1", int64p(1), nil)
		require.ErrorIs(t, err, ErrLedgerItemNotFound)
	})
}
