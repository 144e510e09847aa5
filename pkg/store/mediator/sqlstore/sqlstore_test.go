/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/mediator/mediatortest"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/mediator/sqlstore"
)

func TestStore(t *testing.T) {
	mediatortest.TestAll(t, func(t *testing.T) mediator.Persistence {
		store, err := sqlstore.Open(sqlstore.MemoryDSN)
		require.NoError(t, err)

		t.Cleanup(func() { require.NoError(t, store.Close()) })

		return store
	})
}

func TestStore_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mediator.db")

	store, err := sqlstore.Open(path)
	require.NoError(t, err)

	require.NoError(t, store.CreateAccount(ctx, "auth", "r", nil))
	_, err = store.AddRecipient(ctx, "auth", "key")
	require.NoError(t, err)

	queued, err := store.PersistForwardMessage(ctx, "key", []byte(`{"n":1}`))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlstore.Open(path)
	require.NoError(t, err)

	defer func() { require.NoError(t, reopened.Close()) }()

	msgs, err := reopened.RetrievePendingMessages(ctx, "auth", 0, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, queued.ID, msgs[0].ID)
	require.JSONEq(t, `{"n":1}`, string(msgs[0].Data))
}
