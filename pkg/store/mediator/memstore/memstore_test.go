/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memstore_test

import (
	"context"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/mediator/mediatortest"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/mediator/memstore"
)

func TestStore(t *testing.T) {
	mediatortest.TestAll(t, func(t *testing.T) mediator.Persistence {
		store, err := memstore.New(nil)
		require.NoError(t, err)

		return store
	})
}

func TestStore_SequenceSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	provider := mem.NewProvider()

	store, err := memstore.New(provider)
	require.NoError(t, err)

	require.NoError(t, store.CreateAccount(ctx, "auth", "r", nil))
	_, err = store.AddRecipient(ctx, "auth", "key")
	require.NoError(t, err)

	first, err := store.PersistForwardMessage(ctx, "key", []byte(`{"n":1}`))
	require.NoError(t, err)

	reopened, err := memstore.New(provider)
	require.NoError(t, err)

	second, err := reopened.PersistForwardMessage(ctx, "key", []byte(`{"n":2}`))
	require.NoError(t, err)

	msgs, err := reopened.RetrievePendingMessages(ctx, "auth", 0, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, first.ID, msgs[0].ID)
	require.Equal(t, second.ID, msgs[1].ID)
}
