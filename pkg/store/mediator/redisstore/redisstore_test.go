/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package redisstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/mediator/mediatortest"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/mediator/redisstore"
)

const redisURLEnv = "MEDIATOR_TEST_REDIS_URL"

func TestStore(t *testing.T) {
	url := os.Getenv(redisURLEnv)
	if url == "" {
		t.Skipf("%s not set", redisURLEnv)
	}

	mediatortest.TestAll(t, func(t *testing.T) mediator.Persistence {
		store, err := redisstore.Dial(context.Background(), url,
			redisstore.WithPrefix("mediatortest:"+uuid.New().String()+":"))
		require.NoError(t, err)

		t.Cleanup(func() { require.NoError(t, store.Close()) })

		return store
	})
}

func TestDial(t *testing.T) {
	_, err := redisstore.Dial(context.Background(), "not a url")
	require.Error(t, err)
}
