/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport"
)

func TestOutbound_Accept(t *testing.T) {
	o := NewOutbound()

	require.True(t, o.Accept("http://localhost:8080"))
	require.True(t, o.Accept("https://agent.example.com/didcomm"))
	require.False(t, o.Accept("ws://localhost:8080"))
	require.False(t, o.Accept("didcomm:transport/queue"))
}

func TestOutboundOpts(t *testing.T) {
	o := NewOutbound(WithTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}), WithTimeout(time.Second))
	require.Equal(t, time.Second, o.client.Timeout)
	require.NotNil(t, o.client.Transport)

	client := &http.Client{}
	o = NewOutbound(WithHTTPClient(client), WithRetries(1, time.Millisecond))
	require.Same(t, client, o.client)
	require.EqualValues(t, 1, o.retries)
}

func TestOutbound_Send(t *testing.T) {
	t.Run("success over tls", func(t *testing.T) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, transport.MediaTypeEncryptedEnvelope, r.Header.Get("Content-Type"))

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.Equal(t, `{"protected":"x"}`, string(body))

			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("reply"))
		}))
		defer server.Close()

		o := NewOutbound(WithHTTPClient(server.Client()))

		reply, err := o.Send(context.Background(), []byte(`{"protected":"x"}`), server.URL)
		require.NoError(t, err)
		require.Equal(t, "reply", string(reply))
	})

	t.Run("accepted without reply", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		reply, err := NewOutbound().Send(context.Background(), []byte("env"), server.URL)
		require.NoError(t, err)
		require.Empty(t, reply)
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls int32

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)

				return
			}

			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		_, err := NewOutbound(WithRetries(3, time.Millisecond)).Send(context.Background(), []byte("env"), server.URL)
		require.NoError(t, err)
		require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	})

	t.Run("gives up after retries", func(t *testing.T) {
		var calls int32

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := NewOutbound(WithRetries(2, time.Millisecond)).Send(context.Background(), []byte("env"), server.URL)
		require.ErrorIs(t, err, ErrStatus)
		require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls int32

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		_, err := NewOutbound(WithRetries(5, time.Millisecond)).Send(context.Background(), []byte("env"), server.URL)
		require.ErrorIs(t, err, ErrStatus)
		require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := NewOutbound(WithRetries(0, time.Millisecond)).Send(context.Background(), []byte("env"), "http://[::1")
		require.Error(t, err)
	})
}
