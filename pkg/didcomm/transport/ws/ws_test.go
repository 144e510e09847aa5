/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport"
)

func startServer(t *testing.T, handler transport.InboundHandler) string {
	t.Helper()

	h, err := NewInboundHandler(handler)
	require.NoError(t, err)

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestOutbound_Accept(t *testing.T) {
	o := NewOutbound()

	require.True(t, o.Accept("ws://localhost:8080"))
	require.True(t, o.Accept("wss://mediator.example.com"))
	require.False(t, o.Accept("http://localhost:8080"))
	require.False(t, o.Accept("wsx"))
}

func TestNewInboundHandler(t *testing.T) {
	h, err := NewInboundHandler(nil)
	require.Error(t, err)
	require.Nil(t, h)
}

func TestOutbound_Send(t *testing.T) {
	url := startServer(t, func(_ context.Context, envelope []byte) ([]byte, error) {
		switch string(envelope) {
		case "quiet":
			return nil, nil
		case "fail":
			return nil, errors.New("cannot unpack")
		default:
			return append([]byte("re:"), envelope...), nil
		}
	})

	o := NewOutbound()

	reply, err := o.Send(context.Background(), []byte("ping"), url)
	require.NoError(t, err)
	require.Equal(t, "re:ping", string(reply))

	reply, err = o.Send(context.Background(), []byte("quiet"), url)
	require.NoError(t, err)
	require.Nil(t, reply)

	reply, err = o.Send(context.Background(), []byte("fail"), url)
	require.NoError(t, err)
	require.Nil(t, reply)

	_, err = o.Send(context.Background(), []byte("ping"), "")
	require.Error(t, err)

	_, err = o.Send(context.Background(), []byte("ping"), "ws://127.0.0.1:1")
	require.Error(t, err)
}

func TestClient_Push(t *testing.T) {
	sessions := make(chan transport.Conn, 1)

	url := startServer(t, func(ctx context.Context, envelope []byte) ([]byte, error) {
		c, ok := transport.ConnFrom(ctx)
		require.True(t, ok)

		sessions <- c

		return nil, nil
	})

	received := make(chan string, 1)

	client, err := Connect(context.Background(), url, func(_ context.Context, envelope []byte) ([]byte, error) {
		received <- string(envelope)

		return nil, nil
	})
	require.NoError(t, err)

	require.NoError(t, client.Send(context.Background(), []byte("open")))

	var session transport.Conn

	select {
	case session = <-sessions:
	case <-time.After(time.Second):
		require.Fail(t, "server did not see the frame")
	}

	require.NoError(t, session.Write(context.Background(), []byte("pushed")))

	select {
	case msg := <-received:
		require.Equal(t, "pushed", msg)
	case <-time.After(time.Second):
		require.Fail(t, "push not received")
	}

	client.Close()

	select {
	case <-session.Done():
	case <-time.After(time.Second):
		require.Fail(t, "server session not closed")
	}

	<-client.Done()
}
