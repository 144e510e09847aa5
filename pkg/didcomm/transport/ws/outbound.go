/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperledger/aries-framework-go/component/log"
	"nhooyr.io/websocket"
)

var logger = log.New("aries-framework/ws")

const (
	webSocketScheme = "ws"
	maxEnvelopeSize = 4 << 20
)

// Outbound sends each envelope over its own websocket connection and waits for the reply frame.
type Outbound struct{}

// NewOutbound creates a client for Outbound WS transport.
func NewOutbound() *Outbound {
	return &Outbound{}
}

// Accept checks for the url scheme.
func (o *Outbound) Accept(url string) bool {
	return strings.HasPrefix(url, webSocketScheme+"://") || strings.HasPrefix(url, webSocketScheme+"s://")
}

// Send writes envelope as one binary frame and returns the reply frame. An empty reply frame yields nil.
func (o *Outbound) Send(ctx context.Context, envelope []byte, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("url is mandatory")
	}

	client, _, err := websocket.Dial(ctx, url, nil) //nolint:bodyclose
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}

	defer closeConn(client)

	client.SetReadLimit(maxEnvelopeSize)

	if err = client.Write(ctx, websocket.MessageBinary, envelope); err != nil {
		return nil, fmt.Errorf("websocket write message: %w", err)
	}

	_, reply, err := client.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("websocket read message: %w", err)
	}

	if len(reply) == 0 {
		return nil, nil
	}

	return reply, nil
}

func closeConn(conn *websocket.Conn) {
	err := conn.Close(websocket.StatusNormalClosure, "closing the connection")
	if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		logger.Debugf("websocket close: %s", err)
	}
}
