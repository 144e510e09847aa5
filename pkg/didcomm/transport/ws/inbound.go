/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"nhooyr.io/websocket"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport"
)

// NewInboundHandler upgrades requests to websockets and hands every frame to handler. Each frame is
// answered with one reply frame, empty when handler has nothing to return. The context passed to handler
// carries the connection as a transport.Conn so the agent can push to it later.
func NewInboundHandler(handler transport.InboundHandler) (http.Handler, error) {
	if handler == nil {
		return nil, errors.New("inbound handler: message handler is nil")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Errorf("failed to upgrade the connection: %s", err)

			return
		}

		c.SetReadLimit(maxEnvelopeSize)

		listen(r.Context(), newConn(c), handler)
	}), nil
}

func listen(ctx context.Context, conn *conn, handler transport.InboundHandler) {
	defer conn.close()

	ctx = transport.WithConn(ctx, conn)

	for {
		_, frame, err := conn.c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logger.Debugf("websocket read: %s", err)
			}

			return
		}

		reply, err := handler(ctx, frame)
		if err != nil {
			logger.Warnf("incoming msg processing failed: %s", err)
		}

		if err = conn.Write(ctx, reply); err != nil {
			logger.Errorf("error writing the reply: %s", err)

			return
		}
	}
}

type conn struct {
	c    *websocket.Conn
	done chan struct{}
	once sync.Once
}

func newConn(c *websocket.Conn) *conn {
	return &conn{c: c, done: make(chan struct{})}
}

func (c *conn) Write(ctx context.Context, envelope []byte) error {
	return c.c.Write(ctx, websocket.MessageBinary, envelope)
}

func (c *conn) Done() <-chan struct{} {
	return c.done
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		closeConn(c.c)
	})
}
