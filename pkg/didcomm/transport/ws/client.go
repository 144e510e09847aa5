/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ws

import (
	"context"
	"fmt"

	"nhooyr.io/websocket"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport"
)

// Client keeps a websocket open to a mediator or another agent. Replies and pushed envelopes are
// both handed to the handler given to Connect.
type Client struct {
	conn *conn
}

// Connect dials url and starts reading frames for handler. Empty frames are skipped.
func Connect(ctx context.Context, url string, handler transport.InboundHandler) (*Client, error) {
	c, _, err := websocket.Dial(ctx, url, nil) //nolint:bodyclose
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}

	c.SetReadLimit(maxEnvelopeSize)

	client := &Client{conn: newConn(c)}

	go client.read(handler)

	return client, nil
}

func (c *Client) read(handler transport.InboundHandler) {
	defer c.conn.close()

	ctx := context.Background()

	for {
		_, frame, err := c.conn.c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logger.Debugf("websocket read: %s", err)
			}

			return
		}

		if len(frame) == 0 {
			continue
		}

		reply, err := handler(ctx, frame)
		if err != nil {
			logger.Warnf("incoming msg processing failed: %s", err)

			continue
		}

		if len(reply) > 0 {
			if err = c.conn.Write(ctx, reply); err != nil {
				logger.Errorf("error writing the reply: %s", err)
			}
		}
	}
}

// Send writes envelope on the open connection.
func (c *Client) Send(ctx context.Context, envelope []byte) error {
	return c.conn.Write(ctx, envelope)
}

// Done is closed once the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

// Close closes the connection.
func (c *Client) Close() {
	c.conn.close()
}
