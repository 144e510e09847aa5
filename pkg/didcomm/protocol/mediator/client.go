/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
)

const (
	kindGrant                 = "mediate-grant"
	kindDeny                  = "mediate-deny"
	kindKeylistUpdateResponse = "keylist-update-response"
)

// ErrUnsolicited is returned for a mediate-grant or mediate-deny answering no request of this client.
var ErrUnsolicited = errors.New("no mediate-request on this thread")

// Client is the mediated side of coordinate-mediation. It builds the requests an agent sends its mediator
// and keeps the router configuration of the mediator that granted mediation.
type Client struct {
	mu      sync.RWMutex
	pending map[string]struct{}
	config  *Config
	granted []func(cfg *Config)
}

// NewClient creates a client. granted is called with the router configuration of every grant.
func NewClient(granted ...func(cfg *Config)) *Client {
	return &Client{pending: map[string]struct{}{}, granted: granted}
}

// Request creates a mediate-request. Only grants answering a request created here are accepted.
func (c *Client) Request() *Request {
	req := &Request{Type: RequestMsgType, ID: uuid.New().String()}
	req.SetOutTime(time.Now())

	c.mu.Lock()
	c.pending[req.ID] = struct{}{}
	c.mu.Unlock()

	return req
}

// KeylistUpdate creates a keylist-update applying action to keys.
func (c *Client) KeylistUpdate(action string, keys ...string) *KeylistUpdate {
	update := &KeylistUpdate{Type: KeylistUpdateMsgType, ID: uuid.New().String()}

	for _, k := range keys {
		update.Updates = append(update.Updates, Update{RecipientKey: k, Action: action})
	}

	return update
}

// Config returns the router configuration of the last grant.
func (c *Client) Config() (*Config, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.config, c.config != nil
}

// Accept reports whether msgType is an answer of a mediator.
func (c *Client) Accept(msgType string) bool {
	mt, err := service.ParseMessageType(msgType)
	if err != nil || mt.Major != 1 || mt.Family != Coordination {
		return false
	}

	switch mt.Kind {
	case kindGrant, kindDeny, kindKeylistUpdateResponse:
		return true
	default:
		return false
	}
}

// Handle processes an answer of the mediator authenticated with senderKey. Nothing is sent back.
func (c *Client) Handle(_ context.Context, senderKey string,
	msg service.DIDCommMsgMap) (service.DIDCommMsgMap, error) {
	mt, err := service.ParseMessageType(msg.Type())
	if err != nil {
		return nil, err
	}

	if senderKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnauthenticated, msg.Type())
	}

	switch mt.Kind {
	case kindGrant:
		return nil, c.handleGrant(senderKey, msg)
	case kindDeny:
		if err = c.answered(msg); err != nil {
			return nil, err
		}

		logger.Warnf("mediation denied by %s", senderKey)
	case kindKeylistUpdateResponse:
		resp := &KeylistUpdateResponse{}
		if err = msg.Decode(resp); err != nil {
			return nil, fmt.Errorf("decode keylist-update-response: %w", err)
		}

		for _, u := range resp.Updated {
			if u.Result != ResultSuccess && u.Result != ResultNoChange {
				logger.Warnf("keylist %s %s: %s", u.Action, u.RecipientKey, u.Result)
			}
		}
	}

	return nil, nil
}

func (c *Client) handleGrant(senderKey string, msg service.DIDCommMsgMap) error {
	cfg, err := ConfigFromGrant(msg)
	if err != nil {
		return err
	}

	if err = c.answered(msg); err != nil {
		return err
	}

	c.mu.Lock()
	c.config = cfg
	granted := c.granted
	c.mu.Unlock()

	logger.Infof("mediation granted by %s: endpoint %s, %d routing keys", senderKey, cfg.Endpoint(),
		len(cfg.Keys()))

	for _, f := range granted {
		f(cfg)
	}

	return nil
}

// answered retires the request msg answers.
func (c *Client) answered(msg service.DIDCommMsgMap) error {
	thID, err := msg.ThreadID()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[thID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsolicited, thID)
	}

	delete(c.pending, thID)

	return nil
}
