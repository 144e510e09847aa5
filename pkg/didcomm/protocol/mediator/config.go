/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"fmt"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
)

// Config provides the router configuration a mediated agent advertises once its mediator granted
// mediation.
type Config struct {
	routerEndpoint string
	routingKeys    []string
}

// NewConfig creates new config instance.
func NewConfig(endpoint string, keys []string) *Config {
	return &Config{
		routerEndpoint: endpoint,
		routingKeys:    keys,
	}
}

// ConfigFromGrant reads the router configuration from a mediate-grant.
func ConfigFromGrant(msg service.DIDCommMsgMap) (*Config, error) {
	if msg.Type() != GrantMsgType {
		return nil, fmt.Errorf("not a mediate-grant: %s", msg.Type())
	}

	grant := &Grant{}
	if err := msg.Decode(grant); err != nil {
		return nil, fmt.Errorf("decode mediate-grant: %w", err)
	}

	return NewConfig(grant.Endpoint, grant.RoutingKeys), nil
}

// Endpoint returns router endpoint.
func (c *Config) Endpoint() string {
	return c.routerEndpoint
}

// Keys returns routing keys.
func (c *Config) Keys() []string {
	return c.routingKeys
}
