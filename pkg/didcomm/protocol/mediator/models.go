/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import "github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"

// Coordination route coordination protocol.
const Coordination = "coordinate-mediation"

// constants for route coordination spec types.
const (
	// CoordinationSpec defines the route coordination spec.
	CoordinationSpec = "https://didcomm.org/coordinate-mediation/1.0/"

	// RequestMsgType defines the route coordination request message type.
	RequestMsgType = CoordinationSpec + "mediate-request"

	// GrantMsgType defines the route coordination request grant message type.
	GrantMsgType = CoordinationSpec + "mediate-grant"

	// DenyMsgType defines the route coordination request deny message type.
	DenyMsgType = CoordinationSpec + "mediate-deny"

	// KeylistUpdateMsgType defines the route coordination key list update message type.
	KeylistUpdateMsgType = CoordinationSpec + "keylist-update"

	// KeylistUpdateResponseMsgType defines the route coordination key list update message response type.
	KeylistUpdateResponseMsgType = CoordinationSpec + "keylist-update-response"

	// KeylistQueryMsgType defines the route coordination key list query message type.
	KeylistQueryMsgType = CoordinationSpec + "keylist-query"

	// KeylistMsgType defines the route coordination key list message type.
	KeylistMsgType = CoordinationSpec + "keylist"
)

// constants for key list update processing
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0211-route-coordination#keylist-update
const (
	// ActionAdd adds a key.
	ActionAdd = "add"
	// ActionRemove removes a key.
	ActionRemove = "remove"

	// ResultSuccess the update was applied.
	ResultSuccess = "success"
	// ResultNoChange the key was already in the requested state.
	ResultNoChange = "no_change"
	// ResultClientError the update was invalid.
	ResultClientError = "client_error"
	// ResultServerError the update could not be stored.
	ResultServerError = "server_error"
)

// Request is the mediate-request message.
type Request struct {
	Type string `json:"@type,omitempty"`
	ID   string `json:"@id,omitempty"`
	decorator.Timed
}

// Grant is the mediate-grant message.
type Grant struct {
	Type        string   `json:"@type,omitempty"`
	ID          string   `json:"@id,omitempty"`
	Endpoint    string   `json:"endpoint,omitempty"`
	RoutingKeys []string `json:"routing_keys,omitempty"`
	decorator.Threaded
}

// Deny is the mediate-deny message.
type Deny struct {
	Type string `json:"@type,omitempty"`
	ID   string `json:"@id,omitempty"`
	decorator.Threaded
}

// KeylistUpdate route keylist update message.
type KeylistUpdate struct {
	Type    string   `json:"@type,omitempty"`
	ID      string   `json:"@id,omitempty"`
	Updates []Update `json:"updates,omitempty"`
}

// Update route key update.
type Update struct {
	RecipientKey string `json:"recipient_key,omitempty"`
	Action       string `json:"action,omitempty"`
}

// KeylistUpdateResponse route keylist update response message.
type KeylistUpdateResponse struct {
	Type    string           `json:"@type,omitempty"`
	ID      string           `json:"@id,omitempty"`
	Updated []UpdateResponse `json:"updated"`
	decorator.Threaded
}

// UpdateResponse route key update response.
type UpdateResponse struct {
	RecipientKey string `json:"recipient_key,omitempty"`
	Action       string `json:"action,omitempty"`
	Result       string `json:"result,omitempty"`
}

// KeylistQuery asks for the registered keys.
type KeylistQuery struct {
	Type     string      `json:"@type,omitempty"`
	ID       string      `json:"@id,omitempty"`
	Paginate *Paginate   `json:"paginate,omitempty"`
	Filter   interface{} `json:"filter,omitempty"`
}

// Paginate selects a page of a keylist.
type Paginate struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Keylist answers a keylist query.
type Keylist struct {
	Type       string       `json:"@type,omitempty"`
	ID         string       `json:"@id,omitempty"`
	Keys       []KeylistKey `json:"keys"`
	Pagination *Pagination  `json:"pagination,omitempty"`
	decorator.Threaded
}

// KeylistKey is one registered key.
type KeylistKey struct {
	RecipientKey string `json:"recipient_key"`
}

// Pagination describes the page returned in a keylist.
type Pagination struct {
	Count     int `json:"count"`
	Offset    int `json:"offset"`
	Remaining int `json:"remaining"`
}
