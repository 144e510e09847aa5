/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import (
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
)

// StatusRequest sent by the recipient to the mediator to request a status message.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0685-pickup-v2#status-request
type StatusRequest struct {
	Type         string `json:"@type,omitempty"`
	ID           string `json:"@id,omitempty"`
	RecipientKey string `json:"recipient_key,omitempty"`
	decorator.Threaded
}

// Status details about pending messages.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0685-pickup-v2#status
type Status struct {
	Type         string `json:"@type,omitempty"`
	ID           string `json:"@id,omitempty"`
	RecipientKey string `json:"recipient_key,omitempty"`
	MessageCount int    `json:"message_count"`
	LiveDelivery bool   `json:"live_delivery,omitempty"`
	decorator.Threaded
}

// DeliveryRequest a request to have up to Limit waiting messages delivered.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0685-pickup-v2#delivery-request
type DeliveryRequest struct {
	Type         string `json:"@type,omitempty"`
	ID           string `json:"@id,omitempty"`
	Limit        int    `json:"limit"`
	RecipientKey string `json:"recipient_key,omitempty"`
	decorator.Threaded
}

// Delivery carries waiting messages as attachments. Each attachment id is the message id to acknowledge.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0685-pickup-v2#message-delivery
type Delivery struct {
	Type         string                 `json:"@type,omitempty"`
	ID           string                 `json:"@id,omitempty"`
	RecipientKey string                 `json:"recipient_key,omitempty"`
	Attachments  []decorator.Attachment `json:"~attach"`
	decorator.Threaded
}

// MessagesReceived acknowledges delivered messages, which the mediator then deletes.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0685-pickup-v2#messages-received
type MessagesReceived struct {
	Type          string   `json:"@type,omitempty"`
	ID            string   `json:"@id,omitempty"`
	MessageIDList []string `json:"message_id_list"`
	decorator.Threaded
}

// LiveDeliveryChange turns pushing of new messages over the current session on or off.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0685-pickup-v2#live-mode
type LiveDeliveryChange struct {
	Type         string `json:"@type,omitempty"`
	ID           string `json:"@id,omitempty"`
	LiveDelivery bool   `json:"live_delivery"`
	decorator.Threaded
}
