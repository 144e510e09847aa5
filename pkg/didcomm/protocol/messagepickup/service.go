/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
)

const (
	// MessagePickup defines the protocol name.
	MessagePickup = "messagepickup"
	// Spec defines the protocol spec.
	Spec = "https://didcomm.org/messagepickup/2.0/"
	// StatusRequestMsgType defines the status-request message type.
	StatusRequestMsgType = Spec + "status-request"
	// StatusMsgType defines the status message type.
	StatusMsgType = Spec + "status"
	// DeliveryRequestMsgType defines the delivery-request message type.
	DeliveryRequestMsgType = Spec + "delivery-request"
	// DeliveryMsgType defines the delivery message type.
	DeliveryMsgType = Spec + "delivery"
	// MessagesReceivedMsgType defines the messages-received message type.
	MessagesReceivedMsgType = Spec + "messages-received"
	// LiveDeliveryChangeMsgType defines the live-delivery-change message type.
	LiveDeliveryChangeMsgType = Spec + "live-delivery-change"
	// ProblemReportMsgType defines the problem-report message type.
	ProblemReportMsgType = Spec + "problem-report"

	// ProblemCodeLiveModeNotSupported is reported for live-delivery-change without an open session.
	ProblemCodeLiveModeNotSupported = "e.msg.live-mode-not-supported"

	// DefaultLimit caps a delivery-request without a positive limit.
	DefaultLimit = 10
)

var logger = log.New("aries-framework/messagepickup")

// Service for the message pickup protocol, mediator side. Retrieval never deletes a message; only
// messages-received does.
type Service struct {
	store    mediator.Persistence
	sessions *Sessions
	locks    *lockbox
}

// New returns the pickup service over the mediator's persistence.
func New(store mediator.Persistence) *Service {
	return &Service{store: store, sessions: NewSessions(), locks: newLockBox()}
}

// Sessions returns the registry transports register open sessions with.
func (s *Service) Sessions() *Sessions {
	return s.sessions
}

// Accept checks whether the service can handle the message type.
func (s *Service) Accept(msgType string) bool {
	mt, err := service.ParseMessageType(msgType)

	return err == nil && mt.Family == MessagePickup && mt.Major == 2
}

// Handle processes msg received from the agent authenticated with senderKey and returns the reply.
func (s *Service) Handle(ctx context.Context, senderKey string,
	msg service.DIDCommMsgMap) (service.DIDCommMsgMap, error) {
	if senderKey == "" {
		return nil, fmt.Errorf("%w: %s", mediator.ErrUnauthenticated, msg.Type())
	}

	mt, err := service.ParseMessageType(msg.Type())
	if err != nil {
		return nil, err
	}

	s.locks.Lock(senderKey)
	defer s.locks.Unlock(senderKey)

	var out interface{}

	switch mt.Kind {
	case "status-request":
		req := &StatusRequest{}
		if err = msg.Decode(req); err != nil {
			return nil, fmt.Errorf("status-request decode: %w", err)
		}

		out, err = s.status(ctx, senderKey, msg.ID(), optional(req.RecipientKey))
	case "delivery-request":
		out, err = s.handleDeliveryRequest(ctx, senderKey, msg)
	case "messages-received":
		out, err = s.handleMessagesReceived(ctx, senderKey, msg)
	case "live-delivery-change":
		out, err = s.handleLiveDeliveryChange(ctx, senderKey, msg)
	default:
		logger.Debugf("ignoring %s from %s", msg.Type(), senderKey)

		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return service.NewDIDCommMsgMap(out)
}

func (s *Service) status(ctx context.Context, authPubKey, thID string, recipientKey *string) (*Status, error) {
	count, err := s.store.RetrievePendingMessageCount(ctx, authPubKey, recipientKey)
	if err != nil {
		return nil, fmt.Errorf("pending message count: %w", err)
	}

	_, live := s.sessions.Live(authPubKey)

	status := &Status{
		Type:         StatusMsgType,
		ID:           uuid.New().String(),
		MessageCount: count,
		LiveDelivery: live,
	}
	status.SetThread(thID)

	if recipientKey != nil {
		status.RecipientKey = *recipientKey
	}

	return status, nil
}

func (s *Service) handleDeliveryRequest(ctx context.Context, authPubKey string,
	msg service.DIDCommMsgMap) (interface{}, error) {
	req := &DeliveryRequest{}
	if err := msg.Decode(req); err != nil {
		return nil, fmt.Errorf("delivery-request decode: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	recipientKey := optional(req.RecipientKey)

	msgs, err := s.store.RetrievePendingMessages(ctx, authPubKey, limit, recipientKey)
	if err != nil {
		return nil, fmt.Errorf("retrieve pending messages: %w", err)
	}

	if len(msgs) == 0 {
		return s.status(ctx, authPubKey, msg.ID(), recipientKey)
	}

	delivery := newDelivery(msgs...)
	delivery.RecipientKey = req.RecipientKey
	delivery.SetThread(msg.ID())

	return delivery, nil
}

func (s *Service) handleMessagesReceived(ctx context.Context, authPubKey string,
	msg service.DIDCommMsgMap) (interface{}, error) {
	received := &MessagesReceived{}
	if err := msg.Decode(received); err != nil {
		return nil, fmt.Errorf("messages-received decode: %w", err)
	}

	if err := s.store.DeleteMessages(ctx, authPubKey, received.MessageIDList); err != nil {
		return nil, fmt.Errorf("delete messages: %w", err)
	}

	return s.status(ctx, authPubKey, msg.ID(), nil)
}

func (s *Service) handleLiveDeliveryChange(ctx context.Context, authPubKey string,
	msg service.DIDCommMsgMap) (interface{}, error) {
	change := &LiveDeliveryChange{}
	if err := msg.Decode(change); err != nil {
		return nil, fmt.Errorf("live-delivery-change decode: %w", err)
	}

	if err := s.sessions.SetLive(authPubKey, change.LiveDelivery); errors.Is(err, ErrNoSession) {
		return model.NewProblemReport(ProblemReportMsgType, msg.ID(), ProblemCodeLiveModeNotSupported,
			"Connection does not support Live Delivery"), nil
	}

	return s.status(ctx, authPubKey, msg.ID(), nil)
}

// Notify pushes msg to the live session of authPubKey. The message stays queued until the agent sends
// messages-received.
func (s *Service) Notify(ctx context.Context, authPubKey string, msg *mediator.Message) bool {
	pusher, ok := s.sessions.Live(authPubKey)
	if !ok {
		return false
	}

	s.locks.Lock(authPubKey)
	defer s.locks.Unlock(authPubKey)

	delivery := newDelivery(*msg)
	delivery.RecipientKey = msg.RecipientKey

	out, err := service.NewDIDCommMsgMap(delivery)
	if err != nil {
		logger.Errorf("live delivery of %s: %s", msg.ID, err)

		return false
	}

	if err = pusher.Push(ctx, out); err != nil {
		logger.Warnf("live delivery of %s to %s: %s", msg.ID, authPubKey, err)

		return false
	}

	return true
}

func newDelivery(msgs ...mediator.Message) *Delivery {
	delivery := &Delivery{
		Type:        DeliveryMsgType,
		ID:          uuid.New().String(),
		Attachments: make([]decorator.Attachment, 0, len(msgs)),
	}

	for _, m := range msgs {
		delivery.Attachments = append(delivery.Attachments, decorator.Attachment{
			ID:   m.ID,
			Data: decorator.AttachmentData{JSON: m.Data},
		})
	}

	return delivery
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
