/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package outofband

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-didcomm-go/pkg/doc/did"
)

var logger = log.New("aries-framework/outofband")

// StoreName is the spi store holding invitation records.
const StoreName = "outofband"

const tagRole = "role"

// Role of an invitation record.
type Role string

const (
	// RoleSender marks invitations this agent created.
	RoleSender Role = "sender"
	// RoleReceiver marks invitations this agent received.
	RoleReceiver Role = "receiver"
)

var (
	// ErrInvalidInvitation is returned for invitations that cannot be used.
	ErrInvalidInvitation = errors.New("invalid out-of-band invitation")
	// ErrRecordNotFound is returned for unknown invitation ids.
	ErrRecordNotFound = errors.New("out-of-band record not found")
	// ErrUnsupportedAttachment is returned when a message cannot travel in requests~attach.
	ErrUnsupportedAttachment = errors.New("unsupported attached message")
)

// Record is a stored invitation.
type Record struct {
	ID           string      `json:"id"`
	Role         Role        `json:"role"`
	Invitation   *Invitation `json:"invitation"`
	ConnectionID string      `json:"connection_id,omitempty"`
}

// Service keeps the invitations an agent sent and received.
type Service struct {
	store storage.Store
}

// New creates the out-of-band service.
func New(provider storage.Provider) (*Service, error) {
	store, err := provider.OpenStore(StoreName)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", StoreName, err)
	}

	if err = provider.SetStoreConfig(StoreName, storage.StoreConfiguration{TagNames: []string{tagRole}}); err != nil {
		return nil, fmt.Errorf("set %s store config: %w", StoreName, err)
	}

	return &Service{store: store}, nil
}

type invitationOptions struct {
	label              string
	goal               string
	goalCode           string
	accept             []string
	handshakeProtocols []string
	services           []InvitationService
	attachments        []decorator.Attachment
	err                error
}

// InvitationOption customizes CreateInvitation.
type InvitationOption func(o *invitationOptions)

// WithLabel sets the invitation label.
func WithLabel(l string) InvitationOption {
	return func(o *invitationOptions) {
		o.label = l
	}
}

// WithGoal sets the goal and goal code.
func WithGoal(goal, goalCode string) InvitationOption {
	return func(o *invitationOptions) {
		o.goal, o.goalCode = goal, goalCode
	}
}

// WithAccept sets the accepted media types.
func WithAccept(accept ...string) InvitationOption {
	return func(o *invitationOptions) {
		o.accept = accept
	}
}

// WithHandshakeProtocols sets the handshake protocols.
func WithHandshakeProtocols(proto ...string) InvitationOption {
	return func(o *invitationOptions) {
		o.handshakeProtocols = proto
	}
}

// WithDIDService adds a DID service entry.
func WithDIDService(id string) InvitationOption {
	return func(o *invitationOptions) {
		o.services = append(o.services, InvitationService{DID: id})
	}
}

// WithInlineService adds an inline DIDComm service entry.
func WithInlineService(recipientKeys, routingKeys []string, endpoint string) InvitationOption {
	return func(o *invitationOptions) {
		o.services = append(o.services, InvitationService{Inline: &did.Service{
			ID:              inlineServiceID,
			Type:            did.DIDCommServiceType,
			RecipientKeys:   recipientKeys,
			RoutingKeys:     routingKeys,
			ServiceEndpoint: endpoint,
		}})
	}
}

// WithAttachedMessage attaches a credential offer or presentation request to requests~attach.
func WithAttachedMessage(msg interface{}) InvitationOption {
	return func(o *invitationOptions) {
		m, err := service.NewDIDCommMsgMap(msg)
		if err != nil {
			o.err = err

			return
		}

		id, err := attachID(m.Type())
		if err != nil {
			o.err = err

			return
		}

		raw, err := m.MarshalWire()
		if err != nil {
			o.err = err

			return
		}

		o.attachments = append(o.attachments, decorator.NewBase64Attachment(id, "application/json", raw))
	}
}

func attachID(msgType string) (string, error) {
	mt, err := service.ParseMessageType(msgType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedAttachment, err)
	}

	switch {
	case mt.Family == "issue-credential" && mt.Kind == "offer-credential":
		return CredentialOfferAttachID, nil
	case mt.Family == "present-proof" && mt.Kind == "request-presentation":
		return PresentationRequestAttachID, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAttachment, msgType)
	}
}

// CreateInvitation creates and stores an invitation. Invitations without handshake protocols or
// attached messages offer connections/1.0.
func (s *Service) CreateInvitation(opts ...InvitationOption) (*Invitation, error) {
	o := &invitationOptions{}

	for _, opt := range opts {
		opt(o)
	}

	if o.err != nil {
		return nil, fmt.Errorf("create invitation: %w", o.err)
	}

	if len(o.handshakeProtocols) == 0 && len(o.attachments) == 0 {
		o.handshakeProtocols = []string{ConnectionsProtocol}
	}

	inv := &Invitation{
		Type:               InvitationMsgType,
		ID:                 uuid.New().String(),
		Label:              o.label,
		Goal:               o.goal,
		GoalCode:           o.goalCode,
		Accept:             o.accept,
		HandshakeProtocols: o.handshakeProtocols,
		Services:           o.services,
		Requests:           o.attachments,
	}
	inv.SetOutTime(time.Now())

	if err := validate(inv); err != nil {
		return nil, err
	}

	if err := s.save(&Record{ID: inv.ID, Role: RoleSender, Invitation: inv}); err != nil {
		return nil, err
	}

	logger.Debugf("created invitation %s", inv.ID)

	return inv, nil
}

// ParseInvitation decodes an invitation.
func ParseInvitation(raw []byte) (*Invitation, error) {
	inv := &Invitation{}
	if err := json.Unmarshal(raw, inv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvitation, err)
	}

	if err := validate(inv); err != nil {
		return nil, err
	}

	return inv, nil
}

// ReceiveInvitation decodes and stores a received invitation.
func (s *Service) ReceiveInvitation(raw []byte) (*Invitation, error) {
	inv, err := ParseInvitation(raw)
	if err != nil {
		return nil, err
	}

	if err = s.save(&Record{ID: inv.ID, Role: RoleReceiver, Invitation: inv}); err != nil {
		return nil, err
	}

	logger.Debugf("received invitation %s", inv.ID)

	return inv, nil
}

// ReceiveInvitationURL receives the invitation carried in the oob query parameter of u.
func (s *Service) ReceiveInvitationURL(u string) (*Invitation, error) {
	raw, err := decodeInvitationURL(u)
	if err != nil {
		return nil, err
	}

	return s.ReceiveInvitation(raw)
}

// InvitationURL renders inv as domain?oob=<base64url invitation>.
func InvitationURL(inv *Invitation, domain string) (string, error) {
	u, err := url.Parse(domain)
	if err != nil {
		return "", fmt.Errorf("invitation url: %w", err)
	}

	raw, err := json.Marshal(inv)
	if err != nil {
		return "", fmt.Errorf("invitation url: %w", err)
	}

	q := u.Query()
	q.Set("oob", base64.URLEncoding.EncodeToString(raw))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func decodeInvitationURL(u string) ([]byte, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvitation, err)
	}

	val := parsed.Query().Get("oob")
	if val == "" {
		return nil, fmt.Errorf("%w: url has no oob query parameter", ErrInvalidInvitation)
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(val, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvitation, err)
	}

	return raw, nil
}

// ExtractAttachedMessage decodes the first requests~attach entry. It returns nil when there is none.
func (inv *Invitation) ExtractAttachedMessage() (service.DIDCommMsgMap, error) {
	if len(inv.Requests) == 0 {
		return nil, nil
	}

	a := inv.Requests[0]

	raw, err := a.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAttachment, err)
	}

	msg, err := service.ParseDIDCommMsgMap(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAttachment, err)
	}

	id, err := attachID(msg.Type())
	if err != nil {
		return nil, err
	}

	if a.ID != "" && a.ID != id {
		return nil, fmt.Errorf("%w: attachment %s carries %s", ErrUnsupportedAttachment, a.ID, msg.Type())
	}

	return msg, nil
}

func validate(inv *Invitation) error {
	if !service.IsType(inv.Type, service.NewMessageType(Name, 1, 1, "invitation")) {
		return fmt.Errorf("%w: @type %q", ErrInvalidInvitation, inv.Type)
	}

	if inv.ID == "" {
		return fmt.Errorf("%w: missing @id", ErrInvalidInvitation)
	}

	if len(inv.Services) == 0 {
		return fmt.Errorf("%w: no services", ErrInvalidInvitation)
	}

	if len(inv.HandshakeProtocols) == 0 && len(inv.Requests) == 0 {
		return fmt.Errorf("%w: neither handshake_protocols nor requests~attach", ErrInvalidInvitation)
	}

	return nil
}

// Get returns the record of invitation id.
func (s *Service) Get(id string) (*Record, error) {
	raw, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}

		return nil, fmt.Errorf("get record %s: %w", id, err)
	}

	rec := &Record{}
	if err = json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", id, err)
	}

	return rec, nil
}

// SetConnection links the connection an invitation produced to its record.
func (s *Service) SetConnection(id, connectionID string) error {
	rec, err := s.Get(id)
	if err != nil {
		return err
	}

	rec.ConnectionID = connectionID

	return s.save(rec)
}

// Records lists the records of one role.
func (s *Service) Records(role Role) ([]*Record, error) {
	iter, err := s.store.Query(tagRole + ":" + string(role))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	defer storage.Close(iter, logger)

	var records []*Record

	for {
		more, e := iter.Next()
		if e != nil {
			return nil, e
		}

		if !more {
			return records, nil
		}

		raw, e := iter.Value()
		if e != nil {
			return nil, e
		}

		rec := &Record{}
		if e = json.Unmarshal(raw, rec); e != nil {
			return nil, e
		}

		records = append(records, rec)
	}
}

func (s *Service) save(rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if err = s.store.Put(rec.ID, raw, storage.Tag{Name: tagRole, Value: string(rec.Role)}); err != nil {
		return fmt.Errorf("save record %s: %w", rec.ID, err)
	}

	return nil
}
