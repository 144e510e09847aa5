/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package decorator

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// SignatureType is the connection~sig signature scheme.
	SignatureType = "https://didcomm.org/signature/1.0/ed25519Sha512_single"

	// AckOnReceipt asks the recipient to acknowledge receipt.
	AckOnReceipt = "RECEIPT"
	// AckOnOutcome asks the recipient to acknowledge the outcome.
	AckOnOutcome = "OUTCOME"

	// TransportReturnRouteNone return route option none.
	TransportReturnRouteNone = "none"
	// TransportReturnRouteAll return route option all.
	TransportReturnRouteAll = "all"
	// TransportReturnRouteThread return route option thread.
	TransportReturnRouteThread = "thread"
)

// ErrAttachmentData is returned when an attachment carries no decodable data.
var ErrAttachmentData = errors.New("attachment has no usable data")

// Thread thread data.
type Thread struct {
	ID             string         `json:"thid,omitempty"`
	PID            string         `json:"pthid,omitempty"`
	SenderOrder    int            `json:"sender_order,omitempty"`
	ReceivedOrders map[string]int `json:"received_orders,omitempty"`
}

// Timing keeps message timing information.
type Timing struct {
	InTime        *time.Time `json:"in_time,omitempty"`
	OutTime       *time.Time `json:"out_time,omitempty"`
	StaleTime     *time.Time `json:"stale_time,omitempty"`
	ExpiresTime   *time.Time `json:"expires_time,omitempty"`
	DelayMilli    int        `json:"delay_milli,omitempty"`
	WaitUntilTime *time.Time `json:"wait_until_time,omitempty"`
}

// PleaseAck is the ~please_ack decorator.
type PleaseAck struct {
	On []string `json:"on"`
}

// L10n is the ~l10n localization decorator.
type L10n struct {
	Locale string `json:"locale,omitempty"`
}

// Signature is the ed25519 signature decorator used on connection~sig.
type Signature struct {
	Type       string `json:"@type,omitempty"`
	Signature  string `json:"signature,omitempty"`
	SignedData string `json:"sig_data,omitempty"`
	SignVerKey string `json:"signer,omitempty"`
}

// Transport transport decorator
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0092-transport-return-route
type Transport struct {
	ReturnRoute *ReturnRoute `json:"~transport,omitempty"`
}

// ReturnRoute works with Transport decorator. Acceptable values - "none", "all" or "thread".
type ReturnRoute struct {
	Value string `json:"return_route,omitempty"`
}

// ReturnsRoute reports whether the sender keeps the connection open for replies.
func (t *Transport) ReturnsRoute() bool {
	return t.ReturnRoute != nil &&
		(t.ReturnRoute.Value == TransportReturnRouteAll || t.ReturnRoute.Value == TransportReturnRouteThread)
}

// Attachment is intended to provide the possibility to include files, links or even JSON payload to the message.
// To find out more please visit https://github.com/hyperledger/aries-rfcs/tree/main/concepts/0017-attachments
type Attachment struct {
	ID          string         `json:"@id,omitempty"`
	MimeType    string         `json:"mime-type,omitempty"`
	FileName    string         `json:"filename,omitempty"`
	LastModTime *time.Time     `json:"lastmod_time,omitempty"`
	ByteCount   int64          `json:"byte_count,omitempty"`
	Description string         `json:"description,omitempty"`
	Data        AttachmentData `json:"data"`
}

// AttachmentData contains attachment payload.
type AttachmentData struct {
	Sha256 string          `json:"sha256,omitempty"`
	Links  []string        `json:"links,omitempty"`
	Base64 string          `json:"base64,omitempty"`
	JSON   json.RawMessage `json:"json,omitempty"`
}

// NewBase64Attachment wraps payload in a base64 attachment.
func NewBase64Attachment(id, mimeType string, payload []byte) Attachment {
	return Attachment{
		ID:       id,
		MimeType: mimeType,
		Data:     AttachmentData{Base64: base64.StdEncoding.EncodeToString(payload)},
	}
}

// NewJSONAttachment embeds v as inline json data.
func NewJSONAttachment(id string, v interface{}) (Attachment, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Attachment{}, fmt.Errorf("marshal attachment %s: %w", id, err)
	}

	return Attachment{ID: id, MimeType: "application/json", Data: AttachmentData{JSON: raw}}, nil
}

// Bytes returns the attachment payload. Base64 data is accepted with or without padding, in the
// standard or the URL alphabet.
func (a *Attachment) Bytes() ([]byte, error) {
	switch {
	case a.Data.Base64 != "":
		return decodeBase64(a.Data.Base64)
	case len(a.Data.JSON) > 0:
		return a.Data.JSON, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAttachmentData, a.ID)
	}
}

func decodeBase64(s string) ([]byte, error) {
	trimmed := strings.TrimRight(s, "=")

	for _, enc := range []*base64.Encoding{base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(trimmed); err == nil {
			return b, nil
		}
	}

	return nil, fmt.Errorf("%w: invalid base64", ErrAttachmentData)
}

// Threaded is embedded by messages that carry a ~thread decorator.
type Threaded struct {
	Thread *Thread `json:"~thread,omitempty"`
}

// ThreadID returns ~thread.thid.
func (t *Threaded) ThreadID() string {
	if t.Thread == nil {
		return ""
	}

	return t.Thread.ID
}

// ParentThreadID returns ~thread.pthid.
func (t *Threaded) ParentThreadID() string {
	if t.Thread == nil {
		return ""
	}

	return t.Thread.PID
}

// SetThread sets ~thread.thid, keeping any parent thread.
func (t *Threaded) SetThread(thID string) {
	if t.Thread == nil {
		t.Thread = &Thread{}
	}

	t.Thread.ID = thID
}

// WithParent sets ~thread.pthid.
func (t *Threaded) WithParent(pthID string) {
	if t.Thread == nil {
		t.Thread = &Thread{}
	}

	t.Thread.PID = pthID
}

// Timed is embedded by messages that carry a ~timing decorator.
type Timed struct {
	Timing *Timing `json:"~timing,omitempty"`
}

// SetOutTime stamps ~timing.out_time.
func (t *Timed) SetOutTime(at time.Time) {
	if t.Timing == nil {
		t.Timing = &Timing{}
	}

	utc := at.UTC()
	t.Timing.OutTime = &utc
}

// AckRequest is embedded by messages that may carry a ~please_ack decorator.
type AckRequest struct {
	PleaseAck *PleaseAck `json:"~please_ack,omitempty"`
}

// AckRequested reports whether the sender asked for an acknowledgement.
func (a *AckRequest) AckRequested() bool {
	return a.PleaseAck != nil
}

// RequestAck sets ~please_ack.
func (a *AckRequest) RequestAck(on ...string) {
	if on == nil {
		on = []string{}
	}

	a.PleaseAck = &PleaseAck{On: on}
}

// Localized is embedded by messages that may carry a ~l10n decorator.
type Localized struct {
	L10n *L10n `json:"~l10n,omitempty"`
}
