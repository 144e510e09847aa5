/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

const (
	jsonID             = "@id"
	jsonType           = "@type"
	jsonThread         = "~thread"
	jsonThreadID       = "thid"
	jsonParentThreadID = "pthid"
	jsonMetadata       = "_internal_metadata"
)

var (
	// ErrThreadIDNotFound is returned when a message carries neither ~thread.thid nor @id.
	ErrThreadIDNotFound = errors.New("threadID not found")
	// ErrInvalidJSON is returned when a payload is not a JSON object.
	ErrInvalidJSON = errors.New("invalid json")
)

// DIDCommMsgMap is a decoded, not yet typed, DIDComm message.
type DIDCommMsgMap map[string]interface{}

// ParseDIDCommMsgMap returns the message from the bytes.
func ParseDIDCommMsgMap(payload []byte) (DIDCommMsgMap, error) {
	var msg DIDCommMsgMap

	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if msg == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrInvalidJSON)
	}

	return msg, nil
}

// NewDIDCommMsgMap converts a typed message into a DIDCommMsgMap.
func NewDIDCommMsgMap(v interface{}) (DIDCommMsgMap, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	return ParseDIDCommMsgMap(raw)
}

// MustDIDCommMsgMap is NewDIDCommMsgMap for values known to marshal, like the typed messages of this module.
func MustDIDCommMsgMap(v interface{}) DIDCommMsgMap {
	msg, err := NewDIDCommMsgMap(v)
	if err != nil {
		panic(err)
	}

	return msg
}

// ID returns the message @id.
func (m DIDCommMsgMap) ID() string {
	return m.stringField(jsonID)
}

// Type returns the message @type.
func (m DIDCommMsgMap) Type() string {
	return m.stringField(jsonType)
}

func (m DIDCommMsgMap) stringField(name string) string {
	if m == nil {
		return ""
	}

	res, _ := m[name].(string) //nolint:errcheck

	return res
}

// HasThread reports whether the message carries a ~thread decorator with a thid.
func (m DIDCommMsgMap) HasThread() bool {
	thread, ok := m[jsonThread].(map[string]interface{})
	if !ok {
		return false
	}

	thID, _ := thread[jsonThreadID].(string) //nolint:errcheck

	return thID != ""
}

// ThreadID returns ~thread.thid, or @id when the message opens its own thread.
func (m DIDCommMsgMap) ThreadID() (string, error) {
	if m == nil {
		return "", ErrThreadIDNotFound
	}

	if thread, ok := m[jsonThread].(map[string]interface{}); ok {
		if thID, _ := thread[jsonThreadID].(string); thID != "" { //nolint:errcheck
			return thID, nil
		}
	}

	if id := m.ID(); id != "" {
		return id, nil
	}

	return "", ErrThreadIDNotFound
}

// ParentThreadID returns ~thread.pthid.
func (m DIDCommMsgMap) ParentThreadID() string {
	if m == nil {
		return ""
	}

	thread, ok := m[jsonThread].(map[string]interface{})
	if !ok {
		return ""
	}

	pthID, _ := thread[jsonParentThreadID].(string) //nolint:errcheck

	return pthID
}

// Metadata returns the internal metadata attached to the message, never sent on the wire.
func (m DIDCommMsgMap) Metadata() map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}

	md, ok := m[jsonMetadata].(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}

	return md
}

// SetMetadata stores an internal metadata value.
func (m DIDCommMsgMap) SetMetadata(key string, val interface{}) {
	md := m.Metadata()
	md[key] = val
	m[jsonMetadata] = md
}

// Clone returns a shallow copy of the message.
func (m DIDCommMsgMap) Clone() DIDCommMsgMap {
	if m == nil {
		return m
	}

	msg := DIDCommMsgMap{}
	for k, v := range m {
		msg[k] = v
	}

	return msg
}

// MarshalWire serialises the message without its internal metadata.
func (m DIDCommMsgMap) MarshalWire() ([]byte, error) {
	msg := m.Clone()
	delete(msg, jsonMetadata)

	return json.Marshal(msg)
}

// Decode converts the message into the typed struct v, using its json tags.
func (m DIDCommMsgMap) Decode(v interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(timeHook, rawMessageHook),
		TagName:    "json",
		Squash:     true,
		Result:     v,
	})
	if err != nil {
		return err
	}

	if err = decoder.Decode(m); err != nil {
		return fmt.Errorf("decode %s: %w", m.Type(), err)
	}

	return nil
}

func timeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Time{}) || from.Kind() != reflect.String {
		return data, nil
	}

	s, _ := data.(string) //nolint:errcheck
	if s == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339Nano, s)
}

// rawMessageHook keeps arbitrary JSON values (attachment json data, credential payloads) intact.
func rawMessageHook(_, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(json.RawMessage{}) {
		return data, nil
	}

	return json.Marshal(data)
}
