/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DIDCommPrefix is the canonical message type prefix.
	DIDCommPrefix = "https://didcomm.org/"
	// LegacyDIDCommPrefix is the message type prefix used before RFC 0348.
	LegacyDIDCommPrefix = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/"
)

// ErrUnknownMessageType is returned when a @type is not a DIDComm message type URI.
var ErrUnknownMessageType = errors.New("unknown message type")

// MessageType is a parsed @type URI: <prefix><family>/<major>.<minor>/<kind>.
type MessageType struct {
	Prefix string
	Family string
	Major  int
	Minor  int
	Kind   string
}

// ParseMessageType parses a @type URI.
func ParseMessageType(t string) (MessageType, error) {
	var mt MessageType

	switch {
	case strings.HasPrefix(t, DIDCommPrefix):
		mt.Prefix = DIDCommPrefix
	case strings.HasPrefix(t, LegacyDIDCommPrefix):
		mt.Prefix = LegacyDIDCommPrefix
	default:
		return mt, fmt.Errorf("%w: %q", ErrUnknownMessageType, t)
	}

	parts := strings.Split(strings.TrimPrefix(t, mt.Prefix), "/")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" { //nolint:gomnd
		return mt, fmt.Errorf("%w: %q", ErrUnknownMessageType, t)
	}

	version := strings.SplitN(parts[1], ".", 2) //nolint:gomnd
	if len(version) != 2 {                       //nolint:gomnd
		return mt, fmt.Errorf("%w: %q has no major.minor version", ErrUnknownMessageType, t)
	}

	major, err := strconv.Atoi(version[0])
	if err != nil {
		return mt, fmt.Errorf("%w: %q: major version: %v", ErrUnknownMessageType, t, err)
	}

	minor, err := strconv.Atoi(version[1])
	if err != nil {
		return mt, fmt.Errorf("%w: %q: minor version: %v", ErrUnknownMessageType, t, err)
	}

	mt.Family, mt.Major, mt.Minor, mt.Kind = parts[0], major, minor, parts[2]

	return mt, nil
}

// NewMessageType builds a canonical message type.
func NewMessageType(family string, major, minor int, kind string) MessageType {
	return MessageType{Prefix: DIDCommPrefix, Family: family, Major: major, Minor: minor, Kind: kind}
}

// String renders the canonical https://didcomm.org/ form.
func (t MessageType) String() string {
	return fmt.Sprintf("%s%s/%d.%d/%s", DIDCommPrefix, t.Family, t.Major, t.Minor, t.Kind)
}

// Is reports whether t names the same family, major version and kind as other. Prefix and
// minor version are ignored.
func (t MessageType) Is(other MessageType) bool {
	return t.Family == other.Family && t.Major == other.Major && t.Kind == other.Kind
}

// IsType parses raw and compares it with other. Unparseable types never match.
func IsType(raw string, other MessageType) bool {
	t, err := ParseMessageType(raw)

	return err == nil && t.Is(other)
}
