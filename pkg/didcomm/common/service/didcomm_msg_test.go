/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDIDCommMsgMap_ID(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		msg      DIDCommMsgMap
	}{
		{
			name: "Empty (nil msg)",
		},
		{
			name: "Empty",
			msg:  DIDCommMsgMap{},
		},
		{
			name: "Bad type ID",
			msg:  DIDCommMsgMap{jsonID: map[int]int{}},
		},
		{
			name:     "Success",
			msg:      DIDCommMsgMap{jsonID: "ID"},
			expected: "ID",
		},
	}

	for i := range tests {
		tc := tests[i]
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.msg.ID())
		})
	}
}

func TestDIDCommMsgMap_ThreadID(t *testing.T) {
	tests := []struct {
		name     string
		msg      DIDCommMsgMap
		expected string
		err      error
	}{
		{
			name: "Empty (nil msg)",
			err:  ErrThreadIDNotFound,
		},
		{
			name: "No id",
			msg:  DIDCommMsgMap{jsonThread: map[string]interface{}{}},
			err:  ErrThreadIDNotFound,
		},
		{
			name:     "Falls back to @id",
			msg:      DIDCommMsgMap{jsonID: "ID", jsonThread: map[string]interface{}{jsonParentThreadID: "p"}},
			expected: "ID",
		},
		{
			name:     "Thread ID",
			msg:      DIDCommMsgMap{jsonID: "ID", jsonThread: map[string]interface{}{jsonThreadID: "thID"}},
			expected: "thID",
		},
	}

	for i := range tests {
		tc := tests[i]
		t.Run(tc.name, func(t *testing.T) {
			thID, err := tc.msg.ThreadID()
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.expected, thID)
		})
	}
}

func TestDIDCommMsgMap_ParentThreadID(t *testing.T) {
	require.Empty(t, DIDCommMsgMap(nil).ParentThreadID())
	require.Empty(t, DIDCommMsgMap{jsonThread: map[string]int{}}.ParentThreadID())
	require.Equal(t, "pthID",
		DIDCommMsgMap{jsonThread: map[string]interface{}{jsonParentThreadID: "pthID"}}.ParentThreadID())
}

func TestDIDCommMsgMap_Metadata(t *testing.T) {
	msg := DIDCommMsgMap{jsonID: "ID"}
	require.Equal(t, map[string]interface{}{}, msg.Metadata())

	msg.SetMetadata("connectionID", "abc")
	require.Equal(t, "abc", msg.Metadata()["connectionID"])

	raw, err := msg.MarshalWire()
	require.NoError(t, err)
	require.JSONEq(t, `{"@id":"ID"}`, string(raw))
}

func TestDIDCommMsgMap_Clone(t *testing.T) {
	require.Nil(t, DIDCommMsgMap(nil).Clone())

	msg := DIDCommMsgMap{jsonID: "a"}
	c := msg.Clone()
	c[jsonID] = "b"
	require.Equal(t, "a", msg.ID())
}

func TestParseDIDCommMsgMap(t *testing.T) {
	_, err := ParseDIDCommMsgMap([]byte("{"))
	require.ErrorIs(t, err, ErrInvalidJSON)

	_, err = ParseDIDCommMsgMap([]byte("null"))
	require.ErrorIs(t, err, ErrInvalidJSON)

	_, err = ParseDIDCommMsgMap([]byte("[]"))
	require.ErrorIs(t, err, ErrInvalidJSON)
}

func TestDIDCommMsgMap_Decode(t *testing.T) {
	type thread struct {
		ID string `json:"thid,omitempty"`
	}

	type Threaded struct {
		Thread *thread `json:"~thread,omitempty"`
	}

	type Test struct {
		ID   string          `json:"@id"`
		Time time.Time       `json:"time"`
		Raw  json.RawMessage `json:"raw,omitempty"`
		Num  int             `json:"num"`
		Threaded
	}

	now := time.Now().UTC()

	msg, err := ParseDIDCommMsgMap([]byte(`{"@id":"1","time":"` + now.Format(time.RFC3339Nano) +
		`","raw":{"a":[1,2]},"num":7,"~thread":{"thid":"t"}}`))
	require.NoError(t, err)

	actual := Test{}
	require.NoError(t, msg.Decode(&actual))
	require.Equal(t, "1", actual.ID)
	require.True(t, now.Equal(actual.Time))
	require.JSONEq(t, `{"a":[1,2]}`, string(actual.Raw))
	require.Equal(t, 7, actual.Num)
	require.NotNil(t, actual.Thread)
	require.Equal(t, "t", actual.Thread.ID)

	roundTrip, err := NewDIDCommMsgMap(actual)
	require.NoError(t, err)
	require.Equal(t, "1", roundTrip.ID())
}
