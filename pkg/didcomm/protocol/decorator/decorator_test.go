/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package decorator

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAttachment_Bytes(t *testing.T) {
	payload := []byte(`{"cred_def_id":"1"}`)

	tests := []struct {
		name string
		data AttachmentData
		err  error
	}{
		{name: "std padded", data: AttachmentData{Base64: base64.StdEncoding.EncodeToString(payload)}},
		{name: "url raw", data: AttachmentData{Base64: base64.RawURLEncoding.EncodeToString(payload)}},
		{name: "inline json", data: AttachmentData{JSON: payload}},
		{name: "empty", err: ErrAttachmentData},
		{name: "invalid base64", data: AttachmentData{Base64: "***"}, err: ErrAttachmentData},
	}

	for i := range tests {
		tc := tests[i]
		t.Run(tc.name, func(t *testing.T) {
			a := Attachment{ID: "libindy-cred-offer-0", Data: tc.data}

			b, err := a.Bytes()
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)

				return
			}

			require.NoError(t, err)
			require.JSONEq(t, string(payload), string(b))
		})
	}
}

func TestNewAttachments(t *testing.T) {
	a := NewBase64Attachment("id", "application/json", []byte("x"))
	require.Equal(t, "eA==", a.Data.Base64)

	j, err := NewJSONAttachment("id", map[string]int{"a": 1})
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(j.Data.JSON))

	_, err = NewJSONAttachment("id", make(chan int))
	require.Error(t, err)
}

func TestMixins(t *testing.T) {
	type message struct {
		ID string `json:"@id"`
		Threaded
		Timed
		AckRequest
		Localized
	}

	msg := &message{ID: "1"}
	require.Empty(t, msg.ThreadID())
	require.Empty(t, msg.ParentThreadID())
	require.False(t, msg.AckRequested())

	msg.WithParent("invitation-id")
	msg.SetThread("thread-id")
	msg.SetOutTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	msg.RequestAck()

	require.Equal(t, "thread-id", msg.ThreadID())
	require.Equal(t, "invitation-id", msg.ParentThreadID())
	require.True(t, msg.AckRequested())

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"@id":"1",
		"~thread":{"thid":"thread-id","pthid":"invitation-id"},
		"~timing":{"out_time":"2024-01-02T03:04:05Z"},
		"~please_ack":{"on":[]}
	}`, string(raw))
}

func TestTransport_ReturnsRoute(t *testing.T) {
	tests := []struct {
		raw     string
		returns bool
	}{
		{raw: `{}`},
		{raw: `{"~transport":{"return_route":"none"}}`},
		{raw: `{"~transport":{"return_route":"all"}}`, returns: true},
		{raw: `{"~transport":{"return_route":"thread"}}`, returns: true},
	}

	for _, tc := range tests {
		trans := &Transport{}
		require.NoError(t, json.Unmarshal([]byte(tc.raw), trans))
		require.Equal(t, tc.returns, trans.ReturnsRoute(), tc.raw)
	}
}
