/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAck(t *testing.T) {
	ack := NewAck(NotificationAckMsgType, "thread")
	require.NotEmpty(t, ack.ID)
	require.Equal(t, "thread", ack.ThreadID())
	require.Equal(t, AckStatusOK, ack.Status)
}

func TestProblemReport(t *testing.T) {
	pr := NewProblemReport("https://didcomm.org/issue-credential/1.0/problem-report", "th", "issuance-abandoned",
		"no longer interested")
	require.Equal(t, "issuance-abandoned", pr.ReasonCode())
	require.Equal(t, "no longer interested", pr.Reason())
	require.Equal(t, "th", pr.ThreadID())

	legacy := &ProblemReport{ProblemCode: "request_not_accepted", Explain: "bad request"}
	require.Equal(t, "request_not_accepted", legacy.ReasonCode())
	require.Equal(t, "bad request", legacy.Reason())

	raw, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"problem-code":"request_not_accepted"`)
}

func TestForward(t *testing.T) {
	fwd := NewForward("key", []byte(`{"protected":"x"}`))

	raw, err := json.Marshal(fwd)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, ForwardMsgType, decoded["@type"])
	require.Equal(t, "key", decoded["to"])
	require.Equal(t, map[string]interface{}{"protected": "x"}, decoded["msg"])
}
