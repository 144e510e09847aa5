/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package fsm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type (
	state string
	event string
)

func TestTable(t *testing.T) {
	table := NewTable[state, event]("demo").
		Add("initial", "start", "running").
		AddFrom([]state{"initial", "running"}, "fail", "failed").
		Add("running", "stop", "done")

	next, err := table.Next("initial", "start")
	require.NoError(t, err)
	require.Equal(t, state("running"), next)

	next, err = table.Next("running", "fail")
	require.NoError(t, err)
	require.Equal(t, state("failed"), next)

	_, err = table.Next("initial", "stop")
	require.ErrorIs(t, err, ErrUnexpectedMessage)

	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, "demo", pe.Protocol)
	require.Equal(t, "initial", pe.State)
	require.Equal(t, "stop", pe.Kind)
	require.EqualError(t, err, "demo: stop in state initial: unexpected message")

	require.True(t, table.Can("running", "stop"))
	require.False(t, table.Can("done", "stop"))
	require.True(t, table.Terminal("done"))
	require.True(t, table.Terminal("failed"))
	require.False(t, table.Terminal("initial"))
}

func TestCheckThread(t *testing.T) {
	require.NoError(t, CheckThread("", "anything"))
	require.NoError(t, CheckThread("a", "a"))
	require.ErrorIs(t, CheckThread("a", "b"), ErrThreadMismatch)
	require.ErrorIs(t, CheckThread("a", ""), ErrThreadMismatch)
}
