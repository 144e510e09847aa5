/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
)

const testHost = "localhost:8080"

type mockServer struct {
	serve func(h http.Handler)
	err   error
}

func (s *mockServer) ListenAndServe(host string, handler http.Handler, certFile, keyFile string) error {
	if s.serve != nil {
		s.serve(handler)
	}

	return s.err
}

func TestStartCmdContents(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	require.Equal(t, "start", startCmd.Use)
	require.Equal(t, "Start a mediator", startCmd.Short)
	require.Equal(t, "Start a DIDComm mediator with message pickup", startCmd.Long)

	checkFlagPropertiesCorrect(t, startCmd, hostURLFlagName, hostURLFlagShorthand, hostURLFlagUsage, "")
	checkFlagPropertiesCorrect(t, startCmd, routingKeysFlagName, routingKeysFlagShorthand,
		routingKeysFlagUsage, "[]")
	checkFlagPropertiesCorrect(t, startCmd, databaseTypeFlagName, databaseTypeFlagShorthand,
		databaseTypeFlagUsage, "")
	checkFlagPropertiesCorrect(t, startCmd, policyFlagName, "", policyFlagUsage, "")
}

func checkFlagPropertiesCorrect(t *testing.T, cmd *cobra.Command, flagName,
	flagShorthand, flagUsage, expectedVal string) {
	flag := cmd.Flag(flagName)

	require.NotNil(t, flag)
	require.Equal(t, flagName, flag.Name)
	require.Equal(t, flagShorthand, flag.Shorthand)
	require.Equal(t, flagUsage, flag.Usage)
	require.Equal(t, expectedVal, flag.Value.String())

	flagAnnotations := flag.Annotations
	require.Nil(t, flagAnnotations)
}

func TestStartCmdWithBlankHostArg(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{"--" + hostURLFlagName, "", "--" + databaseTypeFlagName, databaseTypeMemOption})

	err = startCmd.Execute()
	require.Equal(t, errMissingHost.Error(), err.Error())
}

func TestStartCmdWithMissingHostArg(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{"--" + databaseTypeFlagName, databaseTypeMemOption})

	err = startCmd.Execute()
	require.Equal(t,
		"Neither host-url (command line flag) nor MEDIATOR_HOST_URL (environment variable) have been set.",
		err.Error())
}

func TestStartCmdWithoutDBType(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{"--" + hostURLFlagName, testHost})

	err = startCmd.Execute()
	require.Equal(t,
		"Neither database-type (command line flag) nor MEDIATOR_DATABASE_TYPE (environment variable) have been set.",
		err.Error())
}

func TestStartCmdInvalidArgs(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		errMsg string
	}{
		{
			name:   "unknown database type",
			args:   []string{"--" + databaseTypeFlagName, "data1"},
			errMsg: "database type not set to a valid type",
		},
		{
			name:   "invalid persistence policy",
			args:   []string{"--" + databaseTypeFlagName, databaseTypeMemOption, "--" + policyFlagName, "drop"},
			errMsg: "invalid persistence policy",
		},
		{
			name: "invalid transport return route",
			args: []string{
				"--" + databaseTypeFlagName, databaseTypeMemOption, "--" + transportReturnRouteFlagName, "some",
			},
			errMsg: "invalid transport return route option",
		},
		{
			name:   "invalid log level",
			args:   []string{"--" + databaseTypeFlagName, databaseTypeMemOption, "--" + logLevelFlagName, "INVALID"},
			errMsg: "failed to parse log level",
		},
		{
			name: "invalid database timeout",
			args: []string{
				"--" + databaseTypeFlagName, databaseTypeMemOption, "--" + databaseTimeoutFlagName, "-1",
			},
			errMsg: "failed to parse db timeout",
		},
		{
			name:   "missing config file",
			args:   []string{"--" + configFileFlagName, filepath.Join(t.TempDir(), "missing.yaml")},
			errMsg: "read config file",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			startCmd, err := Cmd(&mockServer{})
			require.NoError(t, err)

			startCmd.SetArgs(append([]string{"--" + hostURLFlagName, testHost}, tc.args...))

			err = startCmd.Execute()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestStartCmdValidArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{
			name: "mem",
			args: []string{"--" + databaseTypeFlagName, databaseTypeMemOption},
		},
		{
			name: "leveldb",
			args: []string{
				"--" + databaseTypeFlagName, databaseTypeLevelDBOption,
				"--" + databaseURLFlagName, t.TempDir(),
			},
		},
		{
			name: "sqlite",
			args: []string{
				"--" + databaseTypeFlagName, databaseTypeSQLiteOption,
				"--" + databaseURLFlagName, filepath.Join(t.TempDir(), "mediator.db"),
				"--" + keyStorePathFlagName, t.TempDir(),
			},
		},
		{
			name: "strict policy with routing keys",
			args: []string{
				"--" + databaseTypeFlagName, databaseTypeMemOption,
				"--" + policyFlagName, policyStrictOption,
				"--" + routingKeysFlagName, "key1,key2",
				"--" + transportReturnRouteFlagName, "all",
				"--" + logLevelFlagName, "DEBUG",
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			startCmd, err := Cmd(&mockServer{})
			require.NoError(t, err)

			startCmd.SetArgs(append([]string{"--" + hostURLFlagName, testHost}, tc.args...))

			require.NoError(t, startCmd.Execute())
		})
	}
}

func TestStartCmdValidArgsEnvVar(t *testing.T) {
	t.Setenv(hostURLEnvKey, testHost)
	t.Setenv(databaseTypeEnvKey, databaseTypeSQLiteOption)
	t.Setenv(policyEnvKey, policyQueueOption)

	cmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	parameters, err := getParameters(cmd)
	require.NoError(t, err)
	require.Equal(t, testHost, parameters.host)
	require.Equal(t, "http://"+testHost, parameters.endpoint)
	require.Equal(t, defaultLabel, parameters.label)
	require.Equal(t, databaseTypeSQLiteOption, parameters.dbParam.dbType)
	require.EqualValues(t, 30, parameters.dbParam.timeout)
	require.Equal(t, mediator.PolicyQueue, parameters.policy)

	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
}

func TestStartCmdWithConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "mediator.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
host-url: localhost:9090
endpoint: https://mediator.example.com
label: config mediator
database-type: mem
persistence-policy: strict
routing-keys:
  - key1
  - key2
`), 0o600))

	t.Run("file values", func(t *testing.T) {
		cmd, err := Cmd(&mockServer{})
		require.NoError(t, err)

		require.NoError(t, cmd.ParseFlags([]string{"--" + configFileFlagName, file}))

		parameters, err := getParameters(cmd)
		require.NoError(t, err)
		require.Equal(t, "localhost:9090", parameters.host)
		require.Equal(t, "https://mediator.example.com", parameters.endpoint)
		require.Equal(t, "config mediator", parameters.label)
		require.Equal(t, mediator.PolicyStrict, parameters.policy)
		require.Equal(t, []string{"key1", "key2"}, parameters.routingKeys)
	})

	t.Run("flags and env override the file", func(t *testing.T) {
		t.Setenv(labelEnvKey, "env mediator")

		cmd, err := Cmd(&mockServer{})
		require.NoError(t, err)

		require.NoError(t, cmd.ParseFlags([]string{
			"--" + configFileFlagName, file, "--" + hostURLFlagName, testHost, "--" + routingKeysFlagName, "key3",
		}))

		parameters, err := getParameters(cmd)
		require.NoError(t, err)
		require.Equal(t, testHost, parameters.host)
		require.Equal(t, "env mediator", parameters.label)
		require.Equal(t, []string{"key3"}, parameters.routingKeys)
	})
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   map[string]string
		errMsg string
	}{
		{
			name: "scalars and lists",
			raw:  "database-timeout: 5\nrouting-keys: [a, b]\nlabel: m\nendpoint:\n",
			want: map[string]string{"database-timeout": "5", "routing-keys": "a,b", "label": "m"},
		},
		{
			name:   "nested mapping",
			raw:    "database:\n  type: mem\n",
			errMsg: "nested mappings are not supported",
		},
		{
			name:   "invalid yaml",
			raw:    "label: [",
			errMsg: "parse yaml",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			values, err := parseConfig([]byte(tc.raw))
			if tc.errMsg != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errMsg)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.want, values)
		})
	}
}

func TestStartMediatorWithBlankHost(t *testing.T) {
	err := startMediator(&mediatorParameters{server: &mockServer{}})
	require.Equal(t, errMissingHost, err)
}

func TestStartMediatorServerError(t *testing.T) {
	err := startMediator(&mediatorParameters{
		server:  &mockServer{err: errors.New("listen failed")},
		host:    testHost,
		dbParam: &dbParam{dbType: databaseTypeMemOption},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "listen failed")
}

func TestMediatorRoutes(t *testing.T) {
	const token = "ABCD"

	var served bool

	server := &mockServer{serve: func(h http.Handler) {
		served = true

		t.Run("health check", func(t *testing.T) {
			rr := serve(h, http.MethodGet, healthCheckPath, "")
			require.Equal(t, http.StatusOK, rr.Code)
			require.JSONEq(t, `{"status":"success"}`, rr.Body.String())
		})

		t.Run("invitation", func(t *testing.T) {
			rr := serve(h, http.MethodGet, invitationPath, token)
			require.Equal(t, http.StatusOK, rr.Code)

			var resp invitationResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			require.NotNil(t, resp.Invitation)
			require.Equal(t, "test mediator", resp.Invitation.Label)
			require.Contains(t, resp.InvitationURL, "https://mediator.example.com?oob=")
		})

		t.Run("accounts", func(t *testing.T) {
			rr := serve(h, http.MethodGet, accountsPath, token)
			require.Equal(t, http.StatusOK, rr.Code)
			require.JSONEq(t, `{"accounts":[]}`, rr.Body.String())
		})

		t.Run("unauthorized", func(t *testing.T) {
			for _, hdr := range []string{"", "BCDE"} {
				rr := serve(h, http.MethodGet, accountsPath, hdr)
				require.Equal(t, http.StatusUnauthorized, rr.Code)
			}
		})

		t.Run("inbound rejects other methods", func(t *testing.T) {
			rr := serve(h, http.MethodGet, inboundPath, "")
			require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
		})
	}}

	err := startMediator(&mediatorParameters{
		server:   server,
		host:     testHost,
		endpoint: "https://mediator.example.com",
		label:    "test mediator",
		token:    token,
		policy:   mediator.PolicyQueue,
		dbParam:  &dbParam{dbType: databaseTypeMemOption},
	})
	require.NoError(t, err)
	require.True(t, served)
}

func serve(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	return rr
}
