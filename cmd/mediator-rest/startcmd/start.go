/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-didcomm-go/pkg/framework/agent"
)

const (
	// host flag.
	hostURLFlagName      = "host-url"
	hostURLEnvKey        = "MEDIATOR_HOST_URL"
	hostURLFlagShorthand = "u"
	hostURLFlagUsage     = "Host Name:Port the mediator listens on." +
		" Alternatively, this can be set with the following environment variable: " + hostURLEnvKey

	// public endpoint flag.
	endpointFlagName      = "endpoint"
	endpointEnvKey        = "MEDIATOR_ENDPOINT"
	endpointFlagShorthand = "e"
	endpointFlagUsage     = "Public HTTP(S) endpoint announced in invitations and mediation grants." +
		" Defaults to http://<host-url>." +
		" Alternatively, this can be set with the following environment variable: " + endpointEnvKey

	// routing keys flag.
	routingKeysFlagName      = "routing-keys"
	routingKeysEnvKey        = "MEDIATOR_ROUTING_KEYS"
	routingKeysFlagShorthand = "k"
	routingKeysFlagUsage     = "Comma-separated routing keys announced in mediation grants (optional)." +
		" Alternatively, this can be set with the following environment variable: " + routingKeysEnvKey

	// label flag.
	labelFlagName      = "label"
	labelEnvKey        = "MEDIATOR_LABEL"
	labelFlagShorthand = "l"
	labelFlagUsage     = "Label used in the mediator's invitation." +
		" Alternatively, this can be set with the following environment variable: " + labelEnvKey

	databaseTypeFlagName      = "database-type"
	databaseTypeEnvKey        = "MEDIATOR_DATABASE_TYPE"
	databaseTypeFlagShorthand = "q"
	databaseTypeFlagUsage     = "The type of database to keep mediation accounts and queued messages in. " +
		"Supported options: mem, leveldb, mysql, sqlite, redis. " +
		" Alternatively, this can be set with the following environment variable: " + databaseTypeEnvKey

	databaseURLFlagName      = "database-url"
	databaseURLEnvKey        = "MEDIATOR_DATABASE_URL"
	databaseURLFlagShorthand = "v"
	databaseURLFlagUsage     = "The URL (or path, or DSN) of the database. Not needed if using memstore." +
		" For leveldb this is the directory, for sqlite the file name or :memory:." +
		" Alternatively, this can be set with the following environment variable: " + databaseURLEnvKey

	databasePrefixFlagName      = "database-prefix"
	databasePrefixEnvKey        = "MEDIATOR_DATABASE_PREFIX"
	databasePrefixFlagShorthand = "p"
	databasePrefixFlagUsage     = "An optional prefix to be used when creating and retrieving underlying databases (or" +
		" keys for redis). " +
		" Alternatively, this can be set with the following environment variable: " + databasePrefixEnvKey

	databaseTimeoutFlagName  = "database-timeout"
	databaseTimeoutEnvKey    = "MEDIATOR_DATABASE_TIMEOUT"
	databaseTimeoutFlagUsage = "Total time in seconds to wait until the database is available before giving up." +
		" Default: " + databaseTimeoutDefault + " seconds." +
		" Alternatively, this can be set with the following environment variable: " + databaseTimeoutEnvKey
	databaseTimeoutDefault = "30"

	keyStorePathFlagName  = "key-store-path"
	keyStorePathEnvKey    = "MEDIATOR_KEY_STORE_PATH"
	keyStorePathFlagUsage = "Directory of the leveldb store holding the mediator's wallet and protocol records" +
		" when database-type is sqlite or redis. Keys are kept in memory if unset." +
		" Alternatively, this can be set with the following environment variable: " + keyStorePathEnvKey

	// persistence policy flag.
	policyFlagName  = "persistence-policy"
	policyEnvKey    = "MEDIATOR_PERSISTENCE_POLICY"
	policyFlagUsage = "What to do with forwards for keys no account registered." +
		" Supported options: queue (keep them, default), strict (reject them)." +
		" Alternatively, this can be set with the following environment variable: " + policyEnvKey

	// return route flag.
	transportReturnRouteFlagName  = "transport-return-route"
	transportReturnRouteEnvKey    = "MEDIATOR_TRANSPORT_RETURN_ROUTE"
	transportReturnRouteFlagUsage = "Transport Return Route option to set on outbound messages." +
		" Refer https://github.com/hyperledger/aries-rfcs/tree/main/features/0092-transport-return-route." +
		" Possible values [none, all, thread]. Defaults to none." +
		" Alternatively, this can be set with the following environment variable: " + transportReturnRouteEnvKey

	// log level flag.
	logLevelFlagName  = "log-level"
	logLevelEnvKey    = "MEDIATOR_LOG_LEVEL"
	logLevelFlagUsage = "Log level." +
		" Possible values [INFO] [DEBUG] [ERROR] [WARNING] [CRITICAL] . Defaults to INFO if not set." +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey

	// TLS certificate file flag.
	tlsCertFileFlagName  = "tls-cert-file"
	tlsCertFileEnvKey    = "MEDIATOR_TLS_CERT_FILE"
	tlsCertFileFlagUsage = "tls certificate file." +
		" Alternatively, this can be set with the following environment variable: " + tlsCertFileEnvKey

	// TLS key file flag.
	tlsKeyFileFlagName  = "tls-key-file"
	tlsKeyFileEnvKey    = "MEDIATOR_TLS_KEY_FILE"
	tlsKeyFileFlagUsage = "tls key file." +
		" Alternatively, this can be set with the following environment variable: " + tlsKeyFileEnvKey

	// api token flag.
	tokenFlagName      = "api-token"
	tokenEnvKey        = "MEDIATOR_API_TOKEN" // nolint:gosec
	tokenFlagShorthand = "t"
	tokenFlagUsage     = "Check for bearer token in the authorization header of the admin endpoints (optional)." +
		" Alternatively, this can be set with the following environment variable: " + tokenEnvKey

	// config file flag.
	configFileFlagName      = "config-file"
	configFileEnvKey        = "MEDIATOR_CONFIG_FILE"
	configFileFlagShorthand = "c"
	configFileFlagUsage     = "YAML file with defaults for any of the other flags, keyed by flag name." +
		" Flags and environment variables take precedence." +
		" Alternatively, this can be set with the following environment variable: " + configFileEnvKey

	policyQueueOption  = "queue"
	policyStrictOption = "strict"

	defaultLabel = "mediator"
)

var (
	errMissingHost = errors.New("host not provided")

	logger = log.New("aries-framework/mediator-rest")
)

type mediatorParameters struct {
	server               server
	host                 string
	endpoint             string
	label                string
	token                string
	routingKeys          []string
	policy               mediator.Policy
	transportReturnRoute string
	dbParam              *dbParam
	keyStorePath         string
	tlsCertFile          string
	tlsKeyFile           string
}

type dbParam struct {
	dbType  string
	prefix  string
	url     string
	timeout uint64
}

type server interface {
	ListenAndServe(host string, router http.Handler, certFile, keyFile string) error
}

// HTTPServer represents an actual server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
func (s *HTTPServer) ListenAndServe(host string, router http.Handler, certFile, keyFile string) error {
	if certFile != "" && keyFile != "" {
		return http.ListenAndServeTLS(host, certFile, keyFile, router)
	}

	return http.ListenAndServe(host, router)
}

// Cmd returns the Cobra start command.
func Cmd(server server) (*cobra.Command, error) {
	startCmd := createStartCMD(server)

	createFlags(startCmd)

	return startCmd, nil
}

func createStartCMD(server server) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a mediator",
		Long:  `Start a DIDComm mediator with message pickup`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getParameters(cmd)
			if err != nil {
				return err
			}

			parameters.server = server

			return startMediator(parameters)
		},
	}
}

func getParameters(cmd *cobra.Command) (*mediatorParameters, error) { //nolint:funlen,gocyclo
	configFile, err := getUserSetVar(cmd, configFileFlagName, configFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	vars, err := newUserVars(cmd, configFile)
	if err != nil {
		return nil, err
	}

	logLevel, err := vars.getUserSetVar(logLevelFlagName, logLevelEnvKey, true)
	if err != nil {
		return nil, err
	}

	if err = setLogLevel(logLevel); err != nil {
		return nil, err
	}

	host, err := vars.getUserSetVar(hostURLFlagName, hostURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	endpoint, err := vars.getUserSetVar(endpointFlagName, endpointEnvKey, true)
	if err != nil {
		return nil, err
	}

	if endpoint == "" {
		endpoint = "http://" + host
	}

	label, err := vars.getUserSetVar(labelFlagName, labelEnvKey, true)
	if err != nil {
		return nil, err
	}

	if label == "" {
		label = defaultLabel
	}

	token, err := vars.getUserSetVar(tokenFlagName, tokenEnvKey, true)
	if err != nil {
		return nil, err
	}

	routingKeys, err := vars.getUserSetVars(routingKeysFlagName, routingKeysEnvKey, true)
	if err != nil {
		return nil, err
	}

	policy, err := getPolicy(vars)
	if err != nil {
		return nil, err
	}

	returnRoute, err := getTransportReturnRoute(vars)
	if err != nil {
		return nil, err
	}

	dbParam, err := getDBParam(vars)
	if err != nil {
		return nil, err
	}

	keyStorePath, err := vars.getUserSetVar(keyStorePathFlagName, keyStorePathEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsCertFile, err := vars.getUserSetVar(tlsCertFileFlagName, tlsCertFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsKeyFile, err := vars.getUserSetVar(tlsKeyFileFlagName, tlsKeyFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	return &mediatorParameters{
		host:                 host,
		endpoint:             endpoint,
		label:                label,
		token:                token,
		routingKeys:          routingKeys,
		policy:               policy,
		transportReturnRoute: returnRoute,
		dbParam:              dbParam,
		keyStorePath:         keyStorePath,
		tlsCertFile:          tlsCertFile,
		tlsKeyFile:           tlsKeyFile,
	}, nil
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(hostURLFlagName, hostURLFlagShorthand, "", hostURLFlagUsage)
	startCmd.Flags().StringP(endpointFlagName, endpointFlagShorthand, "", endpointFlagUsage)
	startCmd.Flags().StringSliceP(routingKeysFlagName, routingKeysFlagShorthand, []string{}, routingKeysFlagUsage)
	startCmd.Flags().StringP(labelFlagName, labelFlagShorthand, "", labelFlagUsage)
	startCmd.Flags().StringP(databaseTypeFlagName, databaseTypeFlagShorthand, "", databaseTypeFlagUsage)
	startCmd.Flags().StringP(databaseURLFlagName, databaseURLFlagShorthand, "", databaseURLFlagUsage)
	startCmd.Flags().StringP(databasePrefixFlagName, databasePrefixFlagShorthand, "", databasePrefixFlagUsage)
	startCmd.Flags().String(databaseTimeoutFlagName, "", databaseTimeoutFlagUsage)
	startCmd.Flags().String(keyStorePathFlagName, "", keyStorePathFlagUsage)
	startCmd.Flags().String(policyFlagName, "", policyFlagUsage)
	startCmd.Flags().String(transportReturnRouteFlagName, "", transportReturnRouteFlagUsage)
	startCmd.Flags().String(logLevelFlagName, "", logLevelFlagUsage)
	startCmd.Flags().String(tlsCertFileFlagName, "", tlsCertFileFlagUsage)
	startCmd.Flags().String(tlsKeyFileFlagName, "", tlsKeyFileFlagUsage)
	startCmd.Flags().StringP(tokenFlagName, tokenFlagShorthand, "", tokenFlagUsage)
	startCmd.Flags().StringP(configFileFlagName, configFileFlagShorthand, "", configFileFlagUsage)
}

func getDBParam(vars *userVars) (*dbParam, error) {
	dbParam := &dbParam{}

	var err error

	dbParam.dbType, err = vars.getUserSetVar(databaseTypeFlagName, databaseTypeEnvKey, false)
	if err != nil {
		return nil, err
	}

	dbParam.url, err = vars.getUserSetVar(databaseURLFlagName, databaseURLEnvKey, true)
	if err != nil {
		return nil, err
	}

	dbParam.prefix, err = vars.getUserSetVar(databasePrefixFlagName, databasePrefixEnvKey, true)
	if err != nil {
		return nil, err
	}

	dbTimeout, err := vars.getUserSetVar(databaseTimeoutFlagName, databaseTimeoutEnvKey, true)
	if err != nil {
		return nil, err
	}

	if dbTimeout == "" || dbTimeout == "0" {
		dbTimeout = databaseTimeoutDefault
	}

	t, err := strconv.Atoi(dbTimeout)
	if err != nil || t < 0 {
		return nil, fmt.Errorf("failed to parse db timeout %s: %w", dbTimeout, errInvalidNumber(err))
	}

	dbParam.timeout = uint64(t)

	return dbParam, nil
}

func errInvalidNumber(err error) error {
	if err != nil {
		return err
	}

	return errors.New("negative value")
}

func getPolicy(vars *userVars) (mediator.Policy, error) {
	policy, err := vars.getUserSetVar(policyFlagName, policyEnvKey, true)
	if err != nil {
		return 0, err
	}

	switch strings.ToLower(policy) {
	case "", policyQueueOption:
		return mediator.PolicyQueue, nil
	case policyStrictOption:
		return mediator.PolicyStrict, nil
	default:
		return 0, fmt.Errorf("invalid persistence policy %q: supported options are %s and %s", policy,
			policyQueueOption, policyStrictOption)
	}
}

func getTransportReturnRoute(vars *userVars) (string, error) {
	returnRoute, err := vars.getUserSetVar(transportReturnRouteFlagName, transportReturnRouteEnvKey, true)
	if err != nil {
		return "", err
	}

	switch returnRoute {
	case "", decorator.TransportReturnRouteNone, decorator.TransportReturnRouteAll,
		decorator.TransportReturnRouteThread:
		return returnRoute, nil
	default:
		return "", fmt.Errorf("invalid transport return route option : %s. Valid values : %s,%s,%s", returnRoute,
			decorator.TransportReturnRouteNone, decorator.TransportReturnRouteAll,
			decorator.TransportReturnRouteThread)
	}
}

func getUserSetVar(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		return value, nil
	}

	return "", errors.New("Neither " + flagName + " (command line flag) nor " + envKey +
		" (environment variable) have been set.")
}

func setLogLevel(logLevel string) error {
	if logLevel != "" {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("failed to parse log level '%s' : %w", logLevel, err)
		}

		log.SetLevel("", level)

		logger.Infof("logger level set to %s", logLevel)
	}

	return nil
}

func startMediator(parameters *mediatorParameters) error {
	if parameters.host == "" {
		return errMissingHost
	}

	ctx := context.Background()

	st, err := createStores(ctx, parameters)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Warnf("close mediation store: %s", closeErr)
		}
	}()

	a, err := createMediatorAgent(parameters, st)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warnf("close agent: %s", closeErr)
		}
	}()

	handler, err := newRouter(a, st.mediation, parameters)
	if err != nil {
		return fmt.Errorf("failed to start mediator on port [%s], failed to set up routes: %w", parameters.host, err)
	}

	logger.Infof("Starting mediator on host [%s] with endpoint [%s]", parameters.host, parameters.endpoint)

	err = parameters.server.ListenAndServe(parameters.host, handler, parameters.tlsCertFile, parameters.tlsKeyFile)
	if err != nil {
		return fmt.Errorf("failed to start mediator on port [%s], cause:  %w", parameters.host, err)
	}

	return nil
}

func createMediatorAgent(parameters *mediatorParameters, st *stores) (*agent.Agent, error) {
	mediatorOpts := []mediator.Option{mediator.WithPolicy(parameters.policy)}

	if len(parameters.routingKeys) > 0 {
		mediatorOpts = append(mediatorOpts, mediator.WithRoutingKeys(parameters.routingKeys...))
	}

	opts := []agent.Option{
		agent.WithStoreProvider(st.provider),
		agent.WithEndpoint(parameters.endpoint),
		agent.WithMediator(st.mediation, mediatorOpts...),
	}

	if parameters.transportReturnRoute != "" {
		opts = append(opts, agent.WithTransportReturnRoute(parameters.transportReturnRoute))
	}

	a, err := agent.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start mediator on port [%s], failed to initialize agent: %w",
			parameters.host, err)
	}

	return a, nil
}
