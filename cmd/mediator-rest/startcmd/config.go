/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// userVars looks a setting up on the command line, then in the environment, then in the config file.
type userVars struct {
	cmd  *cobra.Command
	file map[string]string
}

func newUserVars(cmd *cobra.Command, configFile string) (*userVars, error) {
	vars := &userVars{cmd: cmd, file: map[string]string{}}

	if configFile == "" {
		return vars, nil
	}

	raw, err := os.ReadFile(configFile) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	vars.file, err = parseConfig(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "config file %s", configFile)
	}

	logger.Debugf("loaded %d settings from %s", len(vars.file), configFile)

	return vars, nil
}

// parseConfig reads a flat YAML mapping of flag names to values. Lists are joined with commas.
func parseConfig(raw []byte) (map[string]string, error) {
	var doc map[string]interface{}

	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parse yaml")
	}

	values := make(map[string]string, len(doc))

	for key, v := range doc {
		switch val := v.(type) {
		case nil:
			continue
		case []interface{}:
			items := make([]string, 0, len(val))
			for _, item := range val {
				items = append(items, fmt.Sprint(item))
			}

			values[key] = strings.Join(items, ",")
		case map[string]interface{}:
			return nil, errors.Errorf("setting %s: nested mappings are not supported", key)
		default:
			values[key] = fmt.Sprint(val)
		}
	}

	return values, nil
}

func (u *userVars) getUserSetVar(flagName, envKey string, isOptional bool) (string, error) {
	if u.cmd.Flags().Changed(flagName) {
		return getUserSetVar(u.cmd, flagName, envKey, isOptional)
	}

	if _, isSet := os.LookupEnv(envKey); isSet {
		return getUserSetVar(u.cmd, flagName, envKey, isOptional)
	}

	if value, ok := u.file[flagName]; ok {
		return value, nil
	}

	return getUserSetVar(u.cmd, flagName, envKey, isOptional)
}

func (u *userVars) getUserSetVars(flagName, envKey string, isOptional bool) ([]string, error) {
	if u.cmd.Flags().Changed(flagName) {
		value, err := u.cmd.Flags().GetStringSlice(flagName)
		if err != nil {
			return nil, fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)
	if !isSet {
		value, isSet = u.file[flagName]
	}

	var values []string

	if isSet && value != "" {
		values = strings.Split(value, ",")
	}

	if isOptional || isSet {
		return values, nil
	}

	return nil, fmt.Errorf(" %s not set. "+
		"It must be set via either command line or environment variable", flagName)
}
