// Copyright 2023 The Clusterview Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"encoding/json"
	"fmt"
	"io"
)

type JsonConfig struct {
	DataRoot               string              `json:"dataRoot"`
	Backend                string              `json:"backend"`
	RefreshIntervalSeconds int                 `json:"refreshIntervalSeconds"`
	Accounts               *JsonAccountsConfig `json:"accounts"`
	Web                    *JsonWebConfig      `json:"web"`
}

type JsonAccountsConfig struct {
	MaxSegments int    `json:"maxSegments"`
	Separator   string `json:"separator"`
}

type JsonWebConfig struct {
	Enabled *bool  `json:"enabled"`
	Address string `json:"address"`
}

// FromJSON reads a JSON configuration and converts it to a StaticConfig,
// applying defaults for anything absent.
func FromJSON(r io.Reader) (*StaticConfig, error) {
	var jsonCfg JsonConfig
	err := json.NewDecoder(r).Decode(&jsonCfg)
	if err != nil {
		return nil, fmt.Errorf("error decoding json config: %w", err)
	}

	if jsonCfg.DataRoot == "" {
		return nil, fmt.Errorf("dataRoot must be set in the configuration")
	}
	backend := BackendMemory
	switch Backend(jsonCfg.Backend) {
	case BackendMemory, BackendFiles:
		backend = Backend(jsonCfg.Backend)
	case "":
		// Keep the default.
	default:
		return nil, fmt.Errorf("unknown backend '%v', expected '%v' or '%v'", jsonCfg.Backend, BackendMemory, BackendFiles)
	}
	if jsonCfg.RefreshIntervalSeconds < 0 {
		return nil, fmt.Errorf("refreshIntervalSeconds must not be negative, got %v", jsonCfg.RefreshIntervalSeconds)
	}

	accounts := &AccountsConfig{
		MaxSegments: 0,
		Separator:   "-",
	}
	if jsonCfg.Accounts != nil {
		accounts.MaxSegments = jsonCfg.Accounts.MaxSegments
		if jsonCfg.Accounts.Separator != "" {
			accounts.Separator = jsonCfg.Accounts.Separator
		}
	}

	web := &WebConfig{
		Enabled: true,
		Address: ":8080",
	}
	if jsonCfg.Web != nil {
		if jsonCfg.Web.Enabled != nil {
			web.Enabled = *jsonCfg.Web.Enabled
		}
		if jsonCfg.Web.Address != "" {
			web.Address = jsonCfg.Web.Address
		}
	}

	return &StaticConfig{
		DataRoot:               jsonCfg.DataRoot,
		Backend:                backend,
		RefreshIntervalSeconds: jsonCfg.RefreshIntervalSeconds,
		Accounts:               accounts,
		Web:                    web,
	}, nil
}
