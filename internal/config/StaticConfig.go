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

type Backend string

const (
	// BackendMemory keeps every cluster's rows materialized in memory and
	// caches repeated query results.
	BackendMemory Backend = "memory"
	// BackendFiles translates each query into SQL executed against the
	// weekly files directly.
	BackendFiles Backend = "files"
)

type StaticConfig struct {
	// DataRoot is the directory containing one subdirectory per cluster,
	// each with a weekly-data directory of job record files.
	DataRoot string

	Backend Backend

	// RefreshIntervalSeconds is the cadence of the background change scan.
	// 0 disables auto refresh at startup; it can still be started over the
	// web API.
	RefreshIntervalSeconds int

	Accounts *AccountsConfig

	Web *WebConfig
}

type AccountsConfig struct {
	// MaxSegments is the default number of '-'-separated segments kept when
	// formatting account names for display. 0 disables shortening.
	MaxSegments int
	Separator   string
}

type WebConfig struct {
	Enabled bool
	Address string
}
