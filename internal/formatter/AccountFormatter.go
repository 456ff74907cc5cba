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

package formatter

import (
	"strings"

	"github.com/clusterview/clusterview/internal/jobrecords"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const DefaultSeparator = "-"

// AccountFormatter shortens '-'-delimited account identifiers to their first
// N segments for display, e.g. "cs-ml-lab-internal" -> "cs-ml" at N=2.
// The default segment count may be reconfigured while queries are running,
// per-query overrides never touch the shared default.
type AccountFormatter struct {
	defaultMaxSegments *atomic.Int64
	separator          string

	logger *zap.Logger
}

func NewAccountFormatter(maxSegments int, separator string, logger *zap.Logger) *AccountFormatter {
	if separator == "" {
		separator = DefaultSeparator
	}
	return &AccountFormatter{
		defaultMaxSegments: atomic.NewInt64(int64(maxSegments)),
		separator:          separator,

		logger: logger,
	}
}

// SetDefaultMaxSegments updates the process-wide default. Safe to call while
// queries using the old default are in flight.
func (f *AccountFormatter) SetDefaultMaxSegments(maxSegments int) {
	f.defaultMaxSegments.Store(int64(maxSegments))
}

func (f *AccountFormatter) DefaultMaxSegments() int {
	return int(f.defaultMaxSegments.Load())
}

// Format shortens a single account name. maxSegments <= 0 returns the input
// unchanged. A name with fewer segments than maxSegments is returned whole.
func (f *AccountFormatter) Format(account string, maxSegments int) string {
	if maxSegments <= 0 || account == "" {
		return account
	}
	segments := strings.Split(account, f.separator)
	if len(segments) <= maxSegments {
		return account
	}
	return strings.Join(segments[:maxSegments], f.separator)
}

// FormatRows returns a copy of rows with the account column shortened.
// maxSegmentsOverride > 0 substitutes the configured default for this call
// only. The input rows are never mutated, callers may pass cached or
// materialized data directly.
func (f *AccountFormatter) FormatRows(rows jobrecords.RowSet, maxSegmentsOverride int) jobrecords.RowSet {
	maxSegments := f.DefaultMaxSegments()
	if maxSegmentsOverride > 0 {
		maxSegments = maxSegmentsOverride
	}
	ret := make(jobrecords.RowSet, len(rows))
	copy(ret, rows)
	if maxSegments <= 0 {
		return ret
	}
	for i := range ret {
		formatted := f.Format(ret[i].Account, maxSegments)
		if formatted == "" && ret[i].Account != "" {
			// Leave the value unformatted rather than dropping it from view.
			f.logger.Debug("could not format account name, keeping original",
				zap.String("account", ret[i].Account))
			continue
		}
		ret[i].Account = formatted
	}
	return ret
}
