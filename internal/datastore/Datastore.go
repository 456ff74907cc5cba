// Copyright 2024 The Clusterview Authors
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

package datastore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clusterview/clusterview/internal/jobrecords"
)

// Datastore answers metadata and filter queries about per-cluster job
// accounting data and controls the background refresh loop. There are two
// implementations: one holding all rows in memory, one querying the weekly
// files in place. Both satisfy the same contract and return row-identical
// results for identical predicates and data.
type Datastore interface {
	Hostnames() []string
	// MinMaxDates returns the inclusive calendar-date bounds of the
	// submission timestamps currently loaded for hostname. ok is false when
	// the hostname is unknown or has no dated data.
	MinMaxDates(hostname string) (minDate time.Time, maxDate time.Time, ok bool)
	Partitions(hostname string) []string
	Accounts(hostname string) []string
	Users(hostname string) []string
	Qos(hostname string) []string
	States(hostname string) []string

	// Filter returns the rows matching p. An unknown hostname or a cluster
	// with no matching rows both yield an empty result with a nil error;
	// only an invalid predicate is an error.
	Filter(p FilterPredicate) (jobrecords.RowSet, error)

	// Load populates every discovered cluster. It is an explicit step after
	// construction so callers can sequence construct, load, start refresh.
	Load() error

	StartAutoRefresh(intervalSeconds int) error
	StopAutoRefresh()
	// SetRefreshInterval updates the interval for subsequent cycles and
	// reports whether a refresh loop is currently active.
	SetRefreshInterval(intervalSeconds int) (bool, error)
}

// FilterPredicate describes one filter query. Nil dates default to the
// cluster's min/max date. Empty dimension slices mean no restriction on that
// dimension. The formatting fields only affect presentation of the result
// and are not part of the query identity.
type FilterPredicate struct {
	Hostname  string
	StartDate *time.Time
	EndDate   *time.Time

	Partitions []string
	Accounts   []string
	Users      []string
	Qos        []string
	States     []string

	// CompletePeriodsOnly excludes rows submitted in the current, not yet
	// finished PeriodType as of query time.
	CompletePeriodsOnly bool
	PeriodType          jobrecords.Period

	FormatAccounts bool
	// AccountMaxSegments overrides the configured default for this query
	// only. 0 means use the default.
	AccountMaxSegments int
}

func (p *FilterPredicate) validate() error {
	if p.Hostname == "" {
		return fmt.Errorf("hostname must be set in the filter predicate")
	}
	if p.CompletePeriodsOnly {
		if _, ok := jobrecords.ParsePeriod(string(p.PeriodType)); !ok {
			return fmt.Errorf("unknown period type '%v'", p.PeriodType)
		}
	}
	return nil
}

// effectiveDates resolves the predicate's date range against the cluster
// metadata so that an unbounded query and an explicit full-range query are
// the same query. Zero times mean unbounded on that side.
func (p *FilterPredicate) effectiveDates(meta ClusterMetadata) (time.Time, time.Time) {
	start := meta.MinDate
	if p.StartDate != nil {
		start = jobrecords.DayStart(*p.StartDate)
	}
	end := meta.MaxDate
	if p.EndDate != nil {
		end = jobrecords.DayStart(*p.EndDate)
	}
	return start, end
}

// cacheKey canonicalizes the predicate: set-valued fields are sorted and
// deduplicated, dates are resolved to the effective bounds and the
// complete-periods flag to its concrete cutoff instant, so the key changes
// when the current period rolls over. Two predicates selecting the same rows
// produce the same key.
func (p *FilterPredicate) cacheKey(meta ClusterMetadata, cutoff *time.Time) string {
	start, end := p.effectiveDates(meta)
	var sb strings.Builder
	sb.WriteString(p.Hostname)
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(start.Unix(), 10))
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(end.Unix(), 10))
	for _, set := range [][]string{p.Partitions, p.Accounts, p.Users, p.Qos, p.States} {
		sb.WriteByte('|')
		sb.WriteString(strings.Join(normalizeSet(set), ","))
	}
	sb.WriteByte('|')
	if cutoff != nil {
		sb.WriteString(strconv.FormatInt(cutoff.Unix(), 10))
	}
	return sb.String()
}

// normalizeSet returns a sorted copy of values with duplicates removed. A
// nil result means no restriction.
func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	ret := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		ret = append(ret, v)
	}
	sort.Strings(ret)
	return ret
}

// ClusterMetadata is the cached summary of one cluster's loaded data. It is
// recomputed wholesale on every reload, never patched in place.
type ClusterMetadata struct {
	MinDate time.Time
	MaxDate time.Time

	Partitions []string
	Accounts   []string
	Users      []string
	Qos        []string
	States     []string
}

// clusterSnapshot bundles everything derived from one cluster's files at one
// point in time: the rows (in-memory backend only), the metadata, the file
// snapshot used for change detection and the query cache. A reload replaces
// the whole snapshot atomically, readers holding the old pointer keep a
// consistent view.
type clusterSnapshot struct {
	rows  jobrecords.RowSet
	meta  ClusterMetadata
	files fileSnapshot
	cache *queryCache
}

// clusterMap is the shared mutable state of a datastore: hostname to current
// snapshot. It is written by Load and the refresh worker and read by any
// number of concurrent queries.
type clusterMap struct {
	mu       sync.RWMutex
	clusters map[string]*clusterSnapshot
}

func newClusterMap(hostnames []string) *clusterMap {
	clusters := make(map[string]*clusterSnapshot, len(hostnames))
	for _, h := range hostnames {
		clusters[h] = &clusterSnapshot{}
	}
	return &clusterMap{clusters: clusters}
}

func (m *clusterMap) snapshot(hostname string) *clusterSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clusters[hostname]
}

func (m *clusterMap) setSnapshot(hostname string, s *clusterSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clusters[hostname] = s
}

// recordFiles stores a file snapshot without touching data or metadata.
// Used on the first-ever change check so that startup does not trigger a
// spurious reload.
func (m *clusterMap) recordFiles(hostname string, files fileSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.clusters[hostname]
	if old == nil {
		m.clusters[hostname] = &clusterSnapshot{files: files}
		return
	}
	next := *old
	next.files = files
	m.clusters[hostname] = &next
}

func (m *clusterMap) Hostnames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]string, 0, len(m.clusters))
	for h := range m.clusters {
		ret = append(ret, h)
	}
	sort.Strings(ret)
	return ret
}

func (m *clusterMap) MinMaxDates(hostname string) (time.Time, time.Time, bool) {
	s := m.snapshot(hostname)
	if s == nil || s.meta.MinDate.IsZero() {
		return time.Time{}, time.Time{}, false
	}
	return s.meta.MinDate, s.meta.MaxDate, true
}

func (m *clusterMap) Partitions(hostname string) []string {
	if s := m.snapshot(hostname); s != nil {
		return s.meta.Partitions
	}
	return nil
}

func (m *clusterMap) Accounts(hostname string) []string {
	if s := m.snapshot(hostname); s != nil {
		return s.meta.Accounts
	}
	return nil
}

func (m *clusterMap) Users(hostname string) []string {
	if s := m.snapshot(hostname); s != nil {
		return s.meta.Users
	}
	return nil
}

func (m *clusterMap) Qos(hostname string) []string {
	if s := m.snapshot(hostname); s != nil {
		return s.meta.Qos
	}
	return nil
}

func (m *clusterMap) States(hostname string) []string {
	if s := m.snapshot(hostname); s != nil {
		return s.meta.States
	}
	return nil
}
