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
	"time"

	"github.com/clusterview/clusterview/internal/config"
	"github.com/clusterview/clusterview/internal/formatter"
	"github.com/clusterview/clusterview/internal/jobrecords"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// inMemoryDatastore keeps every cluster's rows materialized in memory and
// answers repeated identical queries from a small per-cluster result cache.
type inMemoryDatastore struct {
	*clusterMap

	dataRoot  string
	formatter *formatter.AccountFormatter
	refresher *refresher

	logger *zap.Logger
}

type InMemoryDatastoreParams struct {
	dig.In

	Cfg       *config.StaticConfig
	Formatter *formatter.AccountFormatter
	Logger    *zap.Logger
}

// NewInMemoryDatastore discovers the clusters under the data root but does
// not load any data; call Load for that.
func NewInMemoryDatastore(p InMemoryDatastoreParams) (Datastore, error) {
	hostnames, err := ScanDataRoot(p.Cfg.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("error discovering clusters: %w", err)
	}
	logger := p.Logger.Named("InMemoryDatastore")
	ds := &inMemoryDatastore{
		clusterMap: newClusterMap(hostnames),
		dataRoot:   p.Cfg.DataRoot,
		formatter:  p.Formatter,

		logger: logger,
	}
	ds.refresher = newRefresher(p.Cfg.DataRoot, ds.clusterMap, ds.loadCluster, logger)
	logger.Info("discovered clusters", zap.Strings("hostnames", hostnames))
	return ds, nil
}

func (ds *inMemoryDatastore) Load() error {
	for _, hostname := range ds.Hostnames() {
		err := ds.loadCluster(hostname)
		if err != nil {
			// One broken cluster must not take the dashboard down for the
			// others; it stays empty until a refresh succeeds.
			ds.logger.Warn("error loading cluster, it will have no data",
				zap.String("hostname", hostname),
				zap.Error(err))
		}
	}
	return nil
}

// loadCluster reads all weekly files of one cluster and atomically replaces
// its snapshot: rows, metadata, file snapshot and a fresh query cache all
// swap in together.
func (ds *inMemoryDatastore) loadCluster(hostname string) error {
	startTime := time.Now()
	files, err := ListSourceFiles(ds.dataRoot, hostname)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		ds.logger.Info("no source files for cluster",
			zap.String("hostname", hostname))
	}
	rows := make(jobrecords.RowSet, 0, 1024)
	for _, f := range files {
		fileRows, err := readSourceFile(f.Path)
		if err != nil {
			// A single unreadable file, e.g. one mid-rewrite by ingestion,
			// must not discard the rest of the cluster.
			ds.logger.Warn("error reading source file, skipping it",
				zap.String("path", f.Path),
				zap.Error(err))
			continue
		}
		rows = append(rows, fileRows...)
	}
	rows = jobrecords.Transform(rows)
	ds.setSnapshot(hostname, &clusterSnapshot{
		rows:  rows,
		meta:  computeMetadata(rows),
		files: snapshotOf(files),
		cache: newQueryCache(),
	})
	ds.logger.Info("loaded cluster",
		zap.String("hostname", hostname),
		zap.Int("numFiles", len(files)),
		zap.Int("numRows", len(rows)),
		zap.Stringer("duration", time.Since(startTime)))
	return nil
}

func (ds *inMemoryDatastore) Filter(p FilterPredicate) (jobrecords.RowSet, error) {
	err := p.validate()
	if err != nil {
		return nil, err
	}
	s := ds.snapshot(p.Hostname)
	if s == nil || len(s.rows) == 0 {
		return jobrecords.RowSet{}, nil
	}

	var cutoff *time.Time
	if p.CompletePeriodsOnly {
		c := jobrecords.PeriodStart(time.Now(), p.PeriodType)
		cutoff = &c
	}
	key := p.cacheKey(s.meta, cutoff)
	result, ok := s.cache.get(key)
	if !ok {
		start, end := p.effectiveDates(s.meta)
		result = matchRows(s.rows, &p, start, end, cutoff)
		s.cache.put(key, result)
	}
	if p.FormatAccounts {
		return ds.formatter.FormatRows(result, p.AccountMaxSegments), nil
	}
	return result, nil
}

func (ds *inMemoryDatastore) StartAutoRefresh(intervalSeconds int) error {
	return ds.refresher.Start(intervalSeconds)
}

func (ds *inMemoryDatastore) StopAutoRefresh() {
	ds.refresher.Stop()
}

func (ds *inMemoryDatastore) SetRefreshInterval(intervalSeconds int) (bool, error) {
	return ds.refresher.SetInterval(intervalSeconds)
}

// matchRows applies the predicate to materialized rows. Semantics mirror
// the SQL translation in predicateClauses so that both backends return
// row-identical results.
func matchRows(rows jobrecords.RowSet, p *FilterPredicate, start, end time.Time, cutoff *time.Time) jobrecords.RowSet {
	partitions := setOf(p.Partitions)
	accounts := setOf(p.Accounts)
	users := setOf(p.Users)
	qos := setOf(p.Qos)
	states := setOf(p.States)

	var endNext time.Time
	if !end.IsZero() {
		endNext = end.AddDate(0, 0, 1)
	}

	ret := make(jobrecords.RowSet, 0, 256)
	for _, r := range rows {
		if !start.IsZero() && r.Submit.Before(start) {
			continue
		}
		if !endNext.IsZero() && !r.Submit.Before(endNext) {
			continue
		}
		if cutoff != nil && !r.Submit.Before(*cutoff) {
			continue
		}
		if partitions != nil {
			if _, ok := partitions[r.Partition]; !ok {
				continue
			}
		}
		if accounts != nil {
			if _, ok := accounts[r.Account]; !ok {
				continue
			}
		}
		if users != nil {
			if _, ok := users[r.User]; !ok {
				continue
			}
		}
		if qos != nil {
			if _, ok := qos[r.Qos]; !ok {
				continue
			}
		}
		if states != nil {
			if _, ok := states[r.State]; !ok {
				continue
			}
		}
		ret = append(ret, r)
	}
	return ret
}

func setOf(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	ret := make(map[string]struct{}, len(values))
	for _, v := range values {
		ret[v] = struct{}{}
	}
	return ret
}

// computeMetadata derives the per-cluster summary from transformed rows.
func computeMetadata(rows jobrecords.RowSet) ClusterMetadata {
	var minSubmit, maxSubmit time.Time
	partitions := map[string]struct{}{}
	accounts := map[string]struct{}{}
	users := map[string]struct{}{}
	qos := map[string]struct{}{}
	states := map[string]struct{}{}
	for _, r := range rows {
		if !r.Submit.IsZero() {
			if minSubmit.IsZero() || r.Submit.Before(minSubmit) {
				minSubmit = r.Submit
			}
			if maxSubmit.IsZero() || r.Submit.After(maxSubmit) {
				maxSubmit = r.Submit
			}
		}
		addNonEmpty(partitions, r.Partition)
		addNonEmpty(accounts, r.Account)
		addNonEmpty(users, r.User)
		addNonEmpty(qos, r.Qos)
		addNonEmpty(states, r.State)
	}
	meta := ClusterMetadata{
		Partitions: sortedKeys(partitions),
		Accounts:   sortedKeys(accounts),
		Users:      sortedKeys(users),
		Qos:        sortedKeys(qos),
		States:     sortedKeys(states),
	}
	if !minSubmit.IsZero() {
		meta.MinDate = jobrecords.DayStart(minSubmit)
		meta.MaxDate = jobrecords.DayStart(maxSubmit)
	}
	return meta
}

func addNonEmpty(set map[string]struct{}, value string) {
	if value != "" {
		set[value] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	ret := make([]string, 0, len(set))
	for k := range set {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
