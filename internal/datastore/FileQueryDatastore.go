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

// fileQueryDatastore translates every filter query into SQL executed
// directly against the weekly files. Nothing is materialized and no results
// are cached: a file scan is cheap compared to a full load, and the backend
// exists to be free of stale in-process state.
type fileQueryDatastore struct {
	*clusterMap

	dataRoot  string
	formatter *formatter.AccountFormatter
	refresher *refresher

	logger *zap.Logger
}

type FileQueryDatastoreParams struct {
	dig.In

	Cfg       *config.StaticConfig
	Formatter *formatter.AccountFormatter
	Logger    *zap.Logger
}

// NewFileQueryDatastore discovers the clusters under the data root but does
// not derive any metadata; call Load for that.
func NewFileQueryDatastore(p FileQueryDatastoreParams) (Datastore, error) {
	hostnames, err := ScanDataRoot(p.Cfg.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("error discovering clusters: %w", err)
	}
	logger := p.Logger.Named("FileQueryDatastore")
	ds := &fileQueryDatastore{
		clusterMap: newClusterMap(hostnames),
		dataRoot:   p.Cfg.DataRoot,
		formatter:  p.Formatter,

		logger: logger,
	}
	ds.refresher = newRefresher(p.Cfg.DataRoot, ds.clusterMap, ds.loadCluster, logger)
	logger.Info("discovered clusters", zap.Strings("hostnames", hostnames))
	return ds, nil
}

func (ds *fileQueryDatastore) Load() error {
	for _, hostname := range ds.Hostnames() {
		err := ds.loadCluster(hostname)
		if err != nil {
			ds.logger.Warn("error loading cluster metadata, it will have no data",
				zap.String("hostname", hostname),
				zap.Error(err))
		}
	}
	return nil
}

// loadCluster derives the cluster metadata by querying each weekly file and
// atomically replaces the snapshot. Rows are never materialized here.
func (ds *fileQueryDatastore) loadCluster(hostname string) error {
	startTime := time.Now()
	files, err := ListSourceFiles(ds.dataRoot, hostname)
	if err != nil {
		return err
	}
	merged := ClusterMetadata{}
	partitions := map[string]struct{}{}
	accounts := map[string]struct{}{}
	users := map[string]struct{}{}
	qos := map[string]struct{}{}
	states := map[string]struct{}{}
	for _, f := range files {
		fm, err := readFileMetadata(f.Path)
		if err != nil {
			ds.logger.Warn("error reading source file metadata, skipping it",
				zap.String("path", f.Path),
				zap.Error(err))
			continue
		}
		if !fm.minSubmit.IsZero() {
			if merged.MinDate.IsZero() || fm.minSubmit.Before(merged.MinDate) {
				merged.MinDate = fm.minSubmit
			}
			if merged.MaxDate.IsZero() || fm.maxSubmit.After(merged.MaxDate) {
				merged.MaxDate = fm.maxSubmit
			}
		}
		mergeKeys(partitions, fm.partitions)
		mergeKeys(accounts, fm.accounts)
		mergeKeys(users, fm.users)
		mergeKeys(qos, fm.qos)
		mergeKeys(states, fm.states)
	}
	if !merged.MinDate.IsZero() {
		merged.MinDate = jobrecords.DayStart(merged.MinDate)
		merged.MaxDate = jobrecords.DayStart(merged.MaxDate)
	}
	merged.Partitions = sortedKeys(partitions)
	merged.Accounts = sortedKeys(accounts)
	merged.Users = sortedKeys(users)
	merged.Qos = sortedKeys(qos)
	merged.States = sortedKeys(states)

	ds.setSnapshot(hostname, &clusterSnapshot{
		meta:  merged,
		files: snapshotOf(files),
	})
	ds.logger.Info("loaded cluster metadata",
		zap.String("hostname", hostname),
		zap.Int("numFiles", len(files)),
		zap.Stringer("duration", time.Since(startTime)))
	return nil
}

func (ds *fileQueryDatastore) Filter(p FilterPredicate) (jobrecords.RowSet, error) {
	err := p.validate()
	if err != nil {
		return nil, err
	}
	s := ds.snapshot(p.Hostname)
	if s == nil || len(s.files) == 0 {
		return jobrecords.RowSet{}, nil
	}

	start, end := p.effectiveDates(s.meta)
	var cutoff *time.Time
	if p.CompletePeriodsOnly {
		c := jobrecords.PeriodStart(time.Now(), p.PeriodType)
		cutoff = &c
	}
	partitions := setOf(p.Partitions)

	paths := make([]string, 0, len(s.files))
	for path := range s.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	ret := make(jobrecords.RowSet, 0, 256)
	for _, path := range paths {
		rows, err := ds.queryFile(path, &p, start, end, cutoff)
		if err != nil {
			// The file may be mid-rewrite by ingestion; serve what the
			// other files have rather than failing the dashboard.
			ds.logger.Warn("error querying source file, skipping it",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		rows = jobrecords.Transform(rows)
		for _, r := range rows {
			if partitions != nil {
				if _, ok := partitions[r.Partition]; !ok {
					continue
				}
			}
			ret = append(ret, r)
		}
	}
	if p.FormatAccounts {
		return ds.formatter.FormatRows(ret, p.AccountMaxSegments), nil
	}
	return ret, nil
}

func (ds *fileQueryDatastore) queryFile(path string, p *FilterPredicate, start, end time.Time, cutoff *time.Time) (jobrecords.RowSet, error) {
	db, err := openSourceFile(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	cols, err := tableColumns(db)
	if err != nil {
		return nil, err
	}
	where, args, ok := predicateClauses(cols, p, start, end, cutoff)
	if !ok {
		// The predicate filters on a column this file does not have, so no
		// row of it can match.
		return nil, nil
	}
	return readJobRows(db, cols, where, args)
}

func (ds *fileQueryDatastore) StartAutoRefresh(intervalSeconds int) error {
	return ds.refresher.Start(intervalSeconds)
}

func (ds *fileQueryDatastore) StopAutoRefresh() {
	ds.refresher.Stop()
}

func (ds *fileQueryDatastore) SetRefreshInterval(intervalSeconds int) (bool, error) {
	return ds.refresher.SetInterval(intervalSeconds)
}

func mergeKeys(dst, src map[string]struct{}) {
	for k := range src {
		dst[k] = struct{}{}
	}
}
