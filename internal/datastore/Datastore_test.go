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
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/clusterview/clusterview/internal/config"
	"github.com/clusterview/clusterview/internal/formatter"
	"github.com/clusterview/clusterview/internal/jobrecords"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

func testConfig(dataRoot string) *config.StaticConfig {
	return &config.StaticConfig{
		DataRoot: dataRoot,
		Accounts: &config.AccountsConfig{MaxSegments: 0, Separator: "-"},
	}
}

func newMemoryDatastore(t *testing.T, dataRoot string) *inMemoryDatastore {
	t.Helper()
	ds, err := NewInMemoryDatastore(InMemoryDatastoreParams{
		Cfg:       testConfig(dataRoot),
		Formatter: formatter.NewAccountFormatter(0, "-", zap.NewNop()),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("got error when creating in-memory datastore: %v", err)
	}
	return ds.(*inMemoryDatastore)
}

func newFileDatastore(t *testing.T, dataRoot string) *fileQueryDatastore {
	t.Helper()
	ds, err := NewFileQueryDatastore(FileQueryDatastoreParams{
		Cfg:       testConfig(dataRoot),
		Formatter: formatter.NewAccountFormatter(0, "-", zap.NewNop()),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("got error when creating file-query datastore: %v", err)
	}
	return ds.(*fileQueryDatastore)
}

// writeCluster writes the given weekly files for one cluster under dataRoot.
func writeCluster(t *testing.T, dataRoot, hostname string, files map[string]jobrecords.RowSet) {
	t.Helper()
	dir := filepath.Join(dataRoot, hostname, WeeklyDataDir)
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		t.Fatalf("got error when creating cluster dir: %v", err)
	}
	for name, rows := range files {
		err = WriteSourceFile(filepath.Join(dir, name), rows)
		if err != nil {
			t.Fatalf("got error when writing source file %v: %v", name, err)
		}
	}
}

func makeJob(id int64, user, account, partition string, submit time.Time) jobrecords.JobRecord {
	return jobrecords.JobRecord{
		JobId:      id,
		User:       user,
		Account:    account,
		Partition:  partition,
		Qos:        "normal",
		State:      "COMPLETED",
		Submit:     submit,
		Start:      submit.Add(10 * time.Minute),
		End:        submit.Add(2 * time.Hour),
		CpuHours:   16,
		AllocCpus:  8,
		AllocNodes: 1,
		NodeList:   "c001",
	}
}

func jobIds(rows jobrecords.RowSet) []int64 {
	ret := make([]int64, len(rows))
	for i, r := range rows {
		ret[i] = r.JobId
	}
	return ret
}

func TestCacheKeyIsOrderIndependent(t *testing.T) {
	meta := ClusterMetadata{
		MinDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	p1 := FilterPredicate{Hostname: "x", Partitions: []string{"gpu", "standard"}, Users: []string{"b", "a", "b"}}
	p2 := FilterPredicate{Hostname: "x", Partitions: []string{"standard", "gpu"}, Users: []string{"a", "b"}}
	if p1.cacheKey(meta, nil) != p2.cacheKey(meta, nil) {
		t.Fatalf("expected order-independent cache keys but got %v and %v", p1.cacheKey(meta, nil), p2.cacheKey(meta, nil))
	}
}

func TestCacheKeyUnboundedEqualsFullRange(t *testing.T) {
	meta := ClusterMetadata{
		MinDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	unbounded := FilterPredicate{Hostname: "x"}
	explicit := FilterPredicate{Hostname: "x", StartDate: &meta.MinDate, EndDate: &meta.MaxDate}
	if unbounded.cacheKey(meta, nil) != explicit.cacheKey(meta, nil) {
		t.Fatalf("expected unbounded and explicit full-range predicates to share a key")
	}
}

func TestCacheKeyIgnoresFormatting(t *testing.T) {
	meta := ClusterMetadata{}
	plain := FilterPredicate{Hostname: "x"}
	formatted := FilterPredicate{Hostname: "x", FormatAccounts: true, AccountMaxSegments: 2}
	if plain.cacheKey(meta, nil) != formatted.cacheKey(meta, nil) {
		t.Fatalf("expected formatting parameters to not affect the cache key")
	}
}

func TestCacheKeyDistinguishesDifferentFilters(t *testing.T) {
	meta := ClusterMetadata{}
	p1 := FilterPredicate{Hostname: "x", Partitions: []string{"gpu"}}
	p2 := FilterPredicate{Hostname: "x", Accounts: []string{"gpu"}}
	if p1.cacheKey(meta, nil) == p2.cacheKey(meta, nil) {
		t.Fatalf("expected different dimensions to produce different keys")
	}
}

func TestNormalizeSet(t *testing.T) {
	got := normalizeSet([]string{"b", "a", "b", "c", "a"})
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("got unexpected normalized set %v", got)
	}
	if normalizeSet(nil) != nil {
		t.Fatalf("expected nil for an empty set")
	}
}

func TestValidateRejectsMissingHostname(t *testing.T) {
	p := FilterPredicate{}
	if err := p.validate(); err == nil {
		t.Fatalf("expected an error for a predicate without hostname")
	}
}

func TestValidateRejectsUnknownPeriod(t *testing.T) {
	p := FilterPredicate{Hostname: "x", CompletePeriodsOnly: true, PeriodType: "fortnight"}
	if err := p.validate(); err == nil {
		t.Fatalf("expected an error for an unknown period type")
	}
}
