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
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clusterview/clusterview/internal/jobrecords"
)

func TestCheckClusterFirstCheckRecordsWithoutReload(t *testing.T) {
	dataRoot := t.TempDir()
	scenarioCluster(t, dataRoot)
	ds := newMemoryDatastore(t, dataRoot)
	// No Load: the first check must only record the current files.

	updated, err := ds.refresher.checkCluster("x", zap.NewNop())
	if err != nil {
		t.Fatalf("got error from first check: %v", err)
	}
	if updated {
		t.Fatalf("expected the first check to record without reporting a change")
	}
	updated, err = ds.refresher.checkCluster("x", zap.NewNop())
	if err != nil {
		t.Fatalf("got error from second check: %v", err)
	}
	if updated {
		t.Fatalf("expected no change on an unchanged directory")
	}
}

func TestCheckClusterDetectsChanges(t *testing.T) {
	dataRoot := t.TempDir()
	scenarioCluster(t, dataRoot)
	ds := newMemoryDatastore(t, dataRoot)
	if err := ds.Load(); err != nil {
		t.Fatalf("got error loading datastore: %v", err)
	}

	check := func() bool {
		t.Helper()
		updated, err := ds.refresher.checkCluster("x", zap.NewNop())
		if err != nil {
			t.Fatalf("got error checking cluster: %v", err)
		}
		return updated
	}

	if check() {
		t.Fatalf("expected no change right after loading")
	}

	// Added file.
	newFile := filepath.Join(dataRoot, "x", WeeklyDataDir, "2024-W03.db")
	rows := jobrecords.RowSet{makeJob(200, "carol", "bio-genomics", "gpu", time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC))}
	if err := WriteSourceFile(newFile, rows); err != nil {
		t.Fatalf("got error writing new file: %v", err)
	}
	if !check() {
		t.Fatalf("expected an added file to be detected")
	}
	if check() {
		t.Fatalf("expected no change after the reload recorded the new file")
	}

	// Touched file.
	touched := time.Now().Add(1 * time.Hour)
	if err := os.Chtimes(newFile, touched, touched); err != nil {
		t.Fatalf("got error touching file: %v", err)
	}
	if !check() {
		t.Fatalf("expected a changed mtime to be detected")
	}

	// Removed file.
	if err := os.Remove(newFile); err != nil {
		t.Fatalf("got error removing file: %v", err)
	}
	if !check() {
		t.Fatalf("expected a removed file to be detected")
	}
	if check() {
		t.Fatalf("expected no change on an unchanged directory")
	}
}

func TestCheckClusterReloadUpdatesQueryResults(t *testing.T) {
	dataRoot := t.TempDir()
	scenarioCluster(t, dataRoot)
	ds := newMemoryDatastore(t, dataRoot)
	if err := ds.Load(); err != nil {
		t.Fatalf("got error loading datastore: %v", err)
	}

	rows, err := ds.Filter(FilterPredicate{Hostname: "x", Partitions: []string{"gpu"}})
	if err != nil {
		t.Fatalf("got error filtering: %v", err)
	}
	if len(rows) != 30 {
		t.Fatalf("expected 30 gpu rows but got %v", len(rows))
	}

	extra := make(jobrecords.RowSet, 0, 10)
	for i := 0; i < 10; i++ {
		submit := time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
		extra = append(extra, makeJob(int64(201+i), "carol", "bio-genomics", "gpu", submit))
	}
	err = WriteSourceFile(filepath.Join(dataRoot, "x", WeeklyDataDir, "2024-W03.db"), extra)
	if err != nil {
		t.Fatalf("got error writing new file: %v", err)
	}
	updated, err := ds.refresher.checkCluster("x", zap.NewNop())
	if err != nil {
		t.Fatalf("got error checking cluster: %v", err)
	}
	if !updated {
		t.Fatalf("expected the new file to trigger a reload")
	}

	rows, err = ds.Filter(FilterPredicate{Hostname: "x", Partitions: []string{"gpu"}})
	if err != nil {
		t.Fatalf("got error filtering after reload: %v", err)
	}
	if len(rows) != 40 {
		t.Fatalf("expected 40 gpu rows after reload but got %v", len(rows))
	}
}

func TestStartRejectsNonPositiveInterval(t *testing.T) {
	ds := newMemoryDatastore(t, t.TempDir())
	if err := ds.StartAutoRefresh(0); err == nil {
		t.Fatalf("expected an error for a zero interval")
	}
	if err := ds.StartAutoRefresh(-5); err == nil {
		t.Fatalf("expected an error for a negative interval")
	}
}

func TestSetRefreshInterval(t *testing.T) {
	dataRoot := t.TempDir()
	scenarioCluster(t, dataRoot)
	ds := newMemoryDatastore(t, dataRoot)

	if _, err := ds.SetRefreshInterval(0); err == nil {
		t.Fatalf("expected an error for a zero interval")
	}
	running, err := ds.SetRefreshInterval(300)
	if err != nil {
		t.Fatalf("got error setting interval: %v", err)
	}
	if running {
		t.Fatalf("expected running=false before the loop is started")
	}

	if err := ds.StartAutoRefresh(300); err != nil {
		t.Fatalf("got error starting auto refresh: %v", err)
	}
	defer ds.StopAutoRefresh()
	running, err = ds.SetRefreshInterval(60)
	if err != nil {
		t.Fatalf("got error setting interval while running: %v", err)
	}
	if !running {
		t.Fatalf("expected running=true while the loop is active")
	}
}

func TestStartTwiceAndStopTwice(t *testing.T) {
	dataRoot := t.TempDir()
	scenarioCluster(t, dataRoot)
	ds := newMemoryDatastore(t, dataRoot)

	if err := ds.StartAutoRefresh(300); err != nil {
		t.Fatalf("got error starting auto refresh: %v", err)
	}
	// A second start and a second stop are no-ops, not errors.
	if err := ds.StartAutoRefresh(600); err != nil {
		t.Fatalf("got error from second start: %v", err)
	}
	ds.StopAutoRefresh()
	ds.StopAutoRefresh()
}

func TestAutoRefreshPicksUpNewFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping auto refresh test in short mode")
	}
	dataRoot := t.TempDir()
	scenarioCluster(t, dataRoot)
	ds := newMemoryDatastore(t, dataRoot)
	if err := ds.Load(); err != nil {
		t.Fatalf("got error loading datastore: %v", err)
	}
	if err := ds.StartAutoRefresh(1); err != nil {
		t.Fatalf("got error starting auto refresh: %v", err)
	}
	defer ds.StopAutoRefresh()

	rows := jobrecords.RowSet{makeJob(200, "carol", "bio-genomics", "gpu", time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC))}
	err := WriteSourceFile(filepath.Join(dataRoot, "x", WeeklyDataDir, "2024-W03.db"), rows)
	if err != nil {
		t.Fatalf("got error writing new file: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		got, err := ds.Filter(FilterPredicate{Hostname: "x", Partitions: []string{"gpu"}})
		if err != nil {
			t.Fatalf("got error filtering: %v", err)
		}
		if len(got) == 31 {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("the new file was not picked up within the deadline")
}
