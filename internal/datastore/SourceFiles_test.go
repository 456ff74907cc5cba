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
)

func TestScanDataRootFindsClusterDirs(t *testing.T) {
	dataRoot := t.TempDir()
	for _, cluster := range []string{"fram", "saga"} {
		err := os.MkdirAll(filepath.Join(dataRoot, cluster, WeeklyDataDir), 0o755)
		if err != nil {
			t.Fatalf("got error setting up cluster dir: %v", err)
		}
	}
	// A directory without weekly-data and a stray file must be ignored.
	err := os.Mkdir(filepath.Join(dataRoot, "not-a-cluster"), 0o755)
	if err != nil {
		t.Fatalf("got error setting up decoy dir: %v", err)
	}
	err = os.WriteFile(filepath.Join(dataRoot, "readme.txt"), []byte("hi"), 0o644)
	if err != nil {
		t.Fatalf("got error writing decoy file: %v", err)
	}

	hostnames, err := ScanDataRoot(dataRoot)
	if err != nil {
		t.Fatalf("got error scanning data root: %v", err)
	}
	if !reflect.DeepEqual(hostnames, []string{"fram", "saga"}) {
		t.Fatalf("got unexpected hostnames %v", hostnames)
	}
}

func TestScanDataRootMissingRoot(t *testing.T) {
	_, err := ScanDataRoot(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatalf("expected an error for a missing data root")
	}
}

func TestListSourceFilesMissingDirIsEmpty(t *testing.T) {
	files, err := ListSourceFiles(t.TempDir(), "ghost")
	if err != nil {
		t.Fatalf("expected no error for a missing weekly data dir but got %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files but got %v", files)
	}
}

func TestListSourceFilesIgnoresOtherExtensions(t *testing.T) {
	dataRoot := t.TempDir()
	dir := filepath.Join(dataRoot, "fram", WeeklyDataDir)
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		t.Fatalf("got error setting up dir: %v", err)
	}
	for _, name := range []string{"2024-W01.db", "2024-W02.db", "notes.txt"} {
		err = os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644)
		if err != nil {
			t.Fatalf("got error writing file: %v", err)
		}
	}

	files, err := ListSourceFiles(dataRoot, "fram")
	if err != nil {
		t.Fatalf("got error listing source files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files but got %v", len(files))
	}
	if filepath.Base(files[0].Path) != "2024-W01.db" || filepath.Base(files[1].Path) != "2024-W02.db" {
		t.Fatalf("got unexpected file order %v", files)
	}
}

func TestSnapshotChanged(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	base := fileSnapshot{"a.db": t0, "b.db": t0}

	same := fileSnapshot{"a.db": t0, "b.db": t0}
	if snapshotChanged(base, same) {
		t.Errorf("expected identical snapshots to report no change")
	}

	added := fileSnapshot{"a.db": t0, "b.db": t0, "c.db": t0}
	if !snapshotChanged(base, added) {
		t.Errorf("expected an added file to report a change")
	}

	removed := fileSnapshot{"a.db": t0}
	if !snapshotChanged(base, removed) {
		t.Errorf("expected a removed file to report a change")
	}

	touched := fileSnapshot{"a.db": t0, "b.db": t0.Add(time.Minute)}
	if !snapshotChanged(base, touched) {
		t.Errorf("expected a changed modification time to report a change")
	}

	replaced := fileSnapshot{"a.db": t0, "c.db": t0}
	if !snapshotChanged(base, replaced) {
		t.Errorf("expected a replaced file to report a change")
	}
}
