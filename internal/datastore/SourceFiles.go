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
	"os"
	"path/filepath"
	"sort"
	"time"
)

// WeeklyDataDir is the subdirectory of each cluster directory holding the
// job record files.
const WeeklyDataDir = "weekly-data"

// SourceFile is a job record file plus the modification time it had when
// last seen. It is never mutated, a changed file shows up as a new
// SourceFile with a newer ModTime.
type SourceFile struct {
	Path    string
	ModTime time.Time
}

// fileSnapshot maps file path to last seen modification time. A nil
// fileSnapshot means no snapshot has been recorded yet, which is distinct
// from an empty one.
type fileSnapshot map[string]time.Time

// ScanDataRoot discovers the clusters under dataRoot: every subdirectory
// containing a weekly-data directory counts. The result is sorted.
func ScanDataRoot(dataRoot string) ([]string, error) {
	entries, err := os.ReadDir(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("error reading data root '%v': %w", dataRoot, err)
	}
	ret := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(dataRoot, e.Name(), WeeklyDataDir))
		if err != nil || !info.IsDir() {
			continue
		}
		ret = append(ret, e.Name())
	}
	sort.Strings(ret)
	return ret, nil
}

// ListSourceFiles lists the current job record files for one cluster with
// their modification times, sorted by path. A missing directory yields an
// empty list, not an error, since "no data yet" is a normal state.
func ListSourceFiles(dataRoot, hostname string) ([]SourceFile, error) {
	dir := filepath.Join(dataRoot, hostname, WeeklyDataDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading weekly data dir for hostname=%v: %w", hostname, err)
	}
	ret := make([]SourceFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".db" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// The file may have been deleted between ReadDir and Info,
			// which counts as it not being there.
			continue
		}
		ret = append(ret, SourceFile{
			Path:    filepath.Join(dir, e.Name()),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Path < ret[j].Path })
	return ret, nil
}

func snapshotOf(files []SourceFile) fileSnapshot {
	ret := make(fileSnapshot, len(files))
	for _, f := range files {
		ret[f.Path] = f.ModTime
	}
	return ret
}

// snapshotChanged reports whether curr differs from prev: a new file, a
// missing file or a changed modification time all count.
func snapshotChanged(prev, curr fileSnapshot) bool {
	if len(prev) != len(curr) {
		return true
	}
	for path, modTime := range curr {
		prevModTime, ok := prev[path]
		if !ok || !prevModTime.Equal(modTime) {
			return true
		}
	}
	return false
}
