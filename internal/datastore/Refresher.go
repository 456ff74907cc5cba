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
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// refreshSlice is how often the sleeping worker checks whether it is time
// for the next cycle or a stop was requested. Keeping it short makes Stop
// prompt even with long refresh intervals.
const refreshSlice = 1 * time.Second

// stopTimeout bounds how long Stop waits for the worker to terminate.
const stopTimeout = 10 * time.Second

// refresher runs the background change-detection loop of a datastore. Each
// cycle lists every known cluster's source files, compares against the last
// recorded snapshot and reloads the clusters whose files were added, removed
// or modified. An fsnotify watcher on the weekly-data directories kicks a
// cycle early so changes land before the next periodic scan.
type refresher struct {
	dataRoot string
	clusters *clusterMap
	// reload atomically replaces one cluster's snapshot from its current
	// files. Provided by the owning datastore backend.
	reload func(hostname string) error

	interval *atomic.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	watcher *fsnotify.Watcher

	logger *zap.Logger
}

func newRefresher(dataRoot string, clusters *clusterMap, reload func(hostname string) error, logger *zap.Logger) *refresher {
	return &refresher{
		dataRoot: dataRoot,
		clusters: clusters,
		reload:   reload,
		interval: atomic.NewDuration(0),

		logger: logger,
	}
}

func validateIntervalSeconds(intervalSeconds int) error {
	if intervalSeconds < 1 {
		return fmt.Errorf("refresh interval must be a positive number of seconds, got %v", intervalSeconds)
	}
	return nil
}

// Start launches the background worker. Starting an already running
// refresher only logs, it is not an error.
func (r *refresher) Start(intervalSeconds int) error {
	err := validateIntervalSeconds(intervalSeconds)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		r.logger.Info("auto refresh is already running, ignoring start request")
		return nil
	}
	r.interval.Store(time.Duration(intervalSeconds) * time.Second)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// The periodic scan alone is sufficient, notification only makes
		// refreshes prompter.
		r.logger.Warn("could not create file watcher, relying on periodic scan only", zap.Error(err))
	} else {
		for _, hostname := range r.clusters.Hostnames() {
			dir := filepath.Join(r.dataRoot, hostname, WeeklyDataDir)
			if err := watcher.Add(dir); err != nil {
				r.logger.Warn("could not watch weekly data dir",
					zap.String("hostname", hostname),
					zap.String("dir", dir),
					zap.Error(err))
			}
		}
	}
	r.watcher = watcher

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, r.done, watcher)
	r.logger.Info("started auto refresh", zap.Duration("interval", r.interval.Load()))
	return nil
}

func (r *refresher) run(ctx context.Context, done chan struct{}, watcher *fsnotify.Watcher) {
	defer close(done)
	ticker := time.NewTicker(refreshSlice)
	defer ticker.Stop()

	var watcherEvents chan fsnotify.Event
	var watcherErrors chan error
	if watcher != nil {
		watcherEvents = watcher.Events
		watcherErrors = watcher.Errors
	}

	next := time.Now().Add(r.interval.Load())
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-watcherEvents:
			if evt.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			r.logger.Info("file change notification, checking for updates early",
				zap.String("path", evt.Name),
				zap.Stringer("op", evt.Op))
			r.runCycle()
			next = time.Now().Add(r.interval.Load())
		case err := <-watcherErrors:
			r.logger.Warn("file watcher error", zap.Error(err))
		case <-ticker.C:
			if time.Now().Before(next) {
				continue
			}
			r.runCycle()
			next = time.Now().Add(r.interval.Load())
		}
	}
}

// runCycle performs one change-detection pass over all known clusters. A
// failure on one cluster never prevents the others from being checked.
func (r *refresher) runCycle() {
	logger := r.logger.With(zap.String("refreshCycleId", uuid.NewString()))
	for _, hostname := range r.clusters.Hostnames() {
		updated, err := r.checkCluster(hostname, logger)
		if err != nil {
			logger.Warn("error while refreshing cluster, will retry next cycle",
				zap.String("hostname", hostname),
				zap.Error(err))
			continue
		}
		if updated {
			logger.Info("reloaded cluster data", zap.String("hostname", hostname))
		}
	}
}

func (r *refresher) checkCluster(hostname string, logger *zap.Logger) (bool, error) {
	files, err := ListSourceFiles(r.dataRoot, hostname)
	if err != nil {
		return false, err
	}
	curr := snapshotOf(files)
	s := r.clusters.snapshot(hostname)
	if s == nil || s.files == nil {
		// First ever check for this cluster: record what is there and do
		// not report a change, otherwise every startup would reload twice.
		r.clusters.recordFiles(hostname, curr)
		logger.Debug("recorded initial file snapshot",
			zap.String("hostname", hostname),
			zap.Int("numFiles", len(curr)))
		return false, nil
	}
	if !snapshotChanged(s.files, curr) {
		return false, nil
	}
	logger.Info("source files changed",
		zap.String("hostname", hostname),
		zap.Int("numFilesBefore", len(s.files)),
		zap.Int("numFilesAfter", len(curr)))
	err = r.reload(hostname)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Stop signals the worker and waits for it with a bounded timeout. A worker
// that does not terminate in time is logged, not escalated.
func (r *refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		r.logger.Info("auto refresh is not running, ignoring stop request")
		return
	}
	r.cancel()
	select {
	case <-r.done:
	case <-time.After(stopTimeout):
		r.logger.Warn("refresh worker did not terminate within timeout",
			zap.Duration("timeout", stopTimeout))
	}
	if r.watcher != nil {
		err := r.watcher.Close()
		if err != nil {
			r.logger.Warn("error closing file watcher", zap.Error(err))
		}
		r.watcher = nil
	}
	r.cancel = nil
	r.done = nil
	r.logger.Info("stopped auto refresh")
}

// SetInterval updates the interval used by subsequent cycles and reports
// whether a refresh loop is currently active.
func (r *refresher) SetInterval(intervalSeconds int) (bool, error) {
	err := validateIntervalSeconds(intervalSeconds)
	if err != nil {
		return false, err
	}
	r.interval.Store(time.Duration(intervalSeconds) * time.Second)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done != nil, nil
}
