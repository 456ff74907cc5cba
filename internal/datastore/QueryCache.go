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
	"sync"

	"github.com/clusterview/clusterview/internal/jobrecords"
)

// queryCacheSize bounds the number of cached filter results per cluster.
// Dashboards fire the same handful of predicates for different charts, so a
// small recency-ordered cache covers the hot set.
const queryCacheSize = 10

// queryCache maps canonicalized predicate keys to result row sets. It lives
// inside a clusterSnapshot, so replacing the snapshot on reload discards the
// whole cache and a hit can never return pre-reload data.
type queryCache struct {
	mu      sync.Mutex
	entries map[string]jobrecords.RowSet
	// order holds the keys from least to most recently used.
	order []string
}

func newQueryCache() *queryCache {
	return &queryCache{
		entries: make(map[string]jobrecords.RowSet, queryCacheSize),
		order:   make([]string, 0, queryCacheSize),
	}
}

func (c *queryCache) get(key string) (jobrecords.RowSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.touch(key)
	return rows, true
}

func (c *queryCache) put(key string, rows jobrecords.RowSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = rows
		c.touch(key)
		return
	}
	if len(c.order) >= queryCacheSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = rows
	c.order = append(c.order, key)
}

func (c *queryCache) touch(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			return
		}
	}
}

func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
