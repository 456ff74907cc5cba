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

package jobrecords

import (
	"strconv"
	"strings"
	"time"
)

// JobRecord is one accounted job as reported by the scheduler. Timestamps
// with the zero value mean the field was absent in the source file, and any
// derived bucket fields computed from an absent timestamp are absent too.
type JobRecord struct {
	JobId     int64
	User      string
	Account   string
	Partition string
	Qos       string
	State     string

	Submit time.Time
	Start  time.Time
	End    time.Time

	CpuHours   float64
	GpuHours   float64
	AllocCpus  int64
	AllocGpus  int64
	AllocNodes int64
	NodeList   string

	// Derived time buckets, filled in by Transform.
	SubmitDay   time.Time
	SubmitWeek  time.Time
	SubmitMonth string
	SubmitYear  int
	StartDay    time.Time
	StartWeek   time.Time
	StartMonth  string
	StartYear   int
}

// RowSet is an ordered collection of job records for a single cluster.
type RowSet []JobRecord

// ExpandNodeList expands a SLURM compressed node list such as
// "c[001-003],g007" into individual node names. Malformed ranges are kept
// as-is rather than dropped so that no node silently disappears from a view.
func ExpandNodeList(nodeList string) []string {
	if nodeList == "" {
		return nil
	}
	ret := make([]string, 0, 4)
	for _, part := range splitNodeList(nodeList) {
		open := strings.IndexByte(part, '[')
		if open == -1 || !strings.HasSuffix(part, "]") {
			ret = append(ret, part)
			continue
		}
		prefix := part[:open]
		body := part[open+1 : len(part)-1]
		for _, rng := range strings.Split(body, ",") {
			dash := strings.IndexByte(rng, '-')
			if dash == -1 {
				ret = append(ret, prefix+rng)
				continue
			}
			lo, err1 := strconv.Atoi(rng[:dash])
			hi, err2 := strconv.Atoi(rng[dash+1:])
			if err1 != nil || err2 != nil || hi < lo {
				ret = append(ret, prefix+rng)
				continue
			}
			width := len(rng[:dash])
			for i := lo; i <= hi; i++ {
				n := strconv.Itoa(i)
				for len(n) < width {
					n = "0" + n
				}
				ret = append(ret, prefix+n)
			}
		}
	}
	return ret
}

// splitNodeList splits on commas which are not inside a bracket expression.
func splitNodeList(s string) []string {
	ret := make([]string, 0, 4)
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				ret = append(ret, s[last:i])
				last = i + 1
			}
		}
	}
	ret = append(ret, s[last:])
	return ret
}
