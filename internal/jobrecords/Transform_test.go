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
	"reflect"
	"testing"
	"time"
)

func TestTransformDerivesSubmitBuckets(t *testing.T) {
	rows := RowSet{
		{
			JobId:  1,
			Submit: time.Date(2024, 2, 14, 13, 37, 0, 0, time.UTC),
			Start:  time.Date(2024, 2, 15, 9, 0, 0, 0, time.UTC),
		},
	}
	out := Transform(rows)
	if got := out[0].SubmitDay; !got.Equal(time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("got unexpected SubmitDay %v", got)
	}
	// 2024-02-14 is a Wednesday, the ISO week starts Monday the 12th.
	if got := out[0].SubmitWeek; !got.Equal(time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("got unexpected SubmitWeek %v", got)
	}
	if got := out[0].SubmitMonth; got != "2024-02" {
		t.Errorf("got unexpected SubmitMonth %v", got)
	}
	if got := out[0].SubmitYear; got != 2024 {
		t.Errorf("got unexpected SubmitYear %v", got)
	}
	if got := out[0].StartDay; !got.Equal(time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("got unexpected StartDay %v", got)
	}
}

func TestTransformIsIdempotent(t *testing.T) {
	rows := RowSet{
		{
			JobId:     1,
			Partition: "gpu,standard",
			Submit:    time.Date(2024, 2, 14, 13, 37, 0, 0, time.UTC),
		},
		{
			JobId: 2,
			// No timestamps at all, all derived fields must stay absent.
		},
	}
	once := Transform(rows)
	twice := Transform(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("expected Transform to be idempotent but got %v and %v", once, twice)
	}
}

func TestTransformKeepsFirstPartition(t *testing.T) {
	out := Transform(RowSet{{Partition: "gpu,standard,bigmem"}})
	if out[0].Partition != "gpu" {
		t.Fatalf("expected first partition 'gpu' but got %v", out[0].Partition)
	}
	out = Transform(out)
	if out[0].Partition != "gpu" {
		t.Fatalf("expected partition to survive a second Transform but got %v", out[0].Partition)
	}
}

func TestTransformMissingSubmitLeavesBucketsAbsent(t *testing.T) {
	out := Transform(RowSet{{JobId: 3, Start: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}})
	if !out[0].SubmitDay.IsZero() || out[0].SubmitMonth != "" || out[0].SubmitYear != 0 {
		t.Fatalf("expected submit buckets to be absent, got %+v", out[0])
	}
	if out[0].StartMonth != "2024-01" {
		t.Fatalf("expected start buckets to be derived, got %+v", out[0])
	}
}

func TestWeekStartOnMonday(t *testing.T) {
	monday := time.Date(2024, 2, 12, 23, 59, 0, 0, time.UTC)
	if got := WeekStart(monday); !got.Equal(time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected a Monday to be its own week start but got %v", got)
	}
	sunday := time.Date(2024, 2, 18, 0, 0, 1, 0, time.UTC)
	if got := WeekStart(sunday); !got.Equal(time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected Sunday to map to the preceding Monday but got %v", got)
	}
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2024, 2, 14, 13, 37, 0, 0, time.UTC)
	cases := []struct {
		period Period
		want   time.Time
	}{
		{PeriodDay, time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)},
		{PeriodWeek, time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)},
		{PeriodMonth, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{PeriodYear, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		if got := PeriodStart(now, c.period); !got.Equal(c.want) {
			t.Errorf("PeriodStart(%v) = %v, expected %v", c.period, got, c.want)
		}
	}
}

func TestExpandNodeList(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"node007", []string{"node007"}},
		{"c[001-003]", []string{"c001", "c002", "c003"}},
		{"c[001-002],g007", []string{"c001", "c002", "g007"}},
		{"c[1,5-6]", []string{"c1", "c5", "c6"}},
	}
	for _, c := range cases {
		got := ExpandNodeList(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("ExpandNodeList(%q) = %v, expected %v", c.in, got, c.want)
		}
	}
}
