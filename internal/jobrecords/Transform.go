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
	"strings"
	"time"
)

// Period is a time bucket granularity used for trend views and for the
// "complete periods only" exclusion.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return Period(s), true
	}
	return "", false
}

const monthKeyLayout = "2006-01"

// Transform normalizes raw records into the canonical schema: the partition
// field may arrive as a comma-joined multi-value string and is reduced to its
// first value, and the day/week/month/year buckets are derived from the
// submit and start timestamps. Transform is idempotent, running it on an
// already transformed RowSet changes nothing.
func Transform(rows RowSet) RowSet {
	ret := make(RowSet, len(rows))
	for i, r := range rows {
		if idx := strings.IndexByte(r.Partition, ','); idx != -1 {
			r.Partition = r.Partition[:idx]
		}
		if !r.Submit.IsZero() {
			r.SubmitDay = DayStart(r.Submit)
			r.SubmitWeek = WeekStart(r.Submit)
			r.SubmitMonth = MonthKey(r.Submit)
			r.SubmitYear = r.Submit.Year()
		}
		if !r.Start.IsZero() {
			r.StartDay = DayStart(r.Start)
			r.StartWeek = WeekStart(r.Start)
			r.StartMonth = MonthKey(r.Start)
			r.StartYear = r.Start.Year()
		}
		ret[i] = r
	}
	return ret
}

// DayStart truncates t to midnight in its own location.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// WeekStart returns the Monday starting the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	d := DayStart(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// MonthKey returns the "YYYY-MM" bucket for t.
func MonthKey(t time.Time) string {
	return t.Format(monthKeyLayout)
}

// PeriodStart returns the start of the period containing now. A job
// submitted at or after this instant belongs to the current, still
// accumulating period.
func PeriodStart(now time.Time, period Period) time.Time {
	switch period {
	case PeriodWeek:
		return WeekStart(now)
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	case PeriodYear:
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
	default:
		return DayStart(now)
	}
}
