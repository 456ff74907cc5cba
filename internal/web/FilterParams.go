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

package web

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/clusterview/clusterview/internal/datastore"
	"github.com/clusterview/clusterview/internal/jobrecords"
	"github.com/gin-gonic/gin"
)

// predicateFromQuery builds a FilterPredicate from the jobs endpoint's query
// parameters. Set-valued parameters accept either repetition
// (?partitions=a&partitions=b) or comma separation (?partitions=a,b).
func predicateFromQuery(ctx *gin.Context) (*datastore.FilterPredicate, error) {
	p := datastore.FilterPredicate{
		Hostname:   ctx.Param("hostname"),
		Partitions: setParam(ctx, "partitions"),
		Accounts:   setParam(ctx, "accounts"),
		Users:      setParam(ctx, "users"),
		Qos:        setParam(ctx, "qos"),
		States:     setParam(ctx, "states"),
	}

	startDate, err := dateParam(ctx, "startDate")
	if err != nil {
		return nil, err
	}
	p.StartDate = startDate
	endDate, err := dateParam(ctx, "endDate")
	if err != nil {
		return nil, err
	}
	p.EndDate = endDate

	if v := ctx.Query("completePeriods"); v != "" {
		completePeriods, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("could not parse completePeriods: %w", err)
		}
		p.CompletePeriodsOnly = completePeriods
	}
	if p.CompletePeriodsOnly {
		periodType := ctx.DefaultQuery("periodType", string(jobrecords.PeriodMonth))
		period, ok := jobrecords.ParsePeriod(periodType)
		if !ok {
			return nil, fmt.Errorf("unknown periodType '%v'", periodType)
		}
		p.PeriodType = period
	}

	if v := ctx.Query("formatAccounts"); v != "" {
		formatAccounts, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("could not parse formatAccounts: %w", err)
		}
		p.FormatAccounts = formatAccounts
	}
	if v := ctx.Query("maxSegments"); v != "" {
		maxSegments, err := strconv.Atoi(v)
		if err != nil || maxSegments < 0 {
			return nil, fmt.Errorf("maxSegments must be a non-negative integer, got '%v'", v)
		}
		p.AccountMaxSegments = maxSegments
	}
	return &p, nil
}

func setParam(ctx *gin.Context, name string) []string {
	ret := make([]string, 0, 4)
	for _, v := range ctx.QueryArray(name) {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				ret = append(ret, part)
			}
		}
	}
	return ret
}

func dateParam(ctx *gin.Context, name string) (*time.Time, error) {
	v := ctx.Query(name)
	if v == "" {
		return nil, nil
	}
	t, err := dateparse.ParseAny(v)
	if err != nil {
		return nil, fmt.Errorf("could not parse %v '%v': %w", name, v, err)
	}
	t = t.UTC()
	return &t, nil
}
