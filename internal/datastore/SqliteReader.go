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
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/clusterview/clusterview/internal/jobrecords"
)

// Each weekly file is a sqlite database with a single Jobs table. Files are
// written once by ingestion and opened read-only here. Timestamps are stored
// as unix seconds so comparisons are exact regardless of timezone.
const jobsTableDDL = `CREATE TABLE IF NOT EXISTS Jobs (
	job_id INTEGER NOT NULL,
	user_name TEXT,
	account TEXT,
	"partition" TEXT,
	qos TEXT,
	state TEXT,
	submit_time INTEGER,
	start_time INTEGER,
	end_time INTEGER,
	cpu_hours REAL,
	gpu_hours REAL,
	alloc_cpus INTEGER,
	alloc_gpus INTEGER,
	alloc_nodes INTEGER,
	node_list TEXT
);`

// jobColumns is the canonical column order. Files written by older
// ingestion versions may lack some of these, a missing column simply means
// the field is absent in every record from that file.
var jobColumns = []string{
	"job_id", "user_name", "account", "partition", "qos", "state",
	"submit_time", "start_time", "end_time",
	"cpu_hours", "gpu_hours", "alloc_cpus", "alloc_gpus", "alloc_nodes",
	"node_list",
}

func openSourceFile(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("error opening source file '%v': %w", path, err)
	}
	return db, nil
}

func tableColumns(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("PRAGMA table_info(Jobs);")
	if err != nil {
		return nil, fmt.Errorf("error reading Jobs table info: %w", err)
	}
	defer rows.Close()
	ret := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue interface{}
		var pk int
		err = rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk)
		if err != nil {
			return nil, fmt.Errorf("error scanning Jobs table info: %w", err)
		}
		ret[name] = true
	}
	return ret, nil
}

// predicateClauses translates the non-partition parts of a predicate into a
// WHERE clause against the available columns. Partition filtering happens
// after the transform because the stored value may be a comma-joined
// multi-value string. ok is false when the predicate filters on a column the
// file does not have, in which case no row of the file can match.
func predicateClauses(cols map[string]bool, p *FilterPredicate, start, end time.Time, cutoff *time.Time) (string, []interface{}, bool) {
	clauses := make([]string, 0, 8)
	args := make([]interface{}, 0, 8)

	dateFiltered := !start.IsZero() || !end.IsZero() || cutoff != nil
	if dateFiltered && !cols["submit_time"] {
		return "", nil, false
	}
	if !start.IsZero() {
		clauses = append(clauses, `submit_time >= ?`)
		args = append(args, start.Unix())
	}
	if !end.IsZero() {
		// end is an inclusive calendar date.
		clauses = append(clauses, `submit_time < ?`)
		args = append(args, end.AddDate(0, 0, 1).Unix())
	}
	if cutoff != nil {
		clauses = append(clauses, `submit_time < ?`)
		args = append(args, cutoff.Unix())
	}

	sets := []struct {
		column string
		values []string
	}{
		{"account", normalizeSet(p.Accounts)},
		{"user_name", normalizeSet(p.Users)},
		{"qos", normalizeSet(p.Qos)},
		{"state", normalizeSet(p.States)},
	}
	for _, s := range sets {
		if len(s.values) == 0 {
			continue
		}
		if !cols[s.column] {
			return "", nil, false
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(s.values)), ", ")
		clauses = append(clauses, fmt.Sprintf(`"%v" IN (%v)`, s.column, placeholders))
		for _, v := range s.values {
			args = append(args, v)
		}
	}

	if len(clauses) == 0 {
		return "", nil, true
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, true
}

// readJobRows reads the rows of one weekly file matching the given WHERE
// clause. Columns the file lacks are left at their zero value.
func readJobRows(db *sql.DB, cols map[string]bool, where string, args []interface{}) (jobrecords.RowSet, error) {
	selected := make([]string, 0, len(jobColumns))
	for _, c := range jobColumns {
		if cols[c] {
			selected = append(selected, `"`+c+`"`)
		}
	}
	if len(selected) == 0 {
		return nil, nil
	}
	stmt := "SELECT " + strings.Join(selected, ", ") + " FROM Jobs" + where + ";"
	rows, err := db.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying Jobs: %w", err)
	}
	defer rows.Close()

	ret := make(jobrecords.RowSet, 0, 256)
	for rows.Next() {
		var jobId, submit, start, end, allocCpus, allocGpus, allocNodes sql.NullInt64
		var user, account, partition, qos, state, nodeList sql.NullString
		var cpuHours, gpuHours sql.NullFloat64

		dest := make([]interface{}, 0, len(jobColumns))
		for _, c := range jobColumns {
			if !cols[c] {
				continue
			}
			switch c {
			case "job_id":
				dest = append(dest, &jobId)
			case "user_name":
				dest = append(dest, &user)
			case "account":
				dest = append(dest, &account)
			case "partition":
				dest = append(dest, &partition)
			case "qos":
				dest = append(dest, &qos)
			case "state":
				dest = append(dest, &state)
			case "submit_time":
				dest = append(dest, &submit)
			case "start_time":
				dest = append(dest, &start)
			case "end_time":
				dest = append(dest, &end)
			case "cpu_hours":
				dest = append(dest, &cpuHours)
			case "gpu_hours":
				dest = append(dest, &gpuHours)
			case "alloc_cpus":
				dest = append(dest, &allocCpus)
			case "alloc_gpus":
				dest = append(dest, &allocGpus)
			case "alloc_nodes":
				dest = append(dest, &allocNodes)
			case "node_list":
				dest = append(dest, &nodeList)
			}
		}
		err = rows.Scan(dest...)
		if err != nil {
			return nil, fmt.Errorf("error scanning Jobs row: %w", err)
		}

		r := jobrecords.JobRecord{
			JobId:      jobId.Int64,
			User:       user.String,
			Account:    account.String,
			Partition:  partition.String,
			Qos:        qos.String,
			State:      state.String,
			CpuHours:   cpuHours.Float64,
			GpuHours:   gpuHours.Float64,
			AllocCpus:  allocCpus.Int64,
			AllocGpus:  allocGpus.Int64,
			AllocNodes: allocNodes.Int64,
			NodeList:   nodeList.String,
		}
		if submit.Valid && submit.Int64 > 0 {
			r.Submit = time.Unix(submit.Int64, 0).UTC()
		}
		if start.Valid && start.Int64 > 0 {
			r.Start = time.Unix(start.Int64, 0).UTC()
		}
		if end.Valid && end.Int64 > 0 {
			r.End = time.Unix(end.Int64, 0).UTC()
		}
		ret = append(ret, r)
	}
	return ret, nil
}

// readSourceFile reads every row of one weekly file.
func readSourceFile(path string) (jobrecords.RowSet, error) {
	db, err := openSourceFile(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	cols, err := tableColumns(db)
	if err != nil {
		return nil, fmt.Errorf("error reading columns of '%v': %w", path, err)
	}
	rows, err := readJobRows(db, cols, "", nil)
	if err != nil {
		return nil, fmt.Errorf("error reading rows of '%v': %w", path, err)
	}
	return rows, nil
}

// fileMetadata is the summary extracted from a single weekly file, merged
// across files by the file-querying backend.
type fileMetadata struct {
	minSubmit time.Time
	maxSubmit time.Time

	partitions map[string]struct{}
	accounts   map[string]struct{}
	users      map[string]struct{}
	qos        map[string]struct{}
	states     map[string]struct{}
}

// readFileMetadata extracts min/max submit time and the distinct dimension
// values of one weekly file without loading its rows.
func readFileMetadata(path string) (*fileMetadata, error) {
	db, err := openSourceFile(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	cols, err := tableColumns(db)
	if err != nil {
		return nil, fmt.Errorf("error reading columns of '%v': %w", path, err)
	}

	ret := &fileMetadata{
		partitions: map[string]struct{}{},
		accounts:   map[string]struct{}{},
		users:      map[string]struct{}{},
		qos:        map[string]struct{}{},
		states:     map[string]struct{}{},
	}

	if cols["submit_time"] {
		row := db.QueryRow("SELECT MIN(submit_time), MAX(submit_time) FROM Jobs WHERE submit_time IS NOT NULL AND submit_time > 0;")
		var min, max sql.NullInt64
		err = row.Scan(&min, &max)
		if err != nil {
			return nil, fmt.Errorf("error scanning submit time bounds of '%v': %w", path, err)
		}
		if min.Valid {
			ret.minSubmit = time.Unix(min.Int64, 0).UTC()
			ret.maxSubmit = time.Unix(max.Int64, 0).UTC()
		}
	}

	dims := []struct {
		column string
		dest   map[string]struct{}
	}{
		{"partition", ret.partitions},
		{"account", ret.accounts},
		{"user_name", ret.users},
		{"qos", ret.qos},
		{"state", ret.states},
	}
	for _, d := range dims {
		if !cols[d.column] {
			continue
		}
		rows, err := db.Query(fmt.Sprintf(`SELECT DISTINCT "%v" FROM Jobs WHERE "%v" IS NOT NULL AND "%v" != '';`, d.column, d.column, d.column))
		if err != nil {
			return nil, fmt.Errorf("error querying distinct %v of '%v': %w", d.column, path, err)
		}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return nil, fmt.Errorf("error scanning distinct %v of '%v': %w", d.column, path, err)
			}
			if d.column == "partition" {
				// Stored partitions may be comma-joined multi-values, only
				// the first one is meaningful, matching the transform.
				if idx := strings.IndexByte(v, ','); idx != -1 {
					v = v[:idx]
				}
			}
			if v != "" {
				d.dest[v] = struct{}{}
			}
		}
		rows.Close()
	}
	return ret, nil
}

// WriteSourceFile creates or replaces a weekly file with the given rows.
// Used by the synthetic data generator and by tests; the server itself never
// writes data files.
func WriteSourceFile(path string, rows jobrecords.RowSet) error {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return fmt.Errorf("error opening '%v' for writing: %w", path, err)
	}
	defer db.Close()
	_, err = db.Exec("DROP TABLE IF EXISTS Jobs;")
	if err != nil {
		return fmt.Errorf("error dropping old Jobs table in '%v': %w", path, err)
	}
	_, err = db.Exec(jobsTableDDL)
	if err != nil {
		return fmt.Errorf("error creating Jobs table in '%v': %w", path, err)
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction for '%v': %w", path, err)
	}
	stmt := `INSERT INTO Jobs (job_id, user_name, account, "partition", qos, state, submit_time, start_time, end_time, cpu_hours, gpu_hours, alloc_cpus, alloc_gpus, alloc_nodes, node_list) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	for _, r := range rows {
		_, err = tx.Exec(stmt,
			r.JobId, r.User, r.Account, r.Partition, r.Qos, r.State,
			unixOrZero(r.Submit), unixOrZero(r.Start), unixOrZero(r.End),
			r.CpuHours, r.GpuHours, r.AllocCpus, r.AllocGpus, r.AllocNodes,
			r.NodeList)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error inserting job %v into '%v': %w", r.JobId, path, err)
		}
	}
	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("error committing rows to '%v': %w", path, err)
	}
	return nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
