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

// jobdunk generates synthetic weekly job-accounting files so that
// clusterview has something to display without a real cluster.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit"
	"github.com/clusterview/clusterview/internal/datastore"
	"github.com/clusterview/clusterview/internal/jobrecords"
	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"
)

var partitions = []string{"standard", "standard", "standard", "gpu", "bigmem", "debug"}
var qosClasses = []string{"normal", "normal", "normal", "high", "low"}
var states = []string{"COMPLETED", "COMPLETED", "COMPLETED", "COMPLETED", "FAILED", "TIMEOUT", "CANCELLED"}
var accountDepartments = []string{"cs", "phys", "bio", "chem", "math", "geo"}
var accountGroups = []string{"ml", "hep", "genomics", "fluids", "climate", "vision", "theory"}

func main() {
	dataRoot := flag.String("dataroot", "data", "The directory to generate cluster data into.")
	clustersFlag := flag.String("clusters", "fram,saga", "Comma-separated cluster names to generate data for.")
	numWeeks := flag.Int("weeks", 8, "The number of weeks of data to generate, ending with the current week.")
	jobsPerWeek := flag.Int("jobsperweek", 500, "The number of jobs to generate per cluster and week.")
	seed := flag.Int64("seed", 0, "The random seed. 0 seeds from the current time.")
	flag.Parse()

	if *seed != 0 {
		rand.Seed(*seed)
		gofakeit.Seed(*seed)
	} else {
		rand.Seed(time.Now().UnixNano())
		gofakeit.Seed(time.Now().UnixNano())
	}

	for _, cluster := range strings.Split(*clustersFlag, ",") {
		cluster = strings.TrimSpace(cluster)
		if cluster == "" {
			continue
		}
		err := generateCluster(*dataRoot, cluster, *numWeeks, *jobsPerWeek)
		if err != nil {
			log.Fatalf("error generating data for cluster '%v': %v\n", cluster, err)
		}
	}
}

func generateCluster(dataRoot, cluster string, numWeeks, jobsPerWeek int) error {
	dir := filepath.Join(dataRoot, cluster, datastore.WeeklyDataDir)
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("error creating '%v': %w", dir, err)
	}

	users := make([]string, 40)
	for i := range users {
		users[i] = strings.ToLower(gofakeit.Username())
	}
	accounts := make([]string, 12)
	for i := range accounts {
		accounts[i] = fmt.Sprintf("%v-%v-%v",
			accountDepartments[rand.Intn(len(accountDepartments))],
			accountGroups[rand.Intn(len(accountGroups))],
			gofakeit.Word())
	}

	var jobId int64 = 1
	thisWeek := jobrecords.WeekStart(time.Now().UTC())
	for w := numWeeks - 1; w >= 0; w-- {
		weekStart := thisWeek.AddDate(0, 0, -7*w)
		year, week := weekStart.ISOWeek()
		path := filepath.Join(dir, fmt.Sprintf("%d-W%02d.db", year, week))

		rows := make(jobrecords.RowSet, 0, jobsPerWeek)
		for i := 0; i < jobsPerWeek; i++ {
			rows = append(rows, randomJob(jobId, weekStart, users, accounts))
			jobId++
		}
		err = datastore.WriteSourceFile(path, rows)
		if err != nil {
			return err
		}
		log.Printf("wrote batchId=%v numJobs=%v to %v\n", uuid.NewString(), len(rows), path)
	}
	return nil
}

func randomJob(jobId int64, weekStart time.Time, users, accounts []string) jobrecords.JobRecord {
	partition := partitions[rand.Intn(len(partitions))]
	submit := weekStart.Add(time.Duration(rand.Int63n(int64(7 * 24 * time.Hour))))
	queued := time.Duration(rand.Int63n(int64(6 * time.Hour)))
	elapsed := time.Duration(rand.Int63n(int64(36 * time.Hour)))
	start := submit.Add(queued)

	nodes := int64(1 + rand.Intn(4))
	cpusPerNode := int64(1 + rand.Intn(64))
	cpus := nodes * cpusPerNode
	var gpus int64
	if partition == "gpu" {
		gpus = nodes * int64(1+rand.Intn(4))
	}

	nodeNames := make([]string, nodes)
	firstNode := 1 + rand.Intn(200)
	for i := range nodeNames {
		nodeNames[i] = fmt.Sprintf("c%03d", firstNode+i)
	}

	return jobrecords.JobRecord{
		JobId:      jobId,
		User:       users[rand.Intn(len(users))],
		Account:    accounts[rand.Intn(len(accounts))],
		Partition:  partition,
		Qos:        qosClasses[rand.Intn(len(qosClasses))],
		State:      states[rand.Intn(len(states))],
		Submit:     submit,
		Start:      start,
		End:        start.Add(elapsed),
		CpuHours:   float64(cpus) * elapsed.Hours(),
		GpuHours:   float64(gpus) * elapsed.Hours(),
		AllocCpus:  cpus,
		AllocGpus:  gpus,
		AllocNodes: nodes,
		NodeList:   strings.Join(nodeNames, ","),
	}
}
