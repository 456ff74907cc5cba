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

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/clusterview/clusterview/internal/config"
	"github.com/clusterview/clusterview/internal/datastore"
	"github.com/clusterview/clusterview/internal/formatter"
	"github.com/clusterview/clusterview/internal/web"
	"go.uber.org/dig"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

var versionString string // This must be set using -ldflags "-X main.versionString=<version>" when building for --version to work

var cfgFileFlag string
var dataRootFlag string
var backendFlag string
var refreshIntervalFlag int
var webAddrFlag string
var printVersion bool

func main() {
	flag.StringVar(&cfgFileFlag, "config", "clusterview.json", "The name of the configuration file. If it exists, all other command line configuration will be ignored.")
	flag.StringVar(&dataRootFlag, "dataroot", "data", "The directory containing one subdirectory per cluster, each with a weekly-data directory of job record files.")
	flag.StringVar(&backendFlag, "backend", string(config.BackendMemory), "The query backend: 'memory' loads all job records into memory and caches query results, 'files' queries the weekly files in place.")
	flag.IntVar(&refreshIntervalFlag, "refreshinterval", 300, "The number of seconds between background checks for changed data files. 0 disables auto refresh.")
	flag.StringVar(&webAddrFlag, "webaddr", ":8080", "The address on which the dashboard API will be exposed.")
	flag.BoolVar(&printVersion, "version", false, "Print version info and quit.")
	flag.Parse()

	if printVersion {
		if versionString == "" {
			fmt.Println("(unknown version)")
			return
		}
		fmt.Println(versionString)
		return
	}

	var staticConfig *config.StaticConfig
	cfgFile, err := os.Open(cfgFileFlag)
	if err == nil {
		staticConfig, err = config.FromJSON(cfgFile)
		cfgFile.Close()
		if err != nil {
			log.Fatalf("error reading configuration from file '%v': %v\n", cfgFileFlag, err)
		}
		log.Printf("Using configuration from file '%v'\n", cfgFileFlag)
	} else {
		log.Printf("Could not open config file '%v', will use command line configuration\n", cfgFileFlag)
		if refreshIntervalFlag < 0 {
			log.Fatalf("refreshinterval must not be negative, got %v\n", refreshIntervalFlag)
		}
		staticConfig = &config.StaticConfig{
			DataRoot:               dataRootFlag,
			Backend:                config.Backend(backendFlag),
			RefreshIntervalSeconds: refreshIntervalFlag,
			Accounts: &config.AccountsConfig{
				MaxSegments: 0,
				Separator:   "-",
			},
			Web: &config.WebConfig{
				Enabled: true,
				Address: webAddrFlag,
			},
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("error creating logger: %v\n", err)
	}
	defer logger.Sync()

	c := dig.New()
	for _, provider := range []interface{}{
		func() *config.StaticConfig { return staticConfig },
		func() *zap.Logger { return logger },
		func(cfg *config.StaticConfig, logger *zap.Logger) *formatter.AccountFormatter {
			return formatter.NewAccountFormatter(cfg.Accounts.MaxSegments, cfg.Accounts.Separator, logger)
		},
		newDatastore,
		web.NewWeb,
	} {
		err = c.Provide(provider)
		if err != nil {
			logger.Fatal("error providing dependency", zap.Error(err))
		}
	}

	err = c.Invoke(run)
	if err != nil {
		logger.Fatal("clusterview terminated with an error", zap.Error(err))
	}
}

func newDatastore(p struct {
	dig.In

	Cfg       *config.StaticConfig
	Formatter *formatter.AccountFormatter
	Logger    *zap.Logger
}) (datastore.Datastore, error) {
	switch p.Cfg.Backend {
	case config.BackendFiles:
		return datastore.NewFileQueryDatastore(datastore.FileQueryDatastoreParams{
			Cfg: p.Cfg, Formatter: p.Formatter, Logger: p.Logger,
		})
	case config.BackendMemory, "":
		return datastore.NewInMemoryDatastore(datastore.InMemoryDatastoreParams{
			Cfg: p.Cfg, Formatter: p.Formatter, Logger: p.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown backend '%v'", p.Cfg.Backend)
	}
}

func run(p struct {
	dig.In

	Cfg       *config.StaticConfig
	Datastore datastore.Datastore
	Web       web.Web
	Logger    *zap.Logger
}) error {
	err := p.Datastore.Load()
	if err != nil {
		return fmt.Errorf("error loading cluster data: %w", err)
	}
	if p.Cfg.RefreshIntervalSeconds > 0 {
		err = p.Datastore.StartAutoRefresh(p.Cfg.RefreshIntervalSeconds)
		if err != nil {
			return fmt.Errorf("error starting auto refresh: %w", err)
		}
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signals
		p.Logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
		p.Datastore.StopAutoRefresh()
		os.Exit(0)
	}()

	if !p.Cfg.Web.Enabled {
		p.Logger.Info("web API is disabled, idling")
		select {}
	}
	return p.Web.Serve()
}
