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
	"net/http"
	"sort"

	"github.com/clusterview/clusterview/internal/config"
	"github.com/clusterview/clusterview/internal/datastore"
	"github.com/clusterview/clusterview/internal/jobrecords"
	"github.com/clusterview/clusterview/internal/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

type Web interface {
	Serve() error
}

type webImpl struct {
	cfg *config.StaticConfig
	ds  datastore.Datastore

	logger *zap.Logger
}

type WebParams struct {
	dig.In

	Cfg       *config.StaticConfig
	Datastore datastore.Datastore
	Logger    *zap.Logger
}

func NewWeb(p WebParams) Web {
	return &webImpl{
		cfg: p.Cfg,
		ds:  p.Datastore,

		logger: p.Logger.Named("Web"),
	}
}

func (wi *webImpl) Serve() error {
	r := wi.buildRouter()
	wi.logger.Info("serving web API", zap.String("address", wi.cfg.Web.Address))
	s := http.Server{
		Addr:    wi.cfg.Web.Address,
		Handler: r,
	}
	return s.ListenAndServe()
}

func (wi *webImpl) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(util.NewGinZapLogger(wi.logger), gin.Recovery())

	g := r.Group("api/v1")

	g.GET("hostnames", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, wi.ds.Hostnames())
	})

	clusters := g.Group("clusters/:hostname")
	clusters.GET("dates", func(ctx *gin.Context) {
		hostname := ctx.Param("hostname")
		minDate, maxDate, ok := wi.ds.MinMaxDates(hostname)
		if !ok {
			ctx.JSON(http.StatusOK, gin.H{"minDate": nil, "maxDate": nil})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"minDate": minDate.Format("2006-01-02"),
			"maxDate": maxDate.Format("2006-01-02"),
		})
	})
	clusters.GET("partitions", wi.listEndpoint(wi.ds.Partitions))
	clusters.GET("accounts", wi.listEndpoint(wi.ds.Accounts))
	clusters.GET("users", wi.listEndpoint(wi.ds.Users))
	clusters.GET("qos", wi.listEndpoint(wi.ds.Qos))
	clusters.GET("states", wi.listEndpoint(wi.ds.States))
	clusters.GET("jobs", func(ctx *gin.Context) {
		p, err := predicateFromQuery(ctx)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rows, err := wi.ds.Filter(*p)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"count": len(rows),
			"jobs":  rows,
		})
	})
	clusters.GET("nodes", func(ctx *gin.Context) {
		p, err := predicateFromQuery(ctx)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rows, err := wi.ds.Filter(*p)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// Node lists are stored compressed ("c[001-003],g007"), expand them
		// so consumers get one entry per node.
		set := map[string]struct{}{}
		for _, r := range rows {
			for _, n := range jobrecords.ExpandNodeList(r.NodeList) {
				set[n] = struct{}{}
			}
		}
		nodes := make([]string, 0, len(set))
		for n := range set {
			nodes = append(nodes, n)
		}
		sort.Strings(nodes)
		ctx.JSON(http.StatusOK, nodes)
	})

	addRefreshEndpoints(g, wi)

	return r
}

func (wi *webImpl) listEndpoint(get func(hostname string) []string) func(*gin.Context) {
	return func(ctx *gin.Context) {
		values := get(ctx.Param("hostname"))
		if values == nil {
			values = []string{}
		}
		ctx.JSON(http.StatusOK, values)
	}
}
