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

	"github.com/gin-gonic/gin"
)

type refreshRequest struct {
	IntervalSeconds int `json:"intervalSeconds"`
}

func addRefreshEndpoints(g *gin.RouterGroup, wi *webImpl) {
	g = g.Group("refresh")

	g.POST("start", func(ctx *gin.Context) {
		var req refreshRequest
		err := ctx.ShouldBindJSON(&req)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "could not decode request body: " + err.Error()})
			return
		}
		err = wi.ds.StartAutoRefresh(req.IntervalSeconds)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx.String(http.StatusOK, "ok")
	})

	g.POST("stop", func(ctx *gin.Context) {
		wi.ds.StopAutoRefresh()
		ctx.String(http.StatusOK, "ok")
	})

	g.PUT("interval", func(ctx *gin.Context) {
		var req refreshRequest
		err := ctx.ShouldBindJSON(&req)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "could not decode request body: " + err.Error()})
			return
		}
		running, err := wi.ds.SetRefreshInterval(req.IntervalSeconds)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"running": running})
	})
}
