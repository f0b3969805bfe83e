// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kristoman-rikardo/standardgpt/config"
	"github.com/kristoman-rikardo/standardgpt/search"
)

const healthPingTimeout = 3 * time.Second

// HandleHealth probes the search backend and reports configuration
// presence. Degraded dependencies give 503 so load balancers can rotate
// the instance out.
func HandleHealth(cfg *config.Config, searcher search.Searcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()

		searchOK := true
		if err := searcher.Ping(ctx); err != nil {
			searchOK = false
		}

		status := "ok"
		code := http.StatusOK
		if !searchOK {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status": status,
			"checks": gin.H{
				"elasticsearch":  searchOK,
				"openai_key":     cfg.OpenAIAPIKey != "",
				"embedding_api":  cfg.EmbeddingEndpoint != "",
				"elastic_apikey": cfg.ElasticsearchAPIKey != "",
			},
		})
	}
}
