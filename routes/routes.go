// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes mounts the HTTP surface onto a gin router.
package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kristoman-rikardo/standardgpt/cache"
	"github.com/kristoman-rikardo/standardgpt/config"
	"github.com/kristoman-rikardo/standardgpt/handlers"
	"github.com/kristoman-rikardo/standardgpt/memory"
	"github.com/kristoman-rikardo/standardgpt/middleware"
	"github.com/kristoman-rikardo/standardgpt/orchestrator"
	"github.com/kristoman-rikardo/standardgpt/progress"
	"github.com/kristoman-rikardo/standardgpt/search"
	"github.com/kristoman-rikardo/standardgpt/store"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Config        *config.Config
	Engine        *orchestrator.Engine
	Bus           *progress.Bus
	Memories      *memory.Store
	Conversations *store.ConversationStore
	Searcher      search.Searcher
	Caches        map[string]*cache.TTLCache
	RateLimiter   *middleware.RateLimiter
}

// SetupRoutes mounts middleware and endpoints on router.
func SetupRoutes(router *gin.Engine, d Deps) {
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Identity(d.Config.AuthCookie))

	router.GET("/health", handlers.HandleHealth(d.Config, d.Searcher))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Unknown API paths get JSON, not gin's default text 404.
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ukjent endepunkt"})
			return
		}
		c.Status(http.StatusNotFound)
	})

	api := router.Group("/api")
	{
		query := api.Group("")
		if d.RateLimiter != nil {
			query.Use(d.RateLimiter.Middleware())
		}
		query.POST("/query", handlers.HandleQuery(d.Engine, d.Conversations))
		query.POST("/query/stream", handlers.HandleQueryStream(d.Engine, d.Bus, d.Conversations))

		api.GET("/stream/:streamSessionId", handlers.HandleStream(d.Bus))

		session := api.Group("/session")
		{
			session.POST("/clear", handlers.HandleSessionClear(d.Memories))
			session.POST("/save-memory", handlers.HandleSessionSaveMemory(d.Memories))
			session.POST("/rebuild", handlers.HandleSessionRebuild(d.Memories))
			session.GET("/stats", handlers.HandleSessionStats(d.Memories, d.Bus))
		}

		conversations := api.Group("/conversations")
		{
			conversations.GET("", handlers.HandleConversationList(d.Conversations))
			conversations.POST("", handlers.HandleConversationCreate(d.Conversations))
			conversations.GET("/:id", handlers.HandleConversationGet(d.Conversations))
			conversations.DELETE("/:id", handlers.HandleConversationDelete(d.Conversations))
		}

		cacheGroup := api.Group("/cache")
		{
			cacheGroup.GET("/stats", handlers.HandleCacheStats(d.Caches))
			cacheGroup.POST("/clear", handlers.HandleCacheClear(d.Caches, d.Config.Debug))
		}
	}
}
