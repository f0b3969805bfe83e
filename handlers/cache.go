// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kristoman-rikardo/standardgpt/cache"
)

// HandleCacheStats reports hit/miss counts per named cache.
func HandleCacheStats(caches map[string]*cache.TTLCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := make(map[string]cache.Stats, len(caches))
		for name, store := range caches {
			stats[name] = store.Stats()
		}
		c.JSON(http.StatusOK, gin.H{"caches": stats})
	}
}

// HandleCacheClear empties every cache. Only available with DEBUG set;
// production callers get 403.
func HandleCacheClear(caches map[string]*cache.TTLCache, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !debug {
			c.JSON(http.StatusForbidden, gin.H{"error": "Kun tilgjengelig i debug-modus"})
			return
		}
		for _, store := range caches {
			store.Clear()
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "cleared": len(caches)})
	}
}
