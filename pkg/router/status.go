package router

import (
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// setupStatusRoute registers an operational status endpoint with uptime,
// connection and memory details
func (r *Router) setupStatusRoute() {
	r.Engine.GET("/api/status", func(c *gin.Context) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		c.JSON(200, gin.H{
			"status":         "ok",
			"env":            r.Config.Server.Env,
			"timestamp":      time.Now().Format(time.RFC3339),
			"uptime_seconds": int(time.Since(startTime).Seconds()),
			"provider":       r.Container.Sessions.Provider().Name(),
			"websocket": gin.H{
				"active_connections": r.Container.Hub.ActiveConnections(),
			},
			"memory": gin.H{
				"alloc_mb":  memStats.Alloc / 1024 / 1024,
				"sys_mb":    memStats.Sys / 1024 / 1024,
				"gc_cycles": memStats.NumGC,
			},
		})
	})
}
