package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"enrolltrack/analytics"
	"enrolltrack/handoff"
	"enrolltrack/middleware"
	"enrolltrack/model/store"
	"enrolltrack/task"
)

// API bundles the services the route handlers dispatch to. Wired once
// on boot from the app configuration.
type API struct {
	Store           store.Store
	Lifecycle       *handoff.Lifecycle
	Importer        *task.CompletionImporter
	AttributionConf *analytics.Config
}

func InitAppRoutes(r *gin.Engine, api *API) {
	r.Use(middleware.RequestScope())
	r.Use(middleware.Logger())

	r.GET("/status", statusHandler)

	r.POST("/sdk/event/track", api.trackHandler)
	r.POST("/sdk/user/identify", api.identifyHandler)

	r.POST("/handoffs", api.createHandoffHandler)
	r.GET("/handoffs/stats", api.handoffStatsHandler)
	r.GET("/handoffs/:token", api.getHandoffHandler)
	r.POST("/handoffs/:token/redirect", api.redirectHandoffHandler)
	r.POST("/handoffs/:token/complete", api.completeHandoffHandler)
	r.POST("/handoffs/:token/abandon", api.abandonHandoffHandler)

	r.POST("/attribution/query", api.attributionQueryHandler)
	r.POST("/funnel/query", api.funnelQueryHandler)

	r.POST("/completions/preview", api.previewCompletionsHandler)
	r.POST("/completions/import", api.importCompletionsHandler)
}

func statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
