package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"enrolltrack/analytics"
	"enrolltrack/model/model"
)

func (api *API) attributionQueryHandler(c *gin.Context) {
	var query model.AttributionQuery
	if err := c.BindJSON(&query); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": "Invalid attribution query."})
		return
	}
	if err := query.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": err.Error()})
		return
	}

	result, err := analytics.ExecuteAttributionQuery(api.Store, api.AttributionConf, &query)
	if err != nil {
		log.WithError(err).Error("Failed to execute attribution query.")
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"error": "Failed to execute attribution query."})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (api *API) funnelQueryHandler(c *gin.Context) {
	var query model.FunnelQuery
	if err := c.BindJSON(&query); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": "Invalid funnel query."})
		return
	}
	if err := query.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": err.Error()})
		return
	}

	result, err := analytics.ExecuteFunnelQuery(api.Store, &query)
	if err != nil {
		log.WithError(err).Error("Failed to execute funnel query.")
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"error": "Failed to execute funnel query."})
		return
	}
	c.JSON(http.StatusOK, result)
}
