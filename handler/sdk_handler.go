package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"enrolltrack/sdk"
)

func (api *API) trackHandler(c *gin.Context) {
	var payload sdk.TrackPayload
	if err := c.BindJSON(&payload); err != nil {
		log.WithError(err).Error("Failed to decode track payload.")
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": "Invalid track payload."})
		return
	}
	if payload.UserAgent == "" {
		payload.UserAgent = c.Request.UserAgent()
	}

	status, response := sdk.Track(api.Store, &payload)
	c.JSON(status, response)
}

func (api *API) identifyHandler(c *gin.Context) {
	var payload sdk.IdentifyPayload
	if err := c.BindJSON(&payload); err != nil {
		log.WithError(err).Error("Failed to decode identify payload.")
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": "Invalid identify payload."})
		return
	}

	status, response := sdk.Identify(api.Store, &payload)
	c.JSON(status, response)
}
