package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"enrolltrack/handoff"
	"enrolltrack/model/model"
	U "enrolltrack/util"
)

type completeHandoffPayload struct {
	AccountNumber string `json:"account_number"`
	// unix seconds, defaults to now.
	CompletedAt int64 `json:"completed_at"`
}

func (api *API) createHandoffHandler(c *gin.Context) {
	var request handoff.IssueRequest
	if err := c.BindJSON(&request); err != nil {
		log.WithError(err).Error("Failed to decode handoff payload.")
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": "Invalid handoff payload."})
		return
	}

	if request.InstanceID == 0 || request.VisitorID == "" || request.DestinationURL == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": "Missing instance_id, visitor_id or destination_url."})
		return
	}

	created, err := api.Lifecycle.Issue(&request)
	if err != nil {
		abortWithHandoffError(c, err, "Failed to create handoff.")
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (api *API) getHandoffHandler(c *gin.Context) {
	found, err := api.Lifecycle.Get(c.Param("token"))
	if err != nil {
		abortWithHandoffError(c, err, "Failed to get handoff.")
		return
	}
	c.JSON(http.StatusOK, found)
}

func (api *API) redirectHandoffHandler(c *gin.Context) {
	if err := api.Lifecycle.MarkRedirected(c.Param("token")); err != nil {
		abortWithHandoffError(c, err, "Failed to mark handoff redirected.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (api *API) completeHandoffHandler(c *gin.Context) {
	var payload completeHandoffPayload
	if err := c.BindJSON(&payload); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": "Invalid completion payload."})
		return
	}
	if payload.AccountNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": "Missing account_number."})
		return
	}

	completed, err := api.Lifecycle.Complete(c.Param("token"),
		payload.AccountNumber, payload.CompletedAt)
	if err != nil {
		abortWithHandoffError(c, err, "Failed to complete handoff.")
		return
	}
	c.JSON(http.StatusOK, completed)
}

func (api *API) abandonHandoffHandler(c *gin.Context) {
	if err := api.Lifecycle.Abandon(c.Param("token")); err != nil {
		abortWithHandoffError(c, err, "Failed to abandon handoff.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (api *API) handoffStatsHandler(c *gin.Context) {
	instanceID, err := strconv.ParseInt(c.Query("instance_id"), 10, 64)
	if err != nil || instanceID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": "Invalid instance_id."})
		return
	}

	from, _ := strconv.ParseInt(c.Query("from"), 10, 64)
	to, _ := strconv.ParseInt(c.Query("to"), 10, 64)
	if to == 0 {
		to = U.TimeNowUnix()
	}

	stats, err := api.Lifecycle.Stats(instanceID, from, to)
	if err != nil {
		log.WithError(err).Error("Failed to compute handoff stats.")
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"error": "Failed to compute handoff stats."})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func abortWithHandoffError(c *gin.Context, err error, message string) {
	switch errors.Cause(err) {
	case model.ErrNotFound:
		c.AbortWithStatusJSON(http.StatusNotFound,
			gin.H{"error": "Handoff not found."})
	case model.ErrAlreadyTerminal:
		c.AbortWithStatusJSON(http.StatusConflict,
			gin.H{"error": "Handoff is already in a terminal state."})
	default:
		log.WithError(err).Error(message)
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"error": message})
	}
}
