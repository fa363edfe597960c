package handler

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"enrolltrack/model/model"
)

const defaultPreviewSampleSize = 5

func openUploadedCSV(c *gin.Context) (multipart.File, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": "Missing csv file upload."})
		return nil, false
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.WithError(err).Error("Failed to open uploaded csv.")
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"error": "Failed to read uploaded csv."})
		return nil, false
	}
	return file, true
}

func (api *API) previewCompletionsHandler(c *gin.Context) {
	file, ok := openUploadedCSV(c)
	if !ok {
		return
	}
	defer file.Close()

	sampleSize, _ := strconv.Atoi(c.PostForm("sample_size"))
	if sampleSize <= 0 {
		sampleSize = defaultPreviewSampleSize
	}

	preview, err := api.Importer.Preview(file, sampleSize)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": "Failed to parse csv: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, preview)
}

// importCompletionsHandler accepts a multipart form: the csv under
// "file" and the confirmed import request as a json string under
// "request".
func (api *API) importCompletionsHandler(c *gin.Context) {
	file, ok := openUploadedCSV(c)
	if !ok {
		return
	}
	defer file.Close()

	var request model.ImportRequest
	if err := json.Unmarshal([]byte(c.PostForm("request")), &request); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": "Invalid import request."})
		return
	}
	if err := request.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": err.Error()})
		return
	}

	result, err := api.Importer.Import(file, &request)
	if err != nil {
		log.WithError(err).Error("Completion import failed.")
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"error": "Import failed.", "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}
