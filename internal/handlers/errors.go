package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/eyescan/internal/advisory"
	"github.com/example/eyescan/internal/usecase"
)

var advisoryStatus = map[advisory.Kind]int{
	advisory.InvalidFileType:        http.StatusUnsupportedMediaType,
	advisory.FileTooLarge:           http.StatusRequestEntityTooLarge,
	advisory.NoImageSelected:        http.StatusBadRequest,
	advisory.CameraUnavailable:      http.StatusServiceUnavailable,
	advisory.CameraPermissionDenied: http.StatusForbidden,
	advisory.CaptureFailed:          http.StatusConflict,
	advisory.ModelInitFailed:        http.StatusServiceUnavailable,
	advisory.ClassificationFailed:   http.StatusBadGateway,
}

// writeError maps err onto a status and an advisory-shaped body.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		err = advisory.New(advisory.FileTooLarge, err)
	}

	var adv *advisory.Error
	if errors.As(err, &adv) {
		status, ok := advisoryStatus[adv.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		c.AbortWithStatusJSON(status, gin.H{
			"error":       string(adv.Kind),
			"title":       adv.Title,
			"description": adv.Description,
		})
		return
	}

	switch {
	case errors.Is(err, usecase.ErrSessionNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, usecase.ErrAnalysisInProgress):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "analysis already in progress"})
	case errors.Is(err, usecase.ErrNoResult):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no result available"})
	case errors.Is(err, usecase.ErrNoImage):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no image selected"})
	case errors.Is(err, usecase.ErrInvalidMode):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
