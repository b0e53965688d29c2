package handlers

import (
	"bufio"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"slices"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/eyescan/internal/disease"
	"github.com/example/eyescan/internal/imagesource"
	"github.com/example/eyescan/internal/usecase"
)

// MaxUploadSize is the largest accepted image.
const MaxUploadSize = imagesource.MaxUploadSize

// maxRequestBody leaves room for multipart framing around a maximal image.
const maxRequestBody = MaxUploadSize + 1<<20

// sniffLen matches the prefix mimetype inspects by default.
const sniffLen = 3072

var uploadFields = []string{"image", "file"}

// RegisterRoutes wires the HTTP handlers to the Gin router. limiter throttles
// the analyze and capture triggers; nil disables throttling.
func RegisterRoutes(router *gin.Engine, uc *usecase.ScanUseCase, logger *zap.Logger, limiter *rate.Limiter) {
	h := &handler{uc: uc, logger: logger.Named("handlers")}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/model", h.modelStatus)
	api.GET("/metrics", h.metrics)

	api.GET("/diseases", h.listDiseases)
	api.GET("/diseases/:id", h.getDisease)

	api.POST("/sessions", h.createSession)
	api.GET("/sessions/:id", h.getSession)
	api.DELETE("/sessions/:id", h.deleteSession)
	api.PUT("/sessions/:id/mode", h.setMode)
	api.POST("/sessions/:id/image", h.uploadImage)
	api.GET("/sessions/:id/image", h.previewImage)
	api.POST("/sessions/:id/analyze", RateLimit(limiter), h.analyze)
	api.GET("/sessions/:id/result", h.result)
	api.POST("/sessions/:id/capture", RateLimit(limiter), h.capture)

	api.GET("/camera", h.cameraStatus)
	api.POST("/camera/start", h.startCamera)
	api.POST("/camera/stop", h.stopCamera)
}

type handler struct {
	uc     *usecase.ScanUseCase
	logger *zap.Logger
}

func (h *handler) modelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.uc.ModelStatus())
}

func (h *handler) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.uc.GetMetricsSummary())
}

func (h *handler) listDiseases(c *gin.Context) {
	featured, _ := strconv.ParseBool(c.DefaultQuery("featured", "false"))
	if featured {
		c.JSON(http.StatusOK, gin.H{"diseases": disease.Featured()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"diseases": disease.Records()})
}

func (h *handler) getDisease(c *gin.Context) {
	id, err := disease.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "disease not found"})
		return
	}
	rec, ok := disease.Lookup(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "disease not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (h *handler) createSession(c *gin.Context) {
	var req modeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	mode, err := usecase.ParseMode(req.Mode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.uc.CreateSession(mode))
}

func (h *handler) getSession(c *gin.Context) {
	snap, err := h.uc.Session(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handler) deleteSession(c *gin.Context) {
	if err := h.uc.DeleteSession(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) setMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Mode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode is required"})
		return
	}
	mode, err := usecase.ParseMode(req.Mode)
	if err != nil {
		writeError(c, err)
		return
	}
	snap, err := h.uc.SetMode(c.Param("id"), mode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// uploadImage streams the file part so its type is judged from the part
// header before any content is read; the size limit applies while reading.
func (h *handler) uploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody)

	part, err := filePart(c)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	defer part.Close()

	content := bufio.NewReaderSize(part, sniffLen)
	mediaType, err := declaredOrSniffed(part.Header, content)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read image"})
		return
	}

	snap, err := h.uc.SelectUpload(c.Request.Context(), c.Param("id"), imagesource.UploadFile{
		Name:      part.FileName(),
		MediaType: mediaType,
		Content:   content,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handler) previewImage(c *gin.Context) {
	img, err := h.uc.Image(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("format") == "dataurl" {
		c.JSON(http.StatusOK, gin.H{"id": img.ID, "data_url": img.DataURL()})
		return
	}
	c.Header("X-Image-ID", img.ID)
	c.Data(http.StatusOK, img.MediaType, img.Data)
}

func (h *handler) analyze(c *gin.Context) {
	sessionID := c.Param("id")
	if async(c) {
		snap, err := h.uc.AnalyzeAsync(c.Request.Context(), sessionID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, snap)
		return
	}

	snap, err := h.uc.Analyze(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handler) result(c *gin.Context) {
	payload, err := h.uc.Result(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (h *handler) capture(c *gin.Context) {
	asyncMode := async(c)
	snap, err := h.uc.Capture(c.Request.Context(), c.Param("id"), asyncMode)
	if err != nil {
		writeError(c, err)
		return
	}
	if asyncMode {
		c.JSON(http.StatusAccepted, snap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handler) cameraStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.uc.CameraStatus())
}

func (h *handler) startCamera(c *gin.Context) {
	status, err := h.uc.StartCamera(c.Request.Context())
	if err != nil {
		h.logger.Warn("camera start refused", zap.Error(err), zap.String("state", string(status.State)))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *handler) stopCamera(c *gin.Context) {
	c.JSON(http.StatusOK, h.uc.StopCamera())
}

func async(c *gin.Context) bool {
	v, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
	return v
}

// filePart returns the first part named "image" (picker) or "file" (drop
// zone). Other parts are skipped unread.
func filePart(c *gin.Context) (*multipart.Part, error) {
	reader, err := c.Request.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := reader.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, http.ErrMissingFile
			}
			return nil, err
		}
		if slices.Contains(uploadFields, part.FormName()) {
			return part, nil
		}
		part.Close()
	}
}

// declaredOrSniffed trusts the part's Content-Type unless it is missing or
// generic, in which case the first bytes are peeked without consuming them.
func declaredOrSniffed(header textproto.MIMEHeader, content *bufio.Reader) (string, error) {
	declared := strings.TrimSpace(header.Get("Content-Type"))
	if declared != "" && !strings.EqualFold(declared, "application/octet-stream") {
		return declared, nil
	}

	head, err := content.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return mimetype.Detect(head).String(), nil
}
