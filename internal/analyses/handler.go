package analyses

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"misalud-backend/internal/shared/server/respond"
)

const maxUploadSize = 15 << 20 // 15MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/analyze", h.analyze)
	rg.GET("/analyses", h.list)
	rg.GET("/analyses/:id", h.get)
	rg.POST("/chat", h.chat)
}

func (h *Handler) analyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	analysis, err := h.Svc.Analyze(c.Request.Context(), fileHeader.Filename, file, c.PostForm("backend"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "analysis_failed", err.Error(), nil)
		}
		return
	}

	c.Set("analysisId", analysis.ID)
	respond.Created(c, analysis)
}

func (h *Handler) get(c *gin.Context) {
	analysis, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", err.Error(), nil)
		}
		return
	}
	c.Set("analysisId", analysis.ID)
	respond.JSON(c, http.StatusOK, analysis)
}

func (h *Handler) list(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 20)
	offset := parseIntQuery(c, "offset", 0)

	analyses, err := h.Svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"analyses": analyses})
}

type chatRequest struct {
	AnalysisID string `json:"analysisId"`
	Question   string `json:"question"`
	Backend    string `json:"backend"`
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.AnalysisID = strings.TrimSpace(req.AnalysisID)
	if req.AnalysisID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "analysisId is required", nil)
		return
	}

	response, err := h.Svc.Ask(c.Request.Context(), req.AnalysisID, req.Question, req.Backend)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", err.Error(), nil)
		}
		return
	}
	c.Set("analysisId", req.AnalysisID)
	respond.JSON(c, http.StatusOK, response)
}

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
