package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/SergeiKhy/link-registry/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LinkHandler struct {
	service service.LinkService
	logger  *zap.Logger
	baseURL string
}

func NewLinkHandler(service service.LinkService, logger *zap.Logger, baseURL string) *LinkHandler {
	return &LinkHandler{
		service: service,
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type CreateLinkRequest struct {
	TargetURL string  `json:"targetUrl"`
	Code      *string `json:"code,omitempty"`
}

// LinkResponse запись реестра плюс готовая короткая ссылка
type LinkResponse struct {
	models.Link
	ShortURL string `json:"shortUrl"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateLink godoc
// @Summary Create a short link
// @Description Create a new short code for a target URL, optionally with a custom code
// @Tags links
// @Accept json
// @Produce json
// @Param request body CreateLinkRequest true "Link creation request"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/links [post]
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Request body must be JSON with targetUrl",
		})
		return
	}

	link, err := h.service.CreateLink(c.Request.Context(), &models.CreateLinkInput{
		TargetURL: req.TargetURL,
		Code:      req.Code,
	})
	if err != nil {
		h.writeError(c, "Failed to create link", err)
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(link))
}

// ListLinks godoc
// @Summary List short links
// @Description List all links, newest first
// @Tags links
// @Produce json
// @Success 200 {array} LinkResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/links [get]
func (h *LinkHandler) ListLinks(c *gin.Context) {
	links, err := h.service.ListLinks(c.Request.Context())
	if err != nil {
		h.writeError(c, "Failed to list links", err)
		return
	}

	response := make([]LinkResponse, 0, len(links))
	for i := range links {
		response = append(response, h.toResponse(&links[i]))
	}

	c.JSON(http.StatusOK, response)
}

// GetLink godoc
// @Summary Get a short link
// @Tags links
// @Produce json
// @Param code path string true "Short code"
// @Success 200 {object} LinkResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/links/{code} [get]
func (h *LinkHandler) GetLink(c *gin.Context) {
	code := c.Param("code")

	link, err := h.service.GetLink(c.Request.Context(), code)
	if err != nil {
		h.writeError(c, "Failed to get link", err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(link))
}

// DeleteLink godoc
// @Summary Delete a short link
// @Tags links
// @Param code path string true "Short code"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/links/{code} [delete]
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	code := c.Param("code")

	if err := h.service.DeleteLink(c.Request.Context(), code); err != nil {
		h.writeError(c, "Failed to delete link", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Redirect godoc
// @Summary Redirect to target URL
// @Description Resolve the short code, count the click and redirect
// @Tags links
// @Param code path string true "Short code"
// @Success 302
// @Failure 404 {object} ErrorResponse
// @Router /{code} [get]
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	target, err := h.service.Resolve(c.Request.Context(), code)
	if err != nil {
		h.writeError(c, "Failed to resolve link", err)
		return
	}

	c.Redirect(http.StatusFound, target)
}

func (h *LinkHandler) toResponse(link *models.Link) LinkResponse {
	return LinkResponse{
		Link:     *link,
		ShortURL: h.baseURL + "/" + link.Code,
	}
}

// writeError переводит ошибки реестра в HTTP ответы
func (h *LinkHandler) writeError(c *gin.Context, msg string, err error) {
	status, body := errorResponse(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("path", c.Request.URL.Path), zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.String("path", c.Request.URL.Path), zap.Error(err))
	}

	c.JSON(status, body)
}

func errorResponse(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		return http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "targetUrl must be an absolute http or https URL",
		}
	case errors.Is(err, service.ErrInvalidCode):
		return http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_code",
			Message: "Custom code must be 1-12 letters or digits and not a reserved route (healthz, api)",
		}
	case errors.Is(err, repository.ErrCodeExists):
		return http.StatusConflict, ErrorResponse{
			Error:   "code_exists",
			Message: "Code already exists",
		}
	case errors.Is(err, repository.ErrLinkNotFound):
		return http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Link not found",
		}
	case errors.Is(err, service.ErrAllocationExhausted):
		return http.StatusServiceUnavailable, ErrorResponse{
			Error:   "allocation_exhausted",
			Message: "Could not generate a unique code, try again",
		}
	case errors.Is(err, repository.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{
			Error:   "storage_unavailable",
			Message: "Storage is temporarily unavailable, try again later",
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Internal server error",
		}
	}
}
