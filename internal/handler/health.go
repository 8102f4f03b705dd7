package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/SergeiKhy/link-registry/internal/service"
	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

type HealthHandler struct {
	service   service.LinkService
	clicks    service.ClickProcessor
	startedAt time.Time
}

func NewHealthHandler(service service.LinkService, clicks service.ClickProcessor) *HealthHandler {
	return &HealthHandler{
		service:   service,
		clicks:    clicks,
		startedAt: time.Now(),
	}
}

type DBHealth struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type HealthResponse struct {
	OK            bool                  `json:"ok"`
	Service       string                `json:"service"`
	UptimeSeconds int64                 `json:"uptimeSeconds"`
	DB            DBHealth              `json:"db"`
	Clicks        *service.ChannelStats `json:"clicks,omitempty"`
	CheckMs       int64                 `json:"checkMs"`
}

// Health проверяет доступность хранилища
func (h *HealthHandler) Health(c *gin.Context) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		OK:            true,
		Service:       "link-registry",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		DB:            DBHealth{OK: true},
	}

	if err := h.service.Ping(ctx); err != nil {
		resp.OK = false
		resp.DB = DBHealth{OK: false, Error: err.Error()}
	}

	if h.clicks != nil {
		stats := h.clicks.Stats()
		resp.Clicks = &stats
	}

	resp.CheckMs = time.Since(start).Milliseconds()

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
