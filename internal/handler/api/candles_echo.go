package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"CandleGrid/internal/domain/models"
	domrepo "CandleGrid/internal/domain/repository"
	"CandleGrid/internal/service/ratelimit"
	"CandleGrid/internal/usecase"
	xhttp "CandleGrid/pkg/http"
	xlogger "CandleGrid/pkg/logger"
)

// CandlesEchoHandler exposes the aligned read path, coordinated processing
// and the storage/cache maintenance surface over Echo.
type CandlesEchoHandler struct {
	logger      *xlogger.Logger
	reader      *usecase.AlignedReader
	coordinator *usecase.Coordinator
	store       domrepo.CandleStore
	cache       domrepo.CandleCache
	rl          *ratelimit.Limiter
}

func NewCandlesEchoHandler(
	logger *xlogger.Logger,
	reader *usecase.AlignedReader,
	coordinator *usecase.Coordinator,
	store domrepo.CandleStore,
	cache domrepo.CandleCache,
	rl *ratelimit.Limiter,
) *CandlesEchoHandler {
	return &CandlesEchoHandler{
		logger:      logger,
		reader:      reader,
		coordinator: coordinator,
		store:       store,
		cache:       cache,
		rl:          rl,
	}
}

func (h *CandlesEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/candles", h.Candles)
	g.POST("/coordinate", h.Coordinate)
	g.GET("/storage/stats", h.StorageStats)
	g.GET("/cache/stats", h.CacheStats)
	g.POST("/cache/invalidate", h.Invalidate)
}

func (h *CandlesEchoHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *CandlesEchoHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := models.NormalizeTimeframe(req.TF)

	from, ok := xhttp.ParseTime(req.From)
	if !ok {
		return xhttp.BadRequestResponse(c, "from must be RFC3339 or unix seconds")
	}
	to, ok := xhttp.ParseTime(req.To)
	if !ok {
		return xhttp.BadRequestResponse(c, "to must be RFC3339 or unix seconds")
	}

	res, err := h.reader.GetAligned(c.Request().Context(), req.Symbols, tf, from, to)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			return xhttp.BadRequestResponse(c, err.Error())
		}
		if errors.Is(err, models.ErrNoData) {
			return xhttp.NotFoundResponse(c, err.Error())
		}
		h.logger.Error("candles usecase error", xlogger.Error(err))
		if errors.Is(err, models.ErrStorageIO) {
			return xhttp.AppErrorResponse(c, xhttp.InternalError("storage unavailable").WithError(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CandlesEchoHandler) Coordinate(c echo.Context) error {
	req := &models.CoordinateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	// coordinated runs are heavy: one token every 30s per client
	if !h.rl.Allow(c.RealIP()+":coordinate", 2, 1.0/30) {
		return xhttp.TooManyRequestsResponse(c, "coordination rate limited")
	}

	useAggregation := true
	if req.UseAggregation != nil {
		useAggregation = *req.UseAggregation
	}

	res := h.coordinator.ProcessAllTimeframes(c.Request().Context(), req.Symbols, req.DaysBack, useAggregation)
	if !res.Success {
		h.logger.Warn("coordination finished with errors",
			xlogger.Int("errors", len(res.Errors)),
			xlogger.Int("processed", len(res.ProcessedTimeframes)),
		)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CandlesEchoHandler) StorageStats(c echo.Context) error {
	stats, err := h.store.Statistics(c.Request().Context())
	if err != nil {
		h.logger.Error("storage stats error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("storage stats: %v", err))
	}
	return xhttp.SuccessResponse(c, stats)
}

func (h *CandlesEchoHandler) CacheStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.cache.Statistics())
}

func (h *CandlesEchoHandler) Invalidate(c echo.Context) error {
	req := &models.InvalidateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := models.NormalizeTimeframe(req.TF)
	removed := h.cache.InvalidateTimeframe(c.Request().Context(), tf)
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"timeframe": tf,
		"removed":   removed,
	})
}
