package apihttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"quantdesk/internal/market"
	"quantdesk/internal/marketcache"

	"github.com/gin-gonic/gin"
)

type windowRequest struct {
	Asset     string `json:"asset" form:"asset" binding:"required"`
	Timeframe string `json:"timeframe" form:"timeframe" binding:"required"`
	Limit     int    `json:"limit" form:"limit"`
}

func (r windowRequest) limitOr(def int) int {
	if r.Limit <= 0 {
		return def
	}
	return r.Limit
}

func (s *Server) handleCandles(c *gin.Context) {
	var req windowRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset/timeframe required"})
		return
	}
	if _, err := market.ParseTimeframe(req.Timeframe); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := req.limitOr(market.TimeframeOrDefault(req.Timeframe).InitialWindow())
	data, err := s.cache.EnsureWindow(c.Request.Context(), req.Asset, req.Timeframe, limit)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"asset":     strings.ToUpper(req.Asset),
		"timeframe": req.Timeframe,
		"count":     len(data),
		"candles":   data,
	})
}

func (s *Server) handlePrefetch(c *gin.Context) {
	var req windowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := req.limitOr(s.cache.MaxCandles())
	go s.cache.PrefetchWindow(s.baseCtx, req.Asset, req.Timeframe, limit)
	c.JSON(http.StatusAccepted, gin.H{"key": marketcache.MakeKey(req.Asset, req.Timeframe), "limit": limit})
}

func (s *Server) handleArchive(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "candle archive disabled"})
		return
	}
	var req windowRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset/timeframe required"})
		return
	}
	ctx := c.Request.Context()
	manifest, err := s.archive.Manifest(ctx, req.Asset, req.Timeframe)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	data, err := s.archive.Query(ctx, req.Asset, req.Timeframe, req.limitOr(500))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": manifest, "candles": data})
}

func (s *Server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.Stats())
}

type viewResponse struct {
	marketcache.View
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// handleView drives the consumer's loader. Without an asset it reports the
// consumer's current view, which is how clients observe escalation.
func (s *Server) handleView(c *gin.Context) {
	consumer := strings.TrimSpace(c.Query("consumer"))
	if consumer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "consumer required"})
		return
	}
	asset := strings.TrimSpace(c.Query("asset"))
	if asset == "" {
		l, ok := s.lookupLoader(consumer)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown consumer"})
			return
		}
		c.JSON(http.StatusOK, newViewResponse(l.Current()))
		return
	}
	timeframe := c.DefaultQuery("timeframe", "1h")
	if _, err := market.ParseTimeframe(timeframe); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	l := s.loader(consumer)
	// Escalation outlives the request, so the load hangs off the server context.
	v := l.Load(s.baseCtx, asset, timeframe)
	if v.Err != nil && len(v.Candles) == 0 {
		c.JSON(statusForError(v.Err), newViewResponse(v))
		return
	}
	c.JSON(http.StatusOK, newViewResponse(v))
}

func newViewResponse(v marketcache.View) viewResponse {
	return viewResponse{View: v, Count: len(v.Candles), Error: v.ErrText()}
}

func (s *Server) loader(consumer string) *marketcache.Loader {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loaders[consumer]
	if !ok {
		l = marketcache.NewLoader(s.cache, s.synth)
		s.loaders[consumer] = l
	}
	return l
}

func (s *Server) lookupLoader(consumer string) (*marketcache.Loader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loaders[consumer]
	return l, ok
}

func parseLimit(c *gin.Context, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid limit")
	}
	return n, nil
}
