package apihttp

import (
	"net/http"
	"strings"

	"quantdesk/internal/backtest"
	"quantdesk/internal/engine"
	"quantdesk/internal/report"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleLocalBacktest(c *gin.Context) {
	var req windowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := s.cache.EnsureWindow(c.Request.Context(), req.Asset, req.Timeframe, req.limitOr(s.window))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	res := backtest.RunBacktest(data)
	c.JSON(http.StatusOK, gin.H{"result": res, "summary": report.Summarize(res), "bars": len(data)})
}

func (s *Server) handleRemoteSubmit(c *gin.Context) {
	if !s.requireOrchestrator(c) {
		return
	}
	var payload engine.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st := s.orch.RunLeanBacktest(c.Request.Context(), payload)
	if st.Status == engine.StatusError {
		c.JSON(http.StatusUnprocessableEntity, st)
		return
	}
	c.JSON(http.StatusAccepted, st)
}

func (s *Server) handleRemoteState(c *gin.Context) {
	if !s.requireOrchestrator(c) {
		return
	}
	c.JSON(http.StatusOK, s.orch.State())
}

func (s *Server) handleRemoteReset(c *gin.Context) {
	if !s.requireOrchestrator(c) {
		return
	}
	s.orch.Reset()
	c.JSON(http.StatusOK, s.orch.State())
}

func (s *Server) handleRemoteReport(c *gin.Context) {
	if !s.requireOrchestrator(c) {
		return
	}
	st := s.orch.State()
	if st.Result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no remote result", "status": st.Status})
		return
	}
	title := "Remote backtest"
	if st.JobID != "" {
		title += " " + st.JobID
	}
	html, err := report.RenderEquityHTML(*st.Result, title)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (s *Server) handleJobs(c *gin.Context) {
	if s.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job history disabled"})
		return
	}
	limit, err := parseLimit(c, 50)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	records, err := s.jobs.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		want := engine.ParseStatus(status)
		filtered := records[:0]
		for _, rec := range records {
			if engine.ParseStatus(rec.Status) == want {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	c.JSON(http.StatusOK, gin.H{"jobs": records})
}

func (s *Server) requireOrchestrator(c *gin.Context) bool {
	if s.orch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "remote engine not configured"})
		return false
	}
	return true
}
