// Package sandbox is an in-process execution service speaking the engine
// job API. It runs the built-in SMA crossover on cached market data.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"quantdesk/internal/backtest"
	"quantdesk/internal/engine"
	"quantdesk/internal/logger"
	"quantdesk/internal/market"
	"quantdesk/internal/marketcache"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultWindow = 2000

type Config struct {
	Addr      string
	Cache     *marketcache.Cache
	StepDelay time.Duration
	Window    int
}

type Server struct {
	addr      string
	router    *gin.Engine
	cache     *marketcache.Cache
	stepDelay time.Duration
	window    int
	log       *logger.Entry

	baseCtx context.Context
	stop    context.CancelFunc
	group   errgroup.Group

	mu   sync.RWMutex
	jobs map[string]*job
}

type job struct {
	id      string
	payload engine.Payload
	status  engine.JobStatus
	logs    []string
	err     string
	meta    *engine.ErrorMeta
	result  json.RawMessage
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Cache == nil {
		return nil, errors.New("sandbox requires a market cache")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}
	if cfg.StepDelay < 0 {
		cfg.StepDelay = 0
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:      cfg.Addr,
		router:    router,
		cache:     cfg.Cache,
		stepDelay: cfg.StepDelay,
		window:    cfg.Window,
		log:       logger.With("sandbox"),
		baseCtx:   ctx,
		stop:      cancel,
		jobs:      make(map[string]*job),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.POST("/jobs", s.handleSubmit)
	s.router.GET("/jobs/:id", s.handleStatus)
	s.router.GET("/jobs/:id/result", s.handleResult)
}

// Handler exposes the router for embedding and tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string { return s.addr }

// Start serves until ctx is cancelled, then drains running jobs.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Infof("[sandbox] listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return s.Close()
	case err := <-errCh:
		_ = s.Close()
		return err
	}
}

// Close cancels running jobs and waits for them.
func (s *Server) Close() error {
	s.stop()
	return s.group.Wait()
}

func (s *Server) handleSubmit(c *gin.Context) {
	var p engine.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, engine.Job{Status: string(engine.StatusError), Error: err.Error()})
		return
	}
	if err := engine.ValidatePayload(p); err != nil {
		c.JSON(http.StatusBadRequest, engine.Job{Status: string(engine.StatusError), Error: err.Error()})
		return
	}
	j := &job{
		id:      uuid.NewString(),
		payload: p,
		status:  engine.StatusQueued,
		logs:    []string{fmt.Sprintf("job accepted: %s %s", strings.ToUpper(p.Asset), p.Timeframe)},
	}
	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()
	s.group.Go(func() error {
		s.run(s.baseCtx, j.id)
		return nil
	})
	c.JSON(http.StatusAccepted, s.snapshot(j))
}

func (s *Server) handleStatus(c *gin.Context) {
	j, ok := s.lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, j)
}

func (s *Server) handleResult(c *gin.Context) {
	s.mu.RLock()
	j, ok := s.jobs[c.Param("id")]
	var resp engine.ResultResponse
	if ok {
		resp = engine.ResultResponse{Status: string(j.status), Result: j.result}
	}
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) lookup(id string) (engine.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return engine.Job{}, false
	}
	return s.snapshotLocked(j), true
}

func (s *Server) snapshot(j *job) engine.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(j)
}

func (s *Server) snapshotLocked(j *job) engine.Job {
	out := engine.Job{
		ID:     j.id,
		Status: string(j.status),
		Logs:   append([]string{}, j.logs...),
		Error:  j.err,
	}
	if j.meta != nil {
		meta := *j.meta
		out.ErrorMeta = &meta
	}
	return out
}

func (s *Server) update(id string, fn func(j *job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		fn(j)
	}
}

func (s *Server) logf(id, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	s.update(id, func(j *job) { j.logs = append(j.logs, line) })
}

// step pauses between progress lines; false when the server is closing.
func (s *Server) step(ctx context.Context) bool {
	if s.stepDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.stepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Server) fail(id string, meta engine.ErrorMeta) {
	s.update(id, func(j *job) {
		j.status = engine.StatusError
		j.err = meta.Message
		j.meta = &meta
		j.logs = append(j.logs, fmt.Sprintf("%s: %s", meta.Type, meta.Message))
	})
	s.log.Warnf("[sandbox] job %s failed in %s: %s", id, meta.Phase, meta.Message)
}

func (s *Server) run(ctx context.Context, id string) {
	s.mu.RLock()
	p := s.jobs[id].payload
	s.mu.RUnlock()

	if !s.step(ctx) {
		s.fail(id, engine.ErrorMeta{Type: "Cancelled", Message: "sandbox shutting down", Phase: "queue"})
		return
	}
	s.update(id, func(j *job) { j.status = engine.StatusRunning })
	if strings.TrimSpace(p.Code) != "" {
		s.logf(id, "custom code is not executed by the sandbox; running built-in SMA %d/%d crossover", backtest.ShortPeriod, backtest.LongPeriod)
	}

	candles, err := s.cache.EnsureWindow(ctx, p.Asset, p.Timeframe, s.window)
	if err != nil {
		s.fail(id, engine.ErrorMeta{Type: "DataError", Message: err.Error(), Phase: "data"})
		return
	}
	candles, err = filterRange(candles, p.StartDate, p.EndDate)
	if err != nil {
		s.fail(id, engine.ErrorMeta{Type: "ValueError", Message: err.Error(), Phase: "data"})
		return
	}
	s.logf(id, "loaded %d candles", len(candles))
	if !s.step(ctx) {
		s.fail(id, engine.ErrorMeta{Type: "Cancelled", Message: "sandbox shutting down", Phase: "run"})
		return
	}

	res := backtest.RunBacktest(candles)
	s.logf(id, "simulation finished: %d trades", res.TotalTrades)
	if !s.step(ctx) {
		s.fail(id, engine.ErrorMeta{Type: "Cancelled", Message: "sandbox shutting down", Phase: "report"})
		return
	}

	raw, err := json.Marshal(rawResult(res, p))
	if err != nil {
		s.fail(id, engine.ErrorMeta{Type: "EncodeError", Message: err.Error(), Phase: "report"})
		return
	}
	s.update(id, func(j *job) {
		j.result = raw
		j.status = engine.StatusCompleted
		j.logs = append(j.logs, fmt.Sprintf("completed: profit %.2f", res.TotalProfit))
	})
	s.log.Infof("[sandbox] job %s completed trades=%d", id, res.TotalTrades)
}

func filterRange(candles []market.Candle, start, end string) ([]market.Candle, error) {
	from, err := parseDate(start)
	if err != nil {
		return nil, fmt.Errorf("startDate: %w", err)
	}
	to, err := parseDate(end)
	if err != nil {
		return nil, fmt.Errorf("endDate: %w", err)
	}
	if from == 0 && to == 0 {
		return candles, nil
	}
	out := make([]market.Candle, 0, len(candles))
	for _, c := range candles {
		if from > 0 && c.Time < from {
			continue
		}
		if to > 0 && c.Time > to {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func parseDate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unrecognised date %q", s)
}
