// Package apihttp exposes the market cache, the local simulator and the
// remote job orchestrator over HTTP for a presentation layer.
package apihttp

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"quantdesk/internal/engine"
	"quantdesk/internal/logger"
	"quantdesk/internal/market"
	"quantdesk/internal/marketcache"
	"quantdesk/internal/store/candles"
	"quantdesk/internal/store/jobs"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// CandleArchive is the read side of the candle archive.
type CandleArchive interface {
	Query(ctx context.Context, asset, timeframe string, limit int) ([]market.Candle, error)
	Manifest(ctx context.Context, asset, timeframe string) (candles.Manifest, error)
}

// JobHistory lists persisted remote jobs.
type JobHistory interface {
	List(ctx context.Context, limit int) ([]jobs.Record, error)
}

type Config struct {
	Addr         string
	Cache        *marketcache.Cache
	Synthetic    *market.SyntheticGenerator
	Archive      CandleArchive
	Orchestrator *engine.Orchestrator
	Jobs         JobHistory
	// BacktestWindow is the bar count requested for local runs.
	BacktestWindow int
}

type Server struct {
	addr     string
	router   *gin.Engine
	cache    *marketcache.Cache
	synth    *market.SyntheticGenerator
	archive  CandleArchive
	orch     *engine.Orchestrator
	jobs     JobHistory
	window   int
	upgrader websocket.Upgrader
	log      *logger.Entry

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	loaders map[string]*marketcache.Loader
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Cache == nil {
		return nil, errors.New("http api requires a market cache")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	if cfg.BacktestWindow <= 0 {
		cfg.BacktestWindow = 2000
	}
	if cfg.Synthetic == nil {
		cfg.Synthetic = market.NewSyntheticGenerator(time.Now().UnixNano())
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:    cfg.Addr,
		router:  router,
		cache:   cfg.Cache,
		synth:   cfg.Synthetic,
		archive: cfg.Archive,
		orch:    cfg.Orchestrator,
		jobs:    cfg.Jobs,
		window:  cfg.BacktestWindow,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     logger.With("http"),
		baseCtx: ctx,
		stop:    cancel,
		loaders: make(map[string]*marketcache.Loader),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := s.router.Group("/api")
	api.GET("/candles", s.handleCandles)
	api.POST("/candles/prefetch", s.handlePrefetch)
	api.GET("/candles/archive", s.handleArchive)
	api.GET("/cache/stats", s.handleCacheStats)
	api.GET("/view", s.handleView)
	api.POST("/backtest/local", s.handleLocalBacktest)
	api.POST("/backtest/remote", s.handleRemoteSubmit)
	api.GET("/backtest/remote", s.handleRemoteState)
	api.DELETE("/backtest/remote", s.handleRemoteReset)
	api.GET("/backtest/remote/stream", s.handleRemoteStream)
	api.GET("/backtest/remote/report", s.handleRemoteReport)
	api.GET("/jobs", s.handleJobs)
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string { return s.addr }

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, c.Writer.Status(), client, time.Since(start))
	}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Infof("[http] listening on %s", s.addr)

	select {
	case <-ctx.Done():
		s.Close()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		s.Close()
		return err
	}
}

// Close cancels consumer loads and ends open streams.
func (s *Server) Close() {
	s.stop()
	s.mu.Lock()
	loaders := make([]*marketcache.Loader, 0, len(s.loaders))
	for _, l := range s.loaders {
		loaders = append(loaders, l)
	}
	s.mu.Unlock()
	for _, l := range loaders {
		l.Cancel()
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, market.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	var fe *market.FetchError
	if errors.As(err, &fe) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
