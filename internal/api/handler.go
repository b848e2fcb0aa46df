// Package api serves the read-only status API, the metrics scrape endpoint
// and the operator job trigger.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"signal-engine/internal/engine"
	"signal-engine/internal/events"
)

const defaultTradeLimit = 50

// Server wires HTTP endpoints around the engine read side.
type Server struct {
	Router         *gin.Engine
	Engine         engine.Service
	Bus            *events.Bus
	Gatherer       prometheus.Gatherer
	OperatorSecret string
	Log            zerolog.Logger

	limiters *limiterStore
}

func NewServer(svc engine.Service, bus *events.Bus, gatherer prometheus.Gatherer, operatorSecret string, log zerolog.Logger) *Server {
	r := gin.New()
	s := &Server{
		Router:         r,
		Engine:         svc,
		Bus:            bus,
		Gatherer:       gatherer,
		OperatorSecret: operatorSecret,
		Log:            log.With().Str("component", "api").Logger(),
		limiters:       newLimiterStore(20, 50),
	}

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(s.Log))
	r.Use(RateLimitMiddleware(s.limiters, s.Log))
	r.Use(TimeoutMiddleware(30*time.Second, s.Log))
	r.Use(CORSMiddleware())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/healthz", s.health)
	s.Router.GET("/metrics", s.metrics)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/strategies", s.getStrategies)
		api.GET("/markets", s.getMarketStates)
		api.GET("/markets/:market/state", s.getMarketState)
		api.GET("/trades/pending", s.getPendingTrades)
		api.GET("/users/:id/trades", s.getUserTrades)

		operator := api.Group("")
		operator.Use(AuthMiddleware(s.OperatorSecret))
		{
			operator.POST("/jobs/:name/run", s.runJob)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) metrics(c *gin.Context) {
	if s.Gatherer == nil {
		c.Status(http.StatusNotFound)
		return
	}
	s.Engine.RefreshGauges()
	promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.SystemStatus(c.Request.Context()))
}

func (s *Server) getStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.ListStrategies(c.Request.Context()))
}

func (s *Server) getMarketStates(c *gin.Context) {
	list, err := s.Engine.ListMarketStates(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getMarketState(c *gin.Context) {
	st, err := s.Engine.MarketState(c.Request.Context(), c.Param("market"))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) getPendingTrades(c *gin.Context) {
	list, err := s.Engine.PendingTrades(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getUserTrades(c *gin.Context) {
	limit := defaultTradeLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_LIMIT",
				"error": "limit must be an integer in [1,500]",
			})
			return
		}
		limit = n
	}
	list, err := s.Engine.UserTrades(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) runJob(c *gin.Context) {
	name := c.Param("name")
	switch name {
	case engine.JobReconcile, engine.JobRisk, engine.JobSignal:
	default:
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "UNKNOWN_JOB",
			"error": "unknown job " + name,
		})
		return
	}
	// Runs inline; a job that is already running is skipped, not queued.
	if !s.Engine.TriggerJob(c.Request.Context(), name) {
		c.JSON(http.StatusConflict, gin.H{
			"code":  "JOB_BUSY",
			"error": "job is running or the scheduler is not started",
		})
		return
	}
	s.Log.Info().Str("job", name).Str("operator", CurrentOperator(c)).Msg("job run on demand")
	c.JSON(http.StatusOK, gin.H{"job": name, "status": "completed"})
}

func internalError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"code":  "INTERNAL_ERROR",
		"error": err.Error(),
	})
}
