// Package api exposes the arena over HTTP (gin) and the play stream over
// websockets.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"coinrush/internal/arena"
	"coinrush/internal/config"
	"coinrush/internal/leaderboard"
	"coinrush/internal/monitoring"
	"coinrush/internal/store"
	"coinrush/internal/wallet"
)

const requestIDKey = "request_id"

type Options struct {
	Cfg     config.Config
	Arena   *arena.Arena
	Chain   *wallet.Chain
	Store   store.Store
	Board   leaderboard.Board
	Metrics *monitoring.Metrics
	Logger  *log.Logger

	// Probe reports on the RPC node. Defaults to wallet.Probe.
	Probe func(ctx context.Context, endpoint string) wallet.NetworkInfo
}

type Server struct {
	cfg      config.Config
	arena    *arena.Arena
	chain    *wallet.Chain
	store    store.Store
	board    leaderboard.Board
	metrics  *monitoring.Metrics
	tickets  *Tickets
	errs     *ErrorHandler
	limiter  *IPLimiter
	upgrader websocket.Upgrader
	probe    func(ctx context.Context, endpoint string) wallet.NetworkInfo
	started  time.Time
}

func NewServer(opts Options) (*Server, error) {
	if opts.Arena == nil || opts.Chain == nil || opts.Store == nil || opts.Board == nil {
		return nil, errors.New("api: arena, chain, store and board are required")
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetrics(0)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stdout, "[API] ", log.LstdFlags)
	}
	if opts.Probe == nil {
		opts.Probe = wallet.Probe
	}
	tickets, err := NewTickets(opts.Cfg.JWTSecret, opts.Cfg.TicketTTL)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      opts.Cfg,
		arena:    opts.Arena,
		chain:    opts.Chain,
		store:    opts.Store,
		board:    opts.Board,
		metrics:  opts.Metrics,
		tickets:  tickets,
		errs:     NewErrorHandler(opts.Logger),
		limiter:  NewIPLimiter(opts.Cfg.APIRatePerSec, opts.Cfg.APIBurst),
		upgrader: newUpgrader(opts.Cfg.CORSOrigins),
		probe:    opts.Probe,
		started:  time.Now(),
	}, nil
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	router.Use(s.requestID())
	router.Use(gin.Logger())
	router.Use(s.errs.Recovery())
	router.Use(s.cors())
	router.Use(s.metricsMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/ws/play", s.handlePlay)

	v1 := router.Group("/api/v1")
	v1.Use(s.limiter.Middleware(s.errs))
	{
		v1.GET("/modes", s.handleModes)
		v1.GET("/network", s.handleNetwork)

		sessions := v1.Group("/sessions")
		sessions.POST("", s.handleOpen)
		sessions.GET("/:id", s.handleSession)
		sessions.POST("/:id/exit", s.handleExit)
		sessions.POST("/:id/restart", s.handleRestart)

		w := v1.Group("/wallet/:address")
		w.GET("/balance", s.handleBalance)
		w.GET("/history", s.handleHistory)
		w.GET("/results", s.handleResults)
		w.POST("/daily", s.handleDaily)

		v1.GET("/leaderboard/:mode", s.handleLeaderboard)
		v1.GET("/achievements", s.handleAchievements)
		v1.GET("/players/:address/stats", s.handlePlayerStats)

		tournaments := v1.Group("/tournaments")
		tournaments.GET("", s.handleTournaments)
		tournaments.GET("/:id", s.handleTournament)
		tournaments.POST("/:id/join", s.handleJoinTournament)
	}

	router.NoRoute(func(c *gin.Context) {
		s.errs.Abort(c, NewNotFoundError("Route not found"), nil)
	})
	return router
}

// Health is shared with the metrics server.
func (s *Server) Health(ctx context.Context) map[string]any {
	body := map[string]any{
		"status":        "healthy",
		"timestamp":     time.Now(),
		"uptime_sec":    int(time.Since(s.started).Seconds()),
		"live_sessions": s.arena.Live(),
		"store":         "ok",
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.store.Ping(pctx); err != nil {
		body["status"] = "degraded"
		body["store"] = err.Error()
	}
	return body
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) cors() gin.HandlerFunc {
	allowed := make(map[string]bool, len(s.cfg.CORSOrigins))
	for _, o := range s.cfg.CORSOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		s.metrics.RecordRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
