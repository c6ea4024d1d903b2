// Package api serves the control API, the status event stream, and the
// Prometheus endpoint. Every other path falls through to the gateway.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rileyhilliard/dozer/internal/clock"
	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/logger"
	"github.com/rileyhilliard/dozer/internal/monitor"
	"github.com/rileyhilliard/dozer/internal/observability"
	"github.com/rileyhilliard/dozer/internal/power"
)

// Event types pushed on /api/events.
const (
	EventStatus = "statusUpdate"
	EventLog    = "log"
)

// StatusSource is the monitor as seen by the API. *monitor.Monitor satisfies it.
type StatusSource interface {
	Status() monitor.Status
	AutoSleep() monitor.AutoSleepPolicy
	UpdateAutoSleep(u monitor.AutoSleepUpdate) (monitor.AutoSleepPolicy, error)
	Subscribe(fn func(monitor.Status)) (unsubscribe func())
}

// PowerControl runs wake and suspend. *power.Controller satisfies it.
type PowerControl interface {
	Wake(ctx context.Context) power.Result
	Suspend(ctx context.Context) power.Result
}

// Options wires a Server.
type Options struct {
	Config  *config.Config
	Monitor StatusSource
	Power   PowerControl

	// Gateway handles every request no route matched.
	Gateway http.Handler

	// Hub defaults to a new hub. Pass one in to share it with a log sink.
	Hub *Hub

	Version string
	Clock   clock.Clock
	Log     logger.Logger
	Metrics *observability.Metrics
}

// Server is the gin engine plus the pieces it owns.
type Server struct {
	opts    Options
	engine  *gin.Engine
	hub     *Hub
	limiter *RateLimiter
	started time.Time
	clock   clock.Clock
	log     logger.Logger
	unsub   func()
}

// New builds the router and subscribes the event hub to the monitor.
func New(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Log == nil {
		opts.Log = logger.Noop()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(opts.Log, opts.Metrics)
	}

	s := &Server{
		opts:    opts,
		hub:     opts.Hub,
		limiter: NewRateLimiter(opts.Config.API.PowerRateLimit, opts.Clock),
		started: opts.Clock.Now(),
		clock:   opts.Clock,
		log:     opts.Log,
	}
	s.hub.SetGreeting(func() Event {
		return Event{Type: EventStatus, Data: s.opts.Monitor.Status()}
	})
	s.unsub = opts.Monitor.Subscribe(func(st monitor.Status) {
		s.hub.Publish(Event{Type: EventStatus, Data: st})
	})
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	// Only exact API paths are ours; anything else belongs to the target.
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(recoverPanics(s.log), requestLog(s.log))

	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/config", s.handleConfig)
		api.POST("/config/autosleep", s.handleAutoSleep)
		api.GET("/events", s.hub.Handle)

		ctl := api.Group("", s.limiter.Middleware())
		ctl.POST("/wake", s.handleWake)
		ctl.POST("/sleep", s.handleSleep)
	}
	r.GET("/health", s.handleHealth)
	if s.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	if s.opts.Gateway != nil {
		r.NoRoute(gin.WrapH(s.opts.Gateway))
	}
	return r
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close stops event delivery and disconnects every listener.
func (s *Server) Close() {
	if s.unsub != nil {
		s.unsub()
	}
	s.hub.Close()
}

// recoverPanics is gin.Recovery that lets http.ErrAbortHandler through, so a
// stream that failed mid-response is cut off instead of getting a 500 tacked
// onto its body.
func recoverPanics(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Error("Panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, rec)
			if !c.Writer.Written() {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
				return
			}
			c.Abort()
		}()
		c.Next()
	}
}

func requestLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "" {
			return // proxied; the gateway logs its own requests
		}
		log.Debug("API %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}
