package api

import (
	stderrors "errors"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/monitor"
)

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Monitor.Status())
}

func (s *Server) handleWake(c *gin.Context) {
	res := s.opts.Power.Wake(c.Request.Context())
	s.log.Info("Wake command result: %s - %s", outcome(res.Success), res.Message)
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSleep(c *gin.Context) {
	res := s.opts.Power.Suspend(c.Request.Context())
	s.log.Info("Sleep command result: %s - %s", outcome(res.Success), res.Message)
	c.JSON(http.StatusOK, res)
}

func outcome(ok bool) string {
	if ok {
		return "SUCCESS"
	}
	return "FAILED"
}

// HealthCheckView is the health check section of /api/config.
type HealthCheckView struct {
	Path         string `json:"path"`
	Method       string `json:"method"`
	TimeoutMs    int64  `json:"timeout"`
	SuccessCodes string `json:"successCodes"`
}

// TargetView is the target section of /api/config.
type TargetView struct {
	Address     string          `json:"address"`
	MAC         string          `json:"mac"`
	SSHPort     int             `json:"sshPort"`
	HTTPPort    int             `json:"httpPort"`
	HealthCheck HealthCheckView `json:"healthCheck"`
}

// ProxyView is the proxy section of /api/config.
type ProxyView struct {
	WakeTimeoutMs     int64 `json:"wakeTimeout"`
	RequestTimeoutMs  int64 `json:"requestTimeout"`
	ReadinessBufferMs int64 `json:"readinessBuffer"`
}

// ConfigView is the body of GET /api/config.
type ConfigView struct {
	AutoSleep    monitor.AutoSleepPolicy `json:"autoSleep"`
	TargetServer TargetView              `json:"targetServer"`
	Proxy        ProxyView               `json:"proxy"`
}

func (s *Server) handleConfig(c *gin.Context) {
	cfg := s.opts.Config
	c.JSON(http.StatusOK, ConfigView{
		AutoSleep: s.opts.Monitor.AutoSleep(),
		TargetServer: TargetView{
			Address:  cfg.Target.Address,
			MAC:      cfg.Target.MAC,
			SSHPort:  cfg.Target.SSHPort,
			HTTPPort: cfg.Target.HTTPPort,
			HealthCheck: HealthCheckView{
				Path:         cfg.HealthCheck.Path,
				Method:       cfg.HealthCheck.Method,
				TimeoutMs:    cfg.HealthCheck.Timeout.Milliseconds(),
				SuccessCodes: cfg.HealthCheck.SuccessCodes,
			},
		},
		Proxy: ProxyView{
			WakeTimeoutMs:     cfg.Proxy.WakeTimeout.Milliseconds(),
			RequestTimeoutMs:  cfg.Proxy.RequestTimeout.Milliseconds(),
			ReadinessBufferMs: cfg.Proxy.ReadinessBuffer.Milliseconds(),
		},
	})
}

// AutoSleepRequest is the body of POST /api/config/autosleep. enabled,
// minutes and monitorGpu are required; the GPU tuning fields are optional.
type AutoSleepRequest struct {
	Enabled        *bool `json:"enabled" binding:"required"`
	Minutes        *int  `json:"minutes" binding:"required,min=1,max=120"`
	MonitorGPU     *bool `json:"monitorGpu" binding:"required"`
	GPUThreshold   *int  `json:"gpuThreshold" binding:"omitempty,min=0,max=100"`
	GPUIdleMinutes *int  `json:"gpuIdleMinutes" binding:"omitempty,min=1,max=120"`
}

// APIError is the body of a rejected control request.
type APIError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

var fieldMessages = map[string]string{
	"Minutes":        "Minutes must be between 1 and 120",
	"GPUThreshold":   "GPU threshold must be between 0 and 100",
	"GPUIdleMinutes": "GPU idle minutes must be between 1 and 120",
}

func (s *Server) handleAutoSleep(c *gin.Context) {
	var req AutoSleepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}

	policy, err := s.opts.Monitor.UpdateAutoSleep(monitor.AutoSleepUpdate{
		Enabled:        req.Enabled,
		IdleMinutes:    req.Minutes,
		MonitorGPU:     req.MonitorGPU,
		GPUThreshold:   req.GPUThreshold,
		GPUIdleMinutes: req.GPUIdleMinutes,
	})
	if err != nil {
		if errors.IsCode(err, errors.ErrConfig) {
			var dzErr *errors.Error
			stderrors.As(err, &dzErr)
			c.JSON(http.StatusBadRequest, APIError{Error: dzErr.Message, Details: dzErr.Suggestion})
			return
		}
		c.JSON(http.StatusInternalServerError, APIError{Error: "Failed to update configuration", Details: errors.Flatten(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Configuration updated successfully.",
		"config":    policy,
		"timestamp": s.clock.Now().UTC(),
	})
}

// bindError turns a binding failure into a response body. Range failures
// name the field; anything else (wrong types, missing fields, bad JSON) is a
// generic parameter error.
func bindError(err error) APIError {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return APIError{Error: "Invalid configuration parameters", Details: errors.Flatten(err)}
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fe.Field()+" failed "+fe.Tag())
	}
	for _, fe := range verrs {
		if msg, ok := fieldMessages[fe.StructField()]; ok && fe.Tag() != "required" {
			return APIError{Error: msg, Details: strings.Join(details, "; ")}
		}
	}
	return APIError{Error: "Invalid configuration parameters", Details: strings.Join(details, "; ")}
}

// ProcessView describes the gateway process on /health. Fields gopsutil
// could not read are null.
type ProcessView struct {
	PID        int      `json:"pid"`
	Goroutines int      `json:"goroutines"`
	RSSBytes   *uint64  `json:"rssBytes"`
	CPUPercent *float64 `json:"cpuPercent"`
}

// HealthView is the body of GET /health.
type HealthView struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Uptime    float64     `json:"uptime"`
	Version   string      `json:"version"`
	Config    gin.H       `json:"config"`
	Process   ProcessView `json:"process"`
}

func (s *Server) handleHealth(c *gin.Context) {
	cfg := s.opts.Config
	now := s.clock.Now()
	c.JSON(http.StatusOK, HealthView{
		Status:    "healthy",
		Timestamp: now.UTC(),
		Uptime:    now.Sub(s.started).Seconds(),
		Version:   s.opts.Version,
		Config: gin.H{
			"targetServer": gin.H{
				"ip":          cfg.Target.Address,
				"port":        cfg.Target.HTTPPort,
				"healthCheck": cfg.HealthCheck.Method + " " + cfg.HealthCheck.Path,
			},
		},
		Process: s.processView(c),
	})
}

func (s *Server) processView(c *gin.Context) ProcessView {
	pv := ProcessView{PID: os.Getpid(), Goroutines: runtime.NumGoroutine()}

	proc, err := process.NewProcessWithContext(c.Request.Context(), int32(pv.PID))
	if err != nil {
		s.log.Debug("Process stats unavailable: %v", err)
		return pv
	}
	if mem, err := proc.MemoryInfoWithContext(c.Request.Context()); err == nil && mem != nil {
		rss := mem.RSS
		pv.RSSBytes = &rss
	}
	if pct, err := proc.CPUPercentWithContext(c.Request.Context()); err == nil {
		pv.CPUPercent = &pct
	}
	return pv
}
