package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/smarthouse/bridge"
)

// StatsSource provides the bridge counters
type StatsSource interface {
	Snapshot() bridge.Snapshot
}

// PushStatus reports remote_write progress. It is optional.
type PushStatus interface {
	LastPushTime() time.Time
	Buffered() int
}

// Status represents the health status of the service
type Status struct {
	Status          string     `json:"status"`
	LastStored      time.Time  `json:"lastStored"`
	LastPushTime    *time.Time `json:"lastPushTime,omitempty"`
	BufferedSamples int        `json:"bufferedSamples"`
	Reason          string     `json:"reason,omitempty"`
}

type Config struct {
	Port int
	// StaleAfter marks the service unhealthy when nothing was stored for longer
	StaleAfter time.Duration
	// PushStaleAfter does the same for remote_write pushes
	PushStaleAfter time.Duration
}

// Checker serves /health and /stats
type Checker struct {
	cfg    Config
	stats  StatsSource
	pusher PushStatus
	server *http.Server
	logger *zap.Logger
	now    func() time.Time
}

// NewChecker creates a Checker. pusher may be nil when remote_write is off.
func NewChecker(cfg Config, stats StatsSource, pusher PushStatus, logger *zap.Logger) *Checker {
	c := &Checker{
		cfg:    cfg,
		stats:  stats,
		pusher: pusher,
		logger: logger.Named("health"),
		now:    time.Now,
	}

	c.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      c.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return c
}

// Handler returns the routed, access-logged and gzip-aware handler
func (c *Checker) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", c.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/stats", c.handleStats).Methods(http.MethodGet)

	access := zap.NewStdLog(c.logger.Named("access")).Writer()
	return handlers.RecoveryHandler()(handlers.LoggingHandler(access, gziphandler.GzipHandler(router)))
}

// Start begins serving the health check endpoint
func (c *Checker) Start() error {
	c.logger.Info("Starting health check server", zap.String("addr", c.server.Addr))
	if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health check server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the health check server
func (c *Checker) Stop(ctx context.Context) error {
	return c.server.Shutdown(ctx)
}

func (c *Checker) check() Status {
	now := c.now()
	snap := c.stats.Snapshot()
	status := Status{Status: "healthy", LastStored: snap.LastStored}

	if c.cfg.StaleAfter > 0 && !snap.LastStored.IsZero() && now.Sub(snap.LastStored) > c.cfg.StaleAfter {
		status.Status = "unhealthy"
		status.Reason = "no reading stored since " + snap.LastStored.Format(time.RFC3339)
	}

	if c.pusher != nil {
		lastPush := c.pusher.LastPushTime()
		status.BufferedSamples = c.pusher.Buffered()
		if !lastPush.IsZero() {
			status.LastPushTime = &lastPush
			if c.cfg.PushStaleAfter > 0 && now.Sub(lastPush) > c.cfg.PushStaleAfter && status.Reason == "" {
				status.Status = "unhealthy"
				status.Reason = "no remote_write push since " + lastPush.Format(time.RFC3339)
			}
		}
	}
	return status
}

func (c *Checker) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := c.check()

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		c.logger.Warn("Failed to encode health status", zap.Error(err))
	}
}

func (c *Checker) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.stats.Snapshot()); err != nil {
		c.logger.Warn("Failed to encode stats", zap.Error(err))
	}
}
