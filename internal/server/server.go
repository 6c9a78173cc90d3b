// Package server exposes the pipeline over HTTP: an SSE chat endpoint,
// conversation management, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/permaevidence/HopPT/internal/history"
	"github.com/permaevidence/HopPT/internal/pipeline"
	"github.com/permaevidence/HopPT/internal/telemetry"
	"github.com/permaevidence/HopPT/provider"
)

// Server wires the pipeline into HTTP handlers. At most one run is active
// per conversation: starting a new one cancels its predecessor.
type Server struct {
	echo     *echo.Echo
	pipeline *pipeline.Pipeline
	history  history.Store
	metrics  *telemetry.Metrics
	logger   *log.Logger

	mu     sync.Mutex
	active map[string]*runHandle
}

// runHandle identifies one in-flight run so a finished run only removes
// its own registry entry.
type runHandle struct {
	cancel context.CancelFunc
}

// New builds the server and registers all routes.
func New(p *pipeline.Pipeline, hist history.Store, metrics *telemetry.Metrics, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	s := &Server{
		pipeline: p,
		history:  hist,
		metrics:  metrics,
		logger:   logger,
		active:   make(map[string]*runHandle),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	e.POST("/api/chat", s.handleChat)
	e.POST("/api/conversations/:id/cancel", s.handleCancel)
	e.GET("/api/conversations/:id", s.handleMessages)
	e.DELETE("/api/conversations/:id", s.handleClear)

	s.echo = e
	return s
}

// Start blocks serving on addr.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// beginRun registers a run, cancelling any run already active for the
// conversation.
func (s *Server) beginRun(conversationID string, handle *runHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.active[conversationID]; ok {
		prev.cancel()
	}
	s.active[conversationID] = handle
}

func (s *Server) endRun(conversationID string, handle *runHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.active[conversationID]; ok && current == handle {
		delete(s.active, conversationID)
	}
}

// handleChat runs one pipeline turn and streams status events and text
// deltas over SSE.
func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if req.ConversationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation_id is required")
	}

	stored, err := s.history.Messages(c.Request().Context(), req.ConversationID)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	turns := make([]provider.Message, 0, len(stored))
	for _, m := range stored {
		turns = append(turns, provider.Message{Role: m.Role, Content: m.Content})
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	handle := &runHandle{cancel: cancel}
	s.beginRun(req.ConversationID, handle)
	defer s.endRun(req.ConversationID, handle)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	send := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, data)
		res.Flush()
	}

	var answer strings.Builder
	runErr := s.pipeline.Run(ctx, req.Message, turns,
		func(ev pipeline.StatusEvent) { send("status", ev) },
		func(delta string) {
			answer.WriteString(delta)
			send("delta", map[string]string{"text": delta})
		})

	switch {
	case runErr == nil:
		now := time.Now()
		s.appendHistory(req.ConversationID, history.Message{Role: "user", Content: req.Message, Timestamp: now})
		s.appendHistory(req.ConversationID, history.Message{Role: "assistant", Content: answer.String(), Timestamp: now})
		send("done", map[string]string{})
	case errors.Is(runErr, context.Canceled):
		// Cancellation is control flow, not an error.
		send("cancelled", map[string]string{})
	default:
		s.logger.Printf("run failed for conversation %s: %v", req.ConversationID, runErr)
		msg := fmt.Sprintf("This turn failed: %v", runErr)
		now := time.Now()
		s.appendHistory(req.ConversationID, history.Message{Role: "user", Content: req.Message, Timestamp: now})
		s.appendHistory(req.ConversationID, history.Message{Role: "assistant", Content: msg, Timestamp: now})
		send("error", map[string]string{"message": msg})
	}
	return nil
}

func (s *Server) appendHistory(conversationID string, msg history.Message) {
	if err := s.history.Append(context.Background(), conversationID, msg); err != nil {
		s.logger.Printf("appending history for %s: %v", conversationID, err)
	}
}

func (s *Server) handleCancel(c echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	handle, ok := s.active[id]
	s.mu.Unlock()
	if ok {
		// Cancelling the run's context also flips its scrape session's
		// cooperative flag; other conversations' runs are unaffected.
		handle.cancel()
	}
	return c.JSON(http.StatusOK, map[string]bool{"cancelled": ok})
}

func (s *Server) handleMessages(c echo.Context) error {
	msgs, err := s.history.Messages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) handleClear(c echo.Context) error {
	if err := s.history.Clear(c.Request().Context(), c.Param("id")); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return c.NoContent(http.StatusNoContent)
}
