// Package server exposes the orchestrator over HTTP: JSON request/response
// routes, a single-frame SSE variant of chat, and a bidirectional WebSocket
// channel. Transports validate request shape and relay orchestrator output;
// all orchestration semantics live below this layer.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hupe1980/supportflow/approval"
	"github.com/hupe1980/supportflow/logging"
	"github.com/hupe1980/supportflow/orchestrator"
)

// Options configure the server.
type Options struct {
	// Addr is the listen address.
	Addr string
	// ChatTimeout bounds one chat call end to end, including approval waits.
	ChatTimeout time.Duration
	// Logger receives transport diagnostics.
	Logger logging.Logger
}

// Server is the HTTP and WebSocket transport over one orchestrator.
type Server struct {
	echo        *echo.Echo
	orch        *orchestrator.Orchestrator
	addr        string
	chatTimeout time.Duration
	logger      logging.Logger
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

type ingestRequest struct {
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ingestResponse struct {
	IDs []string `json:"ids"`
}

type approveRequest struct {
	RequestID  string `json:"requestId"`
	Approved   bool   `json:"approved"`
	ApprovedBy string `json:"approvedBy"`
}

type approveResponse struct {
	Success bool `json:"success"`
}

type approvalsResponse struct {
	Requests []approval.Request `json:"requests"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the server and mounts its routes.
func New(orch *orchestrator.Orchestrator, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:        ":8080",
		ChatTimeout: 2 * time.Minute,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())

	s := &Server{
		echo:        e,
		orch:        orch,
		addr:        opts.Addr,
		chatTimeout: opts.ChatTimeout,
		logger:      logging.OrNoOp(opts.Logger),
	}

	e.POST("/chat", s.handleChat)
	e.POST("/chat/stream", s.handleChatStream)
	e.POST("/ingest", s.handleIngest)
	e.POST("/approve", s.handleApprove)
	e.GET("/approvals", s.handleApprovals)
	e.GET("/health", s.handleHealth)
	e.GET("/ws", s.handleWebSocket)

	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server.listening", "addr", s.addr)
	return s.echo.Start(s.addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleChat(c echo.Context) error {
	req, err := bindChat(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.chatTimeout)
	defer cancel()

	result, err := s.orch.Chat(ctx, req.Message, req.SessionID, req.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

// handleChatStream delivers the chat result as a single event-stream frame.
// The stream terminates after one event; token-level streaming is not part
// of the transport contract.
func (s *Server) handleChatStream(c echo.Context) error {
	req, err := bindChat(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.chatTimeout)
	defer cancel()

	result, err := s.orch.Chat(ctx, req.Message, req.SessionID, req.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to encode response"})
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
		return err
	}
	resp.Flush()
	return nil
}

func (s *Server) handleIngest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	ids, err := s.orch.IngestDocument(c.Request().Context(), req.Title, req.Content, req.Metadata)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, ingestResponse{IDs: ids})
}

func (s *Server) handleApprove(c echo.Context) error {
	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.RequestID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "requestId is required"})
	}
	if req.ApprovedBy == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "approvedBy is required"})
	}

	if err := s.orch.ApproveTool(req.RequestID, req.Approved, req.ApprovedBy); err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, approveResponse{Success: true})
}

// handleApprovals lists requests still awaiting a decision, for operator
// dashboards polling between approve calls.
func (s *Server) handleApprovals(c echo.Context) error {
	pending := s.orch.PendingApprovals()
	if pending == nil {
		pending = []approval.Request{}
	}
	return c.JSON(http.StatusOK, approvalsResponse{Requests: pending})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Health())
}

func bindChat(c echo.Context) (chatRequest, error) {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return chatRequest{}, fmt.Errorf("invalid request body")
	}
	if req.Message == "" {
		return chatRequest{}, fmt.Errorf("message is required")
	}
	return req, nil
}
