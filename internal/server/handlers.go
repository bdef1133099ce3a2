package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/chatbot"
	"github.com/Yates-Labs/auditor/internal/extract"
	"github.com/Yates-Labs/auditor/internal/minutes"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
}

// RespondWithError writes an ErrorResponse.
func RespondWithError(c *gin.Context, status int, code, message string, details any) {
	c.JSON(status, ErrorResponse{ErrorCode: code, Message: message, Details: details})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ChatRequest is the body of POST /api/chat. An empty Session starts a new
// conversation.
type ChatRequest struct {
	Session string `json:"session"`
	Message string `json:"message" binding:"required"`
}

// ChatResponse is one answered turn.
type ChatResponse struct {
	Session string        `json:"session"`
	Reply   chatbot.Reply `json:"reply"`
}

func (s *Server) chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		RespondWithError(c, http.StatusBadRequest, "bad_request", "message is required", nil)
		return
	}
	ctx := c.Request.Context()

	session := req.Session
	if session == "" {
		id, err := s.deps.History.Create(ctx)
		if err != nil {
			s.internalError(c, "failed to create session", err)
			return
		}
		session = id
	}

	prior, err := s.deps.History.Load(ctx, session)
	if errors.Is(err, chatbot.ErrSessionNotFound) {
		RespondWithError(c, http.StatusNotFound, "session_not_found", "Unknown chat session", gin.H{"session": session})
		return
	}
	if err != nil {
		s.internalError(c, "failed to load session", err)
		return
	}

	h := chatbot.NewHistory(prior...)
	reply := s.deps.Chatbot.Turn(ctx, h, req.Message)

	if err := s.deps.History.Append(ctx, session, h.Messages()[len(prior):]...); err != nil {
		s.internalError(c, "failed to save session", err)
		return
	}
	c.JSON(http.StatusOK, ChatResponse{Session: session, Reply: reply})
}

func (s *Server) chatHistory(c *gin.Context) {
	session := c.Param("session")
	msgs, err := s.deps.History.Load(c.Request.Context(), session)
	if errors.Is(err, chatbot.ErrSessionNotFound) {
		RespondWithError(c, http.StatusNotFound, "session_not_found", "Unknown chat session", gin.H{"session": session})
		return
	}
	if err != nil {
		s.internalError(c, "failed to load session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session, "messages": msgs})
}

// MinutesResponse carries the run and its markdown export.
type MinutesResponse struct {
	Result *minutes.Result `json:"result"`
	Export string          `json:"export,omitempty"`
}

func (s *Server) checkMinutes(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, "bad_request", "a minutes file is required in the \"file\" field", nil)
		return
	}
	f, err := header.Open()
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, "bad_request", "failed to open uploaded file", nil)
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondWithError(c, http.StatusRequestEntityTooLarge, "request_too_large", "Request body exceeds maximum size", nil)
			return
		}
		RespondWithError(c, http.StatusBadRequest, "bad_request", "failed to read uploaded file", nil)
		return
	}

	ex, err := s.deps.Extractors(extract.Credentials{
		Endpoint: c.PostForm("endpoint"),
		Key:      c.PostForm("key"),
	})
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, "extraction_unavailable", err.Error(), nil)
		return
	}

	file := extract.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	res, err := s.deps.Pipeline.Run(c.Request.Context(), ex, file)

	var verr *minutes.ValidationError
	switch {
	case errors.As(err, &verr):
		RespondWithError(c, http.StatusUnprocessableEntity, res.Status, verr.Error(), res)
	case err != nil:
		s.logger.Warn("minutes run failed", zap.String("request_id", GetRequestID(c)), zap.String("status", res.Status), zap.Error(err))
		RespondWithError(c, http.StatusBadGateway, res.Status, "An error occurred during minutes processing", res)
	default:
		c.JSON(http.StatusOK, MinutesResponse{Result: res, Export: res.Export(time.Now())})
	}
}

func (s *Server) internalError(c *gin.Context, message string, err error) {
	_ = c.Error(err)
	s.logger.Error(message, zap.String("request_id", GetRequestID(c)), zap.Error(err))
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, nil)
}
