// Package server exposes the chatbot and the minutes pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/chatbot"
	"github.com/Yates-Labs/auditor/internal/extract"
	"github.com/Yates-Labs/auditor/internal/minutes"
	"github.com/Yates-Labs/auditor/internal/telemetry"
)

// ExtractorFactory builds the extractor for one upload.
type ExtractorFactory func(creds extract.Credentials) (extract.Extractor, error)

// Deps are the components the server routes to.
type Deps struct {
	Chatbot    *chatbot.Chatbot
	Pipeline   *minutes.Pipeline
	History    chatbot.HistoryStore
	Extractors ExtractorFactory
	Metrics    *telemetry.Metrics
	Logger     *zap.Logger
	// MaxUploadBytes caps a minutes upload. Zero disables the cap.
	MaxUploadBytes int64
}

// Server is the gin HTTP surface.
type Server struct {
	deps   Deps
	engine *gin.Engine
	logger *zap.Logger
}

// New builds the router. Chatbot, Pipeline, History and Extractors are required.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Chatbot == nil:
		return nil, errors.New("server: chatbot is required")
	case deps.Pipeline == nil:
		return nil, errors.New("server: minutes pipeline is required")
	case deps.History == nil:
		return nil, errors.New("server: history store is required")
	case deps.Extractors == nil:
		return nil, errors.New("server: extractor factory is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{deps: deps, engine: gin.New(), logger: logger}
	s.engine.Use(RequestID(), RequestLogger(logger), gin.Recovery())
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)
	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := s.engine.Group("/api")
	api.POST("/chat", s.chat)
	api.GET("/chat/:session", s.chatHistory)
	api.POST("/minutes", RequestSizeLimit(s.deps.MaxUploadBytes), s.checkMinutes)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
