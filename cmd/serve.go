package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/chatbot"
	"github.com/Yates-Labs/auditor/internal/orchestrator"
	"github.com/Yates-Labs/auditor/internal/server"
)

var (
	serveAddr       string
	serveRedisURL   string
	serveSessionTTL time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat and minutes APIs over HTTP",
	Long: `Serve the assistant over HTTP.

Routes:
  GET  /health               liveness
  GET  /metrics              Prometheus metrics
  POST /api/chat             {"session": "...", "message": "..."}
  GET  /api/chat/:session    conversation history
  POST /api/minutes          multipart: file, optional endpoint and key

Chat sessions are kept in Redis when --redis (or server.redis_url) is set,
otherwise in memory.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveRedisURL, "redis", "", "Redis URL for chat sessions (overrides server.redis_url)")
	serveCmd.Flags().DurationVar(&serveSessionTTL, "session-ttl", 24*time.Hour, "Expiry of Redis chat sessions (0 keeps them)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	redisURL := cfg.Server.RedisURL
	if serveRedisURL != "" {
		redisURL = serveRedisURL
	}

	return orchestrator.WithApp(ctx, cfg, logger, func(app *orchestrator.App) error {
		var history chatbot.HistoryStore = chatbot.NewMemoryHistoryStore()
		if redisURL != "" {
			rdb, err := chatbot.NewRedisClient(ctx, redisURL)
			if err != nil {
				return err
			}
			defer rdb.Close()
			history = chatbot.NewRedisHistoryStore(rdb, serveSessionTTL)
			logger.Info("chat sessions stored in redis")
		}

		srv, err := server.New(server.Deps{
			Chatbot:        app.Chatbot,
			Pipeline:       app.Pipeline,
			History:        history,
			Extractors:     app.Extractor,
			Metrics:        app.Metrics,
			Logger:         logger.Named("http"),
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
		})
		if err != nil {
			return err
		}
		logger.Info("serving", zap.String("addr", addr))
		return srv.ListenAndServe(ctx, addr)
	})
}
