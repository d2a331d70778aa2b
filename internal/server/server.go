package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"lecture-rag/internal/chromemdb"
	"lecture-rag/internal/config"
	"lecture-rag/internal/quiz"
	"lecture-rag/internal/rag"
	"lecture-rag/internal/session"
)

// Server exposes subjects, chat, quizzes and wrong-answer notes over HTTP.
// Every handler works on an explicit session and answers with a view-model.
type Server struct {
	cfg       *config.Config
	manager   *chromemdb.Manager
	chatbot   *rag.Chatbot
	generator *quiz.Generator
	sessions  *session.Registry
	engine    *gin.Engine
}

func New(cfg *config.Config, manager *chromemdb.Manager, chatbot *rag.Chatbot, generator *quiz.Generator, sessions *session.Registry) *Server {
	s := &Server{
		cfg:       cfg,
		manager:   manager,
		chatbot:   chatbot,
		generator: generator,
		sessions:  sessions,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = int64(s.cfg.RAG.MaxFileSizeMB) << 20

	r.GET("/health", s.health)

	subjects := r.Group("/subjects")
	subjects.GET("", s.listSubjects)
	subjects.GET("/:name", s.getSubject)
	subjects.DELETE("/:name", s.deleteSubject)
	subjects.POST("/:name/documents", s.uploadDocument)
	subjects.GET("/:name/search", s.searchSubject)

	r.POST("/sessions", s.createSession)
	sessions := r.Group("/sessions/:id")
	sessions.DELETE("", s.deleteSession)
	sessions.PUT("/subject", s.selectSubject)
	sessions.GET("/chat", s.chatHistory)
	sessions.POST("/chat", s.ask)
	sessions.POST("/quiz", s.generateQuiz)
	sessions.GET("/quiz/current", s.currentQuestion)
	sessions.POST("/quiz/answer", s.submitAnswer)
	sessions.POST("/quiz/previous", s.previousQuestion)
	sessions.POST("/quiz/restart", s.restartQuiz)
	sessions.GET("/quiz/result", s.quizResult)
	sessions.GET("/wrong-answers", s.listWrongAnswers)
	sessions.DELETE("/wrong-answers", s.clearWrongAnswers)
	sessions.GET("/wrong-answers/export", s.exportWrongAnswers)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request")
	}
}
