package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"lecture-rag/internal/chromemdb"
	"lecture-rag/internal/llmservice"
	"lecture-rag/internal/parser"
	"lecture-rag/internal/quiz"
	"lecture-rag/internal/rag"
	"lecture-rag/internal/session"
)

// writeError maps an operation failure to a status code and a JSON error body.
func writeError(c *gin.Context, err error) {
	var (
		parseErr *quiz.ParseError
		callErr  *llmservice.CallError
		loadErr  *chromemdb.LoadError
	)
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	switch {
	case errors.Is(err, chromemdb.ErrInvalidSubject), errors.Is(err, chromemdb.ErrInvalidK),
		errors.Is(err, parser.ErrUnsupportedFormat):
		status = http.StatusBadRequest
	case errors.Is(err, parser.ErrFileTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrSessionNotFound), chromemdb.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, rag.ErrNoMaterial), errors.Is(err, quiz.ErrNoMaterial),
		errors.Is(err, parser.ErrNoText), errors.Is(err, chromemdb.ErrNoChunks):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNoQuiz), errors.Is(err, session.ErrQuizCompleted),
		errors.As(err, &loadErr):
		status = http.StatusConflict
	case errors.As(err, &parseErr):
		status = http.StatusBadGateway
		body["raw"] = parseErr.Raw
	case errors.Is(err, quiz.ErrNoValidItems), errors.As(err, &callErr):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, body)
}
