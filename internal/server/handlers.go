package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"lecture-rag/internal/chromemdb"
	"lecture-rag/internal/export"
	"lecture-rag/internal/parser"
	"lecture-rag/internal/quiz"
	"lecture-rag/internal/session"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"model_provider": s.cfg.LLM.Provider,
		"model":          s.cfg.LLM.Model,
		"embedder":       s.cfg.EmbedLLM.Type,
		"subjects":       len(s.manager.ListSubjects()),
	})
}

func (s *Server) subjectView(name string) SubjectView {
	return SubjectView{SubjectInfo: s.manager.SubjectInfo(name), Files: s.manager.UploadedFiles(name)}
}

func (s *Server) listSubjects(c *gin.Context) {
	names := s.manager.ListSubjects()
	views := make([]SubjectView, len(names))
	for i, n := range names {
		views[i] = s.subjectView(n)
	}
	c.JSON(http.StatusOK, gin.H{"subjects": views})
}

func (s *Server) getSubject(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.manager.Get(name); !ok {
		writeError(c, fmt.Errorf("%w: %q", chromemdb.ErrSubjectNotFound, name))
		return
	}
	c.JSON(http.StatusOK, s.subjectView(name))
}

func (s *Server) deleteSubject(c *gin.Context) {
	if err := s.manager.Delete(c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) uploadDocument(c *gin.Context) {
	subject := c.Param("name")
	if err := chromemdb.ValidateSubject(subject); err != nil {
		writeError(c, err)
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	if err := parser.ValidateUpload(file.Filename, file.Size, &s.cfg.RAG); err != nil {
		writeError(c, err)
		return
	}

	tmpDir, err := os.MkdirTemp("", "lecture-upload-")
	if err != nil {
		writeError(c, err)
		return
	}
	defer os.RemoveAll(tmpDir)

	fileName := filepath.Base(file.Filename)
	path := filepath.Join(tmpDir, fileName)
	if err := c.SaveUploadedFile(file, path); err != nil {
		log.Error().Err(err).Msg("Failed to save file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	chunks, err := parser.ParseFile(path, fileName, &s.cfg.RAG)
	if err != nil {
		writeError(c, err)
		return
	}
	already := s.manager.HasUploaded(subject, fileName)
	added, err := s.manager.CreateOrUpdate(c.Request.Context(), subject, chunks, fileName)
	if err != nil {
		writeError(c, err)
		return
	}
	log.Info().Str("subject", subject).Str("file", fileName).Int("chunks", added).Bool("already_uploaded", already).Msg("Uploaded document")

	c.JSON(http.StatusCreated, UploadView{
		Subject:         subject,
		File:            fileName,
		ChunksAdded:     added,
		AlreadyUploaded: already,
		Info:            s.subjectView(subject),
	})
}

func (s *Server) searchSubject(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.manager.Get(name); !ok {
		writeError(c, fmt.Errorf("%w: %q", chromemdb.ErrSubjectNotFound, name))
		return
	}
	k := s.cfg.RAG.TopK
	if raw := c.Query("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "k must be an integer"})
			return
		}
		k = n
	}
	results, err := s.manager.Search(c.Request.Context(), name, c.Query("q"), k)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject": name, "results": sourceViews(results)})
}

func (s *Server) createSession(c *gin.Context) {
	sess, err := s.sessions.Create()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": sess.ID})
}

// session loads the session named in the path or writes a 404.
func (s *Server) session(c *gin.Context) (*session.Session, bool) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) deleteSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.Reset(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	s.sessions.Delete(sess.ID)
	c.Status(http.StatusNoContent)
}

type selectSubjectRequest struct {
	Subject string `json:"subject" binding:"required"`
}

func (s *Server) selectSubject(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req selectSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if _, ok := s.manager.Get(req.Subject); !ok {
		writeError(c, fmt.Errorf("%w: %q", chromemdb.ErrSubjectNotFound, req.Subject))
		return
	}
	sess.SelectSubject(req.Subject)
	c.JSON(http.StatusOK, s.subjectView(req.Subject))
}

func (s *Server) chatHistory(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	subject := c.DefaultQuery("subject", sess.CurrentSubject())
	history := sess.History(subject)
	views := make([]ChatView, len(history))
	for i, ex := range history {
		views[i] = chatView(subject, ex)
	}
	c.JSON(http.StatusOK, gin.H{"subject": subject, "history": views})
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
	Subject  string `json:"subject"`
}

func (s *Server) ask(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	subject := req.Subject
	if subject == "" {
		subject = sess.CurrentSubject()
	}

	resp, err := s.chatbot.Ask(c.Request.Context(), subject, req.Question)
	if err != nil {
		writeError(c, err)
		return
	}
	ex := session.Exchange{Question: resp.Query, Answer: resp.Answer, Sources: resp.Sources, AskedAt: time.Now()}
	sess.AddExchange(subject, ex)
	c.JSON(http.StatusOK, chatView(subject, ex))
}

type generateRequest struct {
	quiz.Request
	URL string `json:"url"`
}

func (s *Server) generateQuiz(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	var (
		res quiz.Result
		err error
	)
	subject := req.Subject
	if req.URL != "" {
		res, err = s.generator.FromLink(c.Request.Context(), req.URL, req.Request)
		if subject == "" {
			subject = req.URL
		}
	} else {
		if subject == "" {
			subject = sess.CurrentSubject()
			req.Subject = subject
		}
		res, err = s.generator.FromSubject(c.Request.Context(), req.Request)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	sess.StartQuiz(subject, res.Quizzes)
	st, _ := sess.QuizState()
	c.JSON(http.StatusCreated, GenerateView{
		Subject:  subject,
		Count:    len(res.Quizzes),
		Dropped:  res.Dropped,
		Strategy: res.Strategy,
		State:    quizStateView(st),
	})
}

func (s *Server) currentQuestion(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	st, err := sess.QuizState()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quizStateView(st))
}

func (s *Server) submitAnswer(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var answer quiz.Answer
	if err := c.ShouldBindJSON(&answer); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	sub, err := sess.SubmitAnswer(c.Request.Context(), answer)
	if err != nil {
		writeError(c, err)
		return
	}
	st, _ := sess.QuizState()
	c.JSON(http.StatusOK, SubmitView{
		Correct:       sub.Correct,
		CorrectAnswer: sub.Quiz.CorrectAnswerText(),
		Explanation:   sub.Quiz.Explanation,
		State:         quizStateView(st),
	})
}

func (s *Server) previousQuestion(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	st, err := sess.PreviousQuestion()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quizStateView(st))
}

func (s *Server) restartQuiz(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	st, err := sess.RestartQuiz()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quizStateView(st))
}

func (s *Server) quizResult(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	res, err := sess.QuizResult()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) listWrongAnswers(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	recs, err := sess.WrongAnswers(c.Request.Context(), c.Query("subject"))
	if err != nil {
		writeError(c, err)
		return
	}
	subjects, err := sess.WrongAnswerSubjects(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if recs == nil {
		recs = []quiz.WrongAnswer{}
	}
	if subjects == nil {
		subjects = []string{}
	}
	c.JSON(http.StatusOK, WrongAnswersView{Count: len(recs), Subjects: subjects, Items: recs})
}

func (s *Server) clearWrongAnswers(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.ClearWrongAnswers(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) exportWrongAnswers(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	subject := c.Query("subject")
	recs, err := sess.WrongAnswers(c.Request.Context(), subject)
	if err != nil {
		writeError(c, err)
		return
	}
	data, err := export.WrongAnswersXLSX(recs)
	if err != nil {
		writeError(c, err)
		return
	}
	name := "wrong-answers"
	if subject != "" {
		name += "-" + strings.Map(safeFileRune, subject)
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, name))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func safeFileRune(r rune) rune {
	switch {
	case r == '"' || r == '/' || r == '\\' || r < 0x20:
		return '_'
	}
	return r
}
