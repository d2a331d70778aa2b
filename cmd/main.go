package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lecture-rag/internal/chromemdb"
	"lecture-rag/internal/config"
	"lecture-rag/internal/db"
	"lecture-rag/internal/embedding"
	"lecture-rag/internal/helper"
	"lecture-rag/internal/llmservice"
	"lecture-rag/internal/models"
	"lecture-rag/internal/parser"
	"lecture-rag/internal/quiz"
	"lecture-rag/internal/rag"
	"lecture-rag/internal/server"
	"lecture-rag/internal/session"
	"lecture-rag/internal/tui"
	"lecture-rag/internal/webtools"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	serve := flag.Bool("serve", false, "Run the HTTP server")
	filePath := flag.String("file", "", "Path to a lecture file to add to -subject")
	subject := flag.String("subject", "", "Subject name")
	query := flag.String("query", "", "Question to ask about -subject")
	quizCount := flag.Int("quiz", 0, "Generate N quiz questions from -subject or -link")
	topic := flag.String("topic", "", "Focus topic for -quiz")
	difficulty := flag.String("difficulty", quiz.DifficultyNormal, "Quiz difficulty: easy, normal or hard")
	kinds := flag.String("kinds", string(quiz.KindMultiple), "Comma separated quiz types: multiple, short, ox")
	link := flag.String("link", "", "Web page to build a quiz from")
	chat := flag.Bool("chat", false, "Open the terminal chat for -subject")
	list := flag.Bool("list", false, "List subjects")
	deleteName := flag.String("delete", "", "Delete a subject")
	dryRun := flag.Bool("dry-run", false, "Parse or retrieve only, without indexing or calling the model")
	resetDB := flag.Bool("reset-wrong-answers", false, "Drop and recreate the wrong-answer table")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Error loading .env")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setLogLevel(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			log.Fatal().Str("field", verr.Field).Msg(verr.Reason)
		}
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *filePath != "" && *dryRun:
		parseOnly(cfg, *filePath)
		return
	case *resetDB:
		resetWrongAnswers(ctx, cfg)
		return
	}

	manager := newManager(cfg)

	switch {
	case *serve:
		runServer(ctx, cfg, manager)
	case *list:
		listSubjects(manager)
	case *deleteName != "":
		if err := manager.Delete(*deleteName); err != nil {
			log.Fatal().Err(err).Msg("Error deleting subject")
		}
		log.Info().Str("subject", *deleteName).Msg("Deleted subject")
	case *filePath != "":
		requireSubject(*subject)
		addFile(ctx, cfg, manager, *subject, *filePath)
	case *query != "" && *dryRun:
		requireSubject(*subject)
		retrieveOnly(ctx, cfg, manager, *subject, *query)
	case *query != "":
		requireSubject(*subject)
		askQuestion(ctx, cfg, manager, *subject, *query)
	case *quizCount > 0 || *link != "":
		req := quiz.Request{
			Subject:    *subject,
			Count:      *quizCount,
			Difficulty: *difficulty,
			Topic:      *topic,
			Kinds:      parseKinds(*kinds),
		}
		makeQuiz(ctx, cfg, manager, req, *link)
	case *chat:
		requireSubject(*subject)
		runChat(ctx, cfg, manager, *subject)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, using debug")
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func requireSubject(subject string) {
	if strings.TrimSpace(subject) == "" {
		log.Fatal().Msg("Please provide a subject using the -subject flag")
	}
}

func parseKinds(s string) []quiz.Kind {
	var kinds []quiz.Kind
	for _, part := range strings.Split(s, ",") {
		if k, ok := quiz.ParseKind(part); ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func newManager(cfg *config.Config) *chromemdb.Manager {
	embedder, err := embedding.New(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	var checksumKey []byte
	if cfg.Store.ChecksumKey != "" {
		checksumKey, err = hex.DecodeString(cfg.Store.ChecksumKey)
		if err != nil {
			log.Fatal().Err(err).Msg("store.checksum_key must be hex encoded")
		}
	}
	manager, err := chromemdb.NewManager(cfg.Store.BasePath, chromemdb.Options{
		Embedder:       embedder,
		EmbeddingModel: embedding.ModelName(&cfg.EmbedLLM),
		Compress:       cfg.Store.Compress,
		EncryptionKey:  cfg.RAG.EncryptionKey,
		ChecksumKey:    checksumKey,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating subject store manager")
	}
	for _, err := range manager.LoadErrors() {
		log.Warn().Err(err).Msg("Subject skipped")
	}
	return manager
}

func newLLM(cfg *config.Config, temperature float64) *llmservice.Client {
	llm, err := llmservice.New(&cfg.LLM, temperature)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing LLM")
	}
	return llm
}

func newChatbot(cfg *config.Config, manager *chromemdb.Manager) *rag.Chatbot {
	return rag.NewChatbot(newLLM(cfg, cfg.LLM.ChatTemperature), manager, cfg.RAG.TopK)
}

func newGenerator(cfg *config.Config, manager *chromemdb.Manager) *quiz.Generator {
	fetcher := webtools.NewFetcher(time.Duration(cfg.Web.TimeoutSecs) * time.Second)
	return quiz.NewGenerator(newLLM(cfg, cfg.LLM.Temperature), manager, fetcher, cfg.RAG.QuizContextK)
}

func runServer(ctx context.Context, cfg *config.Config, manager *chromemdb.Manager) {
	var wrong session.WrongAnswerLog
	if cfg.Database.Driver != "" {
		database, err := db.Open(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Error connecting to database")
		}
		defer database.Close()
		wrong = db.NewWrongAnswerRepo(database)
	}

	srv := server.New(cfg, manager, newChatbot(cfg, manager), newGenerator(cfg, manager), session.NewRegistry(wrong))
	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func resetWrongAnswers(ctx context.Context, cfg *config.Config) {
	if cfg.Database.Driver == "" {
		log.Fatal().Msg("No database configured")
	}
	database, err := db.Open(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	defer database.Close()

	if err := db.DropWrongAnswers(ctx, database); err != nil {
		log.Fatal().Err(err).Msg("Error clearing wrong answers")
	}
	if err := db.InitDB(ctx, database); err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
	}
	log.Info().Msg("Wrong-answer table recreated")
}

func listSubjects(manager *chromemdb.Manager) {
	var infos []any
	for _, name := range manager.ListSubjects() {
		infos = append(infos, map[string]any{
			"info":  manager.SubjectInfo(name),
			"files": manager.UploadedFiles(name),
		})
	}
	helper.PrettyPrint(infos)
}

func parseOnly(cfg *config.Config, filePath string) {
	chunks, err := parser.ParseFile(filePath, filepath.Base(filePath), &cfg.RAG)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	log.Info().Int("chunks", len(chunks)).Msg("Parsed content")
	helper.PrettyPrint(chunks)
}

func addFile(ctx context.Context, cfg *config.Config, manager *chromemdb.Manager, subject, filePath string) {
	fi, err := os.Stat(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading file")
	}
	name := filepath.Base(filePath)
	if err := parser.ValidateUpload(name, fi.Size(), &cfg.RAG); err != nil {
		log.Fatal().Err(err).Msg("File rejected")
	}
	chunks, err := parser.ParseFile(filePath, name, &cfg.RAG)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	if manager.HasUploaded(subject, name) {
		log.Warn().Str("subject", subject).Str("file", name).Msg("File was uploaded before, its chunks are added again")
	}
	added, err := manager.CreateOrUpdate(ctx, subject, chunks, name)
	if err != nil {
		log.Fatal().Err(err).Msg("Error indexing document")
	}
	log.Info().Str("subject", subject).Int("added", added).Msg("Indexed document")
	helper.PrettyPrint(manager.SubjectInfo(subject))
}

func retrieveOnly(ctx context.Context, cfg *config.Config, manager *chromemdb.Manager, subject, query string) {
	store, ok := manager.Get(subject)
	if !ok {
		log.Fatal().Str("subject", subject).Msg("Subject not found")
	}
	results, err := store.Retriever(cfg.RAG.TopK)(ctx, query)
	if err != nil {
		log.Fatal().Err(err).Msg("Error searching")
	}
	helper.PrettyPrint(results)
}

func askQuestion(ctx context.Context, cfg *config.Config, manager *chromemdb.Manager, subject, query string) {
	response, err := newChatbot(cfg, manager).Ask(ctx, subject, query)
	if err != nil {
		log.Fatal().Err(err).Msg("Error querying")
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, s := range response.Sources {
		fmt.Printf("%s (page %s)\n", s.Source(), s.Metadata[models.MetaPage])
	}
	fmt.Println()

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Answer)
}

func makeQuiz(ctx context.Context, cfg *config.Config, manager *chromemdb.Manager, req quiz.Request, link string) {
	gen := newGenerator(cfg, manager)
	var (
		res quiz.Result
		err error
	)
	if link != "" {
		res, err = gen.FromLink(ctx, link, req)
	} else {
		requireSubject(req.Subject)
		res, err = gen.FromSubject(ctx, req)
	}
	if err != nil {
		var parseErr *quiz.ParseError
		if errors.As(err, &parseErr) {
			log.Error().Str("raw", parseErr.Raw).Msg("Model output")
		}
		log.Fatal().Err(err).Msg("Error generating quiz")
	}
	log.Info().Int("quizzes", len(res.Quizzes)).Int("dropped", res.Dropped).Str("strategy", string(res.Strategy)).Msg("Generated quiz")
	helper.PrettyPrint(res.Quizzes)
}

func runChat(ctx context.Context, cfg *config.Config, manager *chromemdb.Manager, subject string) {
	info := manager.SubjectInfo(subject)
	summary := fmt.Sprintf("%s: %s, %d chunks from %d files", info.Name, info.Status, info.DocumentCount, info.UploadedFileCount)

	// keep log lines from drawing over the terminal UI
	zerolog.SetGlobalLevel(zerolog.Disabled)
	p := tea.NewProgram(tui.New(ctx, newChatbot(cfg, manager), subject, summary), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintln(os.Stderr, "chat:", err)
		os.Exit(1)
	}
}
