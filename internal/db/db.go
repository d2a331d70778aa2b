package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"

	"lecture-rag/internal/config"
	"lecture-rag/internal/quiz"
	"lecture-rag/internal/session"
)

var _ session.WrongAnswerLog = (*WrongAnswerRepo)(nil)

// WrongAnswer is one missed question as stored in the wrong_answers table.
type WrongAnswer struct {
	bun.BaseModel  `bun:"table:wrong_answers,alias:wa"`
	ID             int64     `bun:"id,pk,autoincrement"`
	SessionID      string    `bun:"session_id,notnull"`
	Subject        string    `bun:"subject,notnull"`
	Kind           string    `bun:"kind,notnull"`
	Question       string    `bun:"question,notnull"`
	QuizJSON       string    `bun:"quiz_json,notnull"`
	SubmittedIndex int       `bun:"submitted_index,notnull"`
	SubmittedText  string    `bun:"submitted_text,notnull"`
	RecordedAt     time.Time `bun:"recorded_at,notnull"`
}

// NewDB wraps sqldb with the dialect for driver.
func NewDB(sqldb *sql.DB, driver string, debug bool) *bun.DB {
	var db *bun.DB
	if driver == config.DriverSQLite {
		db = bun.NewDB(sqldb, sqlitedialect.New())
	} else {
		db = bun.NewDB(sqldb, pgdialect.New())
	}
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database named by cfg: postgres through pgdriver, pq through lib/pq, sqlite through modernc.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	case config.DriverPQ:
		return sql.Open("postgres", cfg.DSN)
	case config.DriverSQLite:
		sqldb, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, err
		}
		// a single writer avoids SQLITE_BUSY
		sqldb.SetMaxOpenConns(1)
		return sqldb, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// Open connects, pings and creates the schema.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*bun.DB, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Driver, cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Info().Str("driver", cfg.Driver).Msg("Connected wrong-answer database")
	return db, nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*WrongAnswer)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewCreateIndex().Model((*WrongAnswer)(nil)).Index("wrong_answers_session_idx").
		Column("session_id", "subject").IfNotExists().Exec(ctx)
	return err
}

// drop table wrong_answers

func DropWrongAnswers(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*WrongAnswer)(nil)).IfExists().Exec(ctx)
	return err
}

// WrongAnswerRepo persists the wrong-answer log of every session.
type WrongAnswerRepo struct {
	db *bun.DB
}

func NewWrongAnswerRepo(db *bun.DB) *WrongAnswerRepo {
	return &WrongAnswerRepo{db: db}
}

func (r *WrongAnswerRepo) Append(ctx context.Context, sessionID string, rec quiz.WrongAnswer) error {
	data, err := json.Marshal(rec.Quiz)
	if err != nil {
		return fmt.Errorf("failed to encode quiz: %w", err)
	}
	row := &WrongAnswer{
		SessionID:      sessionID,
		Subject:        rec.Quiz.Subject,
		Kind:           string(rec.Quiz.Kind),
		Question:       rec.Quiz.Question,
		QuizJSON:       string(data),
		SubmittedIndex: rec.Submitted.Index,
		SubmittedText:  rec.Submitted.Text,
		RecordedAt:     rec.RecordedAt.UTC(),
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store wrong answer: %w", err)
	}
	return nil
}

func (r *WrongAnswerRepo) List(ctx context.Context, sessionID, subject string) ([]quiz.WrongAnswer, error) {
	var rows []WrongAnswer
	q := r.db.NewSelect().Model(&rows).Where("session_id = ?", sessionID).Order("id ASC")
	if subject != "" {
		q = q.Where("subject = ?", subject)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list wrong answers: %w", err)
	}

	out := make([]quiz.WrongAnswer, 0, len(rows))
	for _, row := range rows {
		var q quiz.Quiz
		if err := json.Unmarshal([]byte(row.QuizJSON), &q); err != nil {
			log.Warn().Err(err).Int64("id", row.ID).Msg("Skipping unreadable wrong answer")
			continue
		}
		out = append(out, quiz.WrongAnswer{
			Quiz:       q,
			Submitted:  quiz.Answer{Index: row.SubmittedIndex, Text: row.SubmittedText},
			RecordedAt: row.RecordedAt,
		})
	}
	return out, nil
}

func (r *WrongAnswerRepo) Clear(ctx context.Context, sessionID string) error {
	_, err := r.db.NewDelete().Model((*WrongAnswer)(nil)).Where("session_id = ?", sessionID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear wrong answers: %w", err)
	}
	return nil
}

// Subjects returns the distinct subjects in a session's log.
func (r *WrongAnswerRepo) Subjects(ctx context.Context, sessionID string) ([]string, error) {
	var subjects []string
	err := r.db.NewSelect().Model((*WrongAnswer)(nil)).
		ColumnExpr("DISTINCT subject").
		Where("session_id = ?", sessionID).
		OrderExpr("subject ASC").
		Scan(ctx, &subjects)
	return subjects, err
}
