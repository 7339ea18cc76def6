// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL 驱动

	"github.com/wfunc/quizarena/models"
)

// PostgreSQL is the raw-SQL question source. Sampling with ORDER BY random()
// stays in one statement instead of going through the ORM.
type PostgreSQL struct {
	db *sql.DB
}

func NewPostgreSQL(dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables creates the question table; the ORM never touches it.
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS questions (
            id VARCHAR(64) PRIMARY KEY,
            category VARCHAR(100) NOT NULL,
            text TEXT NOT NULL,
            options JSONB NOT NULL,
            correct_index BIGINT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_questions_category ON questions(category)`)
	return err
}

func (p *PostgreSQL) FetchRandomQuestions(ctx context.Context, count int, category string) ([]models.Question, error) {
	rows, err := p.db.QueryContext(ctx, `
        SELECT id, category, text, options, correct_index
        FROM questions
        WHERE category = $1
        ORDER BY random()
        LIMIT $2`, category, count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Question, 0, count)
	for rows.Next() {
		var (
			q       models.Question
			options []byte
		)
		if err := rows.Scan(&q.ID, &q.Category, &q.Text, &options, &q.CorrectIndex); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("question %s options: %w", q.ID, err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) < count {
		return nil, ErrNotEnoughQuestions
	}
	return out, nil
}

// SeedQuestions upserts the bank in one transaction and returns the row count.
func (p *PostgreSQL) SeedQuestions(ctx context.Context, qs []models.Question) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO questions (id, category, text, options, correct_index)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id)
        DO UPDATE SET category = $2, text = $3, options = $4, correct_index = $5`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, q := range qs {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, q.ID, q.Category, q.Text, options, q.CorrectIndex); err != nil {
			return 0, fmt.Errorf("seed %s: %w", q.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(qs), nil
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
