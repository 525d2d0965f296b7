package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/iWorld-y/gnc_reports/internal/config"
	"github.com/iWorld-y/gnc_reports/internal/model"
)

// Storage 把每次批量运行的结果写入 PostgreSQL
type Storage struct {
	db *sql.DB
}

func NewStorage(cfg config.DBConfig) (*Storage, error) {
	db, err := sql.Open("postgres", connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// connString 构造 lib/pq 的 key=value 连接串，值中的空格和引号需要转义
func connString(cfg config.DBConfig) string {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quote(cfg.Host), cfg.Port, quote(cfg.User), quote(cfg.Password), quote(cfg.Name), sslmode)
}

func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS batch_runs (
			id SERIAL PRIMARY KEY,
			run_id TEXT NOT NULL UNIQUE,
			download_dir TEXT,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			succeeded INTEGER,
			failed INTEGER,
			recoveries INTEGER,
			artifacts TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS batch_items (
			id SERIAL PRIMARY KEY,
			batch_run_id INTEGER REFERENCES batch_runs(id),
			item_id TEXT NOT NULL,
			item_name TEXT,
			status TEXT NOT NULL,
			stage TEXT,
			error TEXT,
			duration_ms BIGINT,
			recovered BOOLEAN
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun 在一个事务中写入运行记录和每个报表的结果
func (s *Storage) SaveRun(ctx context.Context, report *model.BatchReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	var runID int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO batch_runs (run_id, download_dir, started_at, finished_at, succeeded, failed, recoveries, artifacts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		report.RunID, report.Dir, report.StartedAt, report.FinishedAt,
		report.Succeeded(), len(report.Failed()), report.Recoveries,
		removeNullBytes(strings.Join(report.Artifacts, "\n")),
	).Scan(&runID)
	if err != nil {
		return rollback(tx, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO batch_items (batch_run_id, item_id, item_name, status, stage, error, duration_ms, recovered)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return rollback(tx, err)
	}
	defer stmt.Close()

	for _, res := range report.Results {
		var errText sql.NullString
		if res.Err != nil {
			errText = sql.NullString{String: removeNullBytes(res.Err.Error()), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			runID, res.Item.ID, res.Item.Name, string(res.Status), string(res.Stage),
			errText, res.Duration.Milliseconds(), res.Recovered,
		); err != nil {
			return rollback(tx, err)
		}
	}

	return tx.Commit()
}

func rollback(tx *sql.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: %v", err, rerr)
	}
	return err
}

// PostgreSQL 文本字段不支持 NULL 字节
func removeNullBytes(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
