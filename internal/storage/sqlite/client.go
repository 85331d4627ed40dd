package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/storage/models"
	"github.com/adstrategy/backend/pkg/logger"
)

var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer avoids SQLITE_BUSY under concurrent strategy runs.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS strategy_reports (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_created ON strategy_reports(created_at);
	CREATE INDEX IF NOT EXISTS idx_reports_domain ON strategy_reports(domain);

	CREATE TABLE IF NOT EXISTS ad_copies (
		id TEXT PRIMARY KEY,
		product TEXT NOT NULL,
		company TEXT NOT NULL,
		topic TEXT,
		raw_text TEXT NOT NULL,
		caption TEXT,
		hashtags TEXT,
		text_on_image TEXT,
		description_of_image TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ad_copies_created ON ad_copies(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertReport(ctx context.Context, r *models.ReportRecord) error {
	query := `
		INSERT INTO strategy_reports (id, domain, status, error_message, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		r.ID,
		r.Domain,
		r.Status,
		r.ErrorMessage,
		string(r.Payload),
		r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	logger.Debug("Report stored", zap.String("report_id", r.ID), zap.String("status", r.Status))
	return nil
}

// ListReports returns the most recent reports first.
func (c *Client) ListReports(ctx context.Context, limit int) ([]models.ReportRecord, error) {
	query := `
		SELECT id, domain, status, error_message, payload, created_at
		FROM strategy_reports
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	records := make([]models.ReportRecord, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}

	return records, nil
}

func (c *Client) GetReport(ctx context.Context, id string) (*models.ReportRecord, error) {
	query := `
		SELECT id, domain, status, error_message, payload, created_at
		FROM strategy_reports WHERE id = ?
	`

	r, err := scanReport(c.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(s scanner) (*models.ReportRecord, error) {
	var r models.ReportRecord
	var errMsg sql.NullString
	var payload string
	var createdAt int64

	if err := s.Scan(&r.ID, &r.Domain, &r.Status, &errMsg, &payload, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan report: %w", err)
	}

	r.ErrorMessage = errMsg.String
	r.Payload = []byte(payload)
	r.CreatedAt = time.Unix(0, createdAt).UTC()

	return &r, nil
}

func (c *Client) InsertAdCopy(ctx context.Context, a *models.AdCopyRecord) error {
	query := `
		INSERT INTO ad_copies (id, product, company, topic, raw_text, caption, hashtags,
			text_on_image, description_of_image, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		a.ID,
		a.Product,
		a.Company,
		a.Topic,
		a.RawText,
		a.Caption,
		a.Hashtags,
		a.TextOnImage,
		a.DescriptionOfImage,
		a.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ad copy: %w", err)
	}

	logger.Info("Ad copy stored",
		zap.String("ad_copy_id", a.ID),
		zap.String("company", a.Company),
		zap.String("topic", a.Topic),
	)

	return nil
}

func (c *Client) ListAdCopies(ctx context.Context, limit int) ([]models.AdCopyRecord, error) {
	query := `
		SELECT id, product, company, topic, raw_text, caption, hashtags,
			text_on_image, description_of_image, created_at
		FROM ad_copies
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ad copies: %w", err)
	}
	defer rows.Close()

	records := make([]models.AdCopyRecord, 0)
	for rows.Next() {
		var a models.AdCopyRecord
		var topic, caption, hashtags, textOnImage, description sql.NullString
		var createdAt int64

		err := rows.Scan(&a.ID, &a.Product, &a.Company, &topic, &a.RawText,
			&caption, &hashtags, &textOnImage, &description, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		a.Topic = topic.String
		a.Caption = caption.String
		a.Hashtags = hashtags.String
		a.TextOnImage = textOnImage.String
		a.DescriptionOfImage = description.String
		a.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ad copies: %w", err)
	}

	return records, nil
}
