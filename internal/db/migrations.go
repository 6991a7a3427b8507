package db

import (
	"database/sql"
	"fmt"
)

// All timestamps are seconds-since-epoch integers. Parent/child relations
// are by ID only; cascade deletes are performed by the repositories.
const baseSchema = `
CREATE TABLE IF NOT EXISTS items (
  item_id INTEGER PRIMARY KEY,
  title_en TEXT NOT NULL,
  by TEXT NOT NULL DEFAULT '',
  score INTEGER NOT NULL DEFAULT 0,
  time INTEGER NOT NULL DEFAULT 0,
  url TEXT,
  descendants INTEGER NOT NULL DEFAULT 0,
  fetched_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_fetched_at ON items(fetched_at);
CREATE INDEX IF NOT EXISTS idx_items_time ON items(time);

CREATE TABLE IF NOT EXISTS title_translations (
  item_id INTEGER PRIMARY KEY,
  title_en TEXT NOT NULL,
  title_zh TEXT NOT NULL,
  prompt_hash TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS article_translations (
  item_id INTEGER PRIMARY KEY,
  title_snapshot TEXT NOT NULL DEFAULT '',
  content_markdown TEXT NOT NULL DEFAULT '',
  original_url TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  error_message TEXT,
  tldr TEXT,
  updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_article_translations_status ON article_translations(status);

CREATE TABLE IF NOT EXISTS comments (
  comment_id INTEGER PRIMARY KEY,
  item_id INTEGER NOT NULL,
  parent_id INTEGER NOT NULL,
  author TEXT,
  text TEXT,
  time INTEGER NOT NULL DEFAULT 0,
  kids TEXT NOT NULL DEFAULT '[]',
  deleted INTEGER NOT NULL DEFAULT 0,
  dead INTEGER NOT NULL DEFAULT 0,
  fetched_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_comments_item_id ON comments(item_id);
CREATE INDEX IF NOT EXISTS idx_comments_fetched_at ON comments(fetched_at);

CREATE TABLE IF NOT EXISTS comment_translations (
  comment_id INTEGER PRIMARY KEY,
  text_en TEXT NOT NULL,
  text_zh TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS translation_jobs (
  job_id TEXT PRIMARY KEY,
  item_id INTEGER NOT NULL,
  kind TEXT NOT NULL,
  status TEXT NOT NULL,
  progress INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_translation_jobs_item_kind ON translation_jobs(item_id, kind);
CREATE INDEX IF NOT EXISTS idx_translation_jobs_status ON translation_jobs(status);

CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scheduler_status (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  last_run_at INTEGER,
  stories_fetched INTEGER NOT NULL DEFAULT 0,
  titles_translated INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL
);
`

func Migrate(db *sql.DB) error {
	if _, err := db.Exec(baseSchema); err != nil {
		return fmt.Errorf("migrate base schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrations(db *sql.DB) error {
	// Migration 1: seed the scheduler status singleton so updates can be
	// plain UPDATEs.
	if _, err := db.Exec(`
		INSERT INTO scheduler_status (id, last_run_at, stories_fetched, titles_translated, updated_at)
		VALUES (1, NULL, 0, 0, 0)
		ON CONFLICT(id) DO NOTHING
	`); err != nil {
		return fmt.Errorf("seed scheduler status: %w", err)
	}
	return nil
}
