// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage provides the embedded result cache backing the
// Analyzer Supervisor's CACHED fallback mode (spec.md §4.2's
// FallbackMode taxonomy). Concrete analyzer implementations are out of
// this repository's scope, but any analyzer that wants a CACHED
// fallback producer can build one on top of Cache.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
	"go.uber.org/zap"

	"github.com/Jinish2170/elliotAI-sub001/pkg/audit"
)

// Cache is an embedded, SQLite-backed result cache keyed by
// (analyzer, url). It holds the most recent successful Result per key
// so a later CACHED fallback has something to serve.
type Cache struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates (or attaches to) a SQLite database at path. An empty
// path opens an in-memory database, useful for tests and for audits
// that don't want cross-process persistence.
func Open(path string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: applying schema: %w", err)
	}

	return &Cache{db: db, logger: logger}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS analyzer_results (
	analyzer  TEXT NOT NULL,
	url       TEXT NOT NULL,
	payload   BLOB NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (analyzer, url)
);
`

// Put stores the most recent successful Result for (analyzer, url),
// overwriting any previous entry.
func (c *Cache) Put(ctx context.Context, analyzer audit.AnalyzerKind, url string, result *audit.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("storage: marshaling result: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO analyzer_results (analyzer, url, payload, stored_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(analyzer, url) DO UPDATE SET payload = excluded.payload, stored_at = excluded.stored_at`,
		string(analyzer), url, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storage: storing result: %w", err)
	}
	return nil
}

// Get retrieves the most recent cached Result for (analyzer, url), if
// any, along with its age.
func (c *Cache) Get(ctx context.Context, analyzer audit.AnalyzerKind, url string) (*audit.Result, time.Duration, bool, error) {
	var payload []byte
	var storedAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, stored_at FROM analyzer_results WHERE analyzer = ? AND url = ?`,
		string(analyzer), url).Scan(&payload, &storedAt)
	if err == sql.ErrNoRows {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("storage: querying result: %w", err)
	}

	var result audit.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, 0, false, fmt.Errorf("storage: unmarshaling cached result: %w", err)
	}
	age := time.Since(time.Unix(storedAt, 0))
	return &result, age, true, nil
}

// CachedFallback builds a CACHED DegradedResult from whatever is
// stored for (analyzer, url), or reports ok=false when nothing is
// cached — callers fall through to their own NONE/SIMPLIFIED producer
// in that case.
func (c *Cache) CachedFallback(ctx context.Context, analyzer audit.AnalyzerKind, url string) (*audit.DegradedResult, bool) {
	result, age, ok, err := c.Get(ctx, analyzer, url)
	if err != nil {
		c.logger.Warn("storage_cache_lookup_failed", zap.String("analyzer", string(analyzer)), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	data := map[string]any{"findings": result.Findings, "metrics": result.Metrics, "cache_age_seconds": age.Seconds()}
	return &audit.DegradedResult{
		ResultData:     data,
		FallbackMode:   audit.FallbackCached,
		MissingData:    []string{"freshness"},
		QualityPenalty: audit.QualityPenaltyFor(audit.FallbackCached, false),
	}, true
}

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.db.Close() }
