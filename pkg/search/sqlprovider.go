// Copyright 2026 The Telefind Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package search

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"
)

// SQLProvider searches a media index table populated by an external
// indexer. Rows stream lazily so Collect can stop at its cap without
// draining the result set.
type SQLProvider struct {
	db      *sql.DB
	dialect string
}

// NewSQLProvider validates the dialect and ensures the index table
// exists.
func NewSQLProvider(db *sql.DB, dialect string) (*SQLProvider, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	p := &SQLProvider{db: db, dialect: dialect}
	if err := p.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return p, nil
}

func (p *SQLProvider) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS media_items (
    item_id VARCHAR(255) PRIMARY KEY,
    name VARCHAR(1024) NOT NULL,
    size_bytes BIGINT NOT NULL,
    source_ref VARCHAR(1024) NOT NULL DEFAULT ''
)`,
		`CREATE INDEX IF NOT EXISTS idx_media_items_name ON media_items(name)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Search streams items whose names match every word of the query text,
// plus the filter token when present, in insertion order.
func (p *SQLProvider) Search(ctx context.Context, q Query) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		query, args := p.buildQuery(q)

		rows, err := p.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(Item{}, fmt.Errorf("failed to query media index: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var it Item
			if err := rows.Scan(&it.ID, &it.Name, &it.Size, &it.SourceRef); err != nil {
				yield(Item{}, fmt.Errorf("failed to scan media item: %w", err))
				return
			}
			if !yield(it, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Item{}, fmt.Errorf("failed to iterate media index: %w", err))
		}
	}
}

func (p *SQLProvider) buildQuery(q Query) (string, []any) {
	var conds []string
	var args []any

	terms := strings.Fields(strings.ToLower(q.Text))
	if q.Filter != "" {
		terms = append(terms, strings.ToLower(q.Filter))
	}
	for _, term := range terms {
		conds = append(conds, "LOWER(name) LIKE "+p.placeholder(len(args)+1)+" ESCAPE '!'")
		args = append(args, "%"+escapeLike(term)+"%")
	}

	query := `SELECT item_id, name, size_bytes, source_ref FROM media_items`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY item_id"
	return query, args
}

func (p *SQLProvider) placeholder(n int) string {
	if p.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// escapeLike neutralizes LIKE metacharacters in user input. The queries
// declare '!' as the escape character because the dialects disagree on
// backslash literals.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
