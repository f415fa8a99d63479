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

// Package search defines the archive search contract and the collection
// pipeline applied to provider results before pagination.
package search

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/telefind/telefind/pkg/config"
)

// Item is one candidate archive entry.
type Item struct {
	// ID identifies the item across provider batches; duplicates are
	// collapsed on it.
	ID string

	Name string

	// Size in bytes.
	Size int64

	// SourceRef is an opaque provider reference (link, message id).
	SourceRef string
}

// Line renders the item as one result-list line.
func (it Item) Line() string {
	return fmt.Sprintf("%s (%s)", it.Name, FormatSize(it.Size))
}

// Query is a parsed search request.
type Query struct {
	Text string

	// Filter is an optional sub-filter token, e.g. a season marker.
	Filter string
}

// Provider yields candidate items for a query. The sequence may be large
// and is consumed lazily; providers stop early when the yield func
// returns false or ctx is done.
type Provider interface {
	Search(ctx context.Context, q Query) iter.Seq2[Item, error]
}

// seasonToken matches a trailing season marker like "S01" or "s2".
var seasonToken = regexp.MustCompile(`(?i)^s\d{1,2}$`)

// ParseQuery splits raw input into search text and an optional trailing
// season filter token.
func ParseQuery(raw string) Query {
	fields := strings.Fields(raw)
	if len(fields) > 1 && seasonToken.MatchString(fields[len(fields)-1]) {
		return Query{
			Text:   strings.Join(fields[:len(fields)-1], " "),
			Filter: strings.ToUpper(fields[len(fields)-1]),
		}
	}
	return Query{Text: strings.TrimSpace(raw)}
}

// Collect drains a provider sequence applying the core obligations:
// de-duplication by ID, the minimum-size filter, and the result cap.
// Original provider order is preserved. Consumption stops as soon as the
// cap is reached.
func Collect(ctx context.Context, p Provider, q Query, cfg config.SearchConfig) ([]Item, error) {
	cfg.SetDefaults()

	var out []Item
	seen := make(map[string]struct{})

	for item, err := range p.Search(ctx, q) {
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", q.Text, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if item.Size < cfg.MinResultSizeBytes {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
		if len(out) >= cfg.MaxResults {
			break
		}
	}
	return out, nil
}

// FormatSize renders bytes with a binary unit suffix.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
