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
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telefind/telefind/pkg/config"
)

func newSQLProvider(t *testing.T) (*SQLProvider, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p, err := NewSQLProvider(db, "sqlite")
	require.NoError(t, err)
	return p, db
}

func insertItem(t *testing.T, db *sql.DB, id, name string, size int64) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO media_items (item_id, name, size_bytes, source_ref) VALUES (?, ?, ?, ?)`,
		id, name, size, "ref-"+id,
	)
	require.NoError(t, err)
}

func TestSQLProvider_SearchMatchesAllTerms(t *testing.T) {
	p, db := newSQLProvider(t)
	insertItem(t, db, "a", "Breaking.Waves.S01E01.1080p.mkv", 900*mib)
	insertItem(t, db, "b", "Breaking.Waves.S02E01.1080p.mkv", 900*mib)
	insertItem(t, db, "c", "Other.Show.S01E01.mkv", 900*mib)

	got, err := Collect(context.Background(), p, ParseQuery("breaking waves"), config.SearchConfig{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "ref-a", got[0].SourceRef)
}

func TestSQLProvider_SeasonFilter(t *testing.T) {
	p, db := newSQLProvider(t)
	insertItem(t, db, "a", "Breaking.Waves.S01E01.mkv", 900*mib)
	insertItem(t, db, "b", "Breaking.Waves.S02E01.mkv", 900*mib)

	got, err := Collect(context.Background(), p, ParseQuery("breaking waves s02"), config.SearchConfig{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestSQLProvider_SizeFilterApplies(t *testing.T) {
	p, db := newSQLProvider(t)
	insertItem(t, db, "big", "show.mkv", 900*mib)
	insertItem(t, db, "small", "show.sample.mkv", 5*mib)

	got, err := Collect(context.Background(), p, ParseQuery("show"), config.SearchConfig{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "big", got[0].ID)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "100!%", escapeLike("100%"))
	assert.Equal(t, "a!_b", escapeLike("a_b"))
	assert.Equal(t, "wow!!", escapeLike("wow!"))
}

func TestSQLProvider_LikeMetacharactersAreLiteral(t *testing.T) {
	p, db := newSQLProvider(t)
	insertItem(t, db, "a", "100% Wolf.mkv", 900*mib)
	insertItem(t, db, "b", "1000 Ways.mkv", 900*mib)

	got, err := Collect(context.Background(), p, ParseQuery("100%"), config.SearchConfig{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}
