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
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telefind/telefind/pkg/config"
)

const mib = 1024 * 1024

// fakeProvider yields a fixed item list, optionally ending with an error.
type fakeProvider struct {
	items []Item
	err   error

	consumed int
}

func (f *fakeProvider) Search(_ context.Context, _ Query) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for _, it := range f.items {
			f.consumed++
			if !yield(it, nil) {
				return
			}
		}
		if f.err != nil {
			yield(Item{}, f.err)
		}
	}
}

func bigItem(id string) Item {
	return Item{ID: id, Name: "file-" + id, Size: 100 * mib, SourceRef: "ref-" + id}
}

func TestCollect_FiltersSmallItems(t *testing.T) {
	p := &fakeProvider{items: []Item{
		bigItem("a"),
		{ID: "b", Name: "sample.txt", Size: 10 * mib},
		bigItem("c"),
		{ID: "d", Name: "exactly-at-threshold", Size: 50 * mib},
	}}

	got, err := Collect(context.Background(), p, Query{Text: "q"}, config.SearchConfig{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "c", "d"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestCollect_DeduplicatesByID(t *testing.T) {
	p := &fakeProvider{items: []Item{bigItem("a"), bigItem("b"), bigItem("a")}}

	got, err := Collect(context.Background(), p, Query{Text: "q"}, config.SearchConfig{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestCollect_StopsAtCap(t *testing.T) {
	var items []Item
	for i := 0; i < 500; i++ {
		items = append(items, bigItem(fmt.Sprintf("%03d", i)))
	}
	p := &fakeProvider{items: items}

	got, err := Collect(context.Background(), p, Query{Text: "q"}, config.SearchConfig{})
	require.NoError(t, err)
	assert.Len(t, got, 200)
	// The sequence is lazy: nothing past the cap is pulled.
	assert.Equal(t, 200, p.consumed)
}

func TestCollect_PropagatesProviderError(t *testing.T) {
	wantErr := errors.New("backend down")
	p := &fakeProvider{items: []Item{bigItem("a")}, err: wantErr}

	_, err := Collect(context.Background(), p, Query{Text: "q"}, config.SearchConfig{})
	assert.ErrorIs(t, err, wantErr)
}

func TestCollect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &fakeProvider{items: []Item{bigItem("a"), bigItem("b")}}
	_, err := Collect(ctx, p, Query{Text: "q"}, config.SearchConfig{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseQuery(t *testing.T) {
	q := ParseQuery("breaking waves s02")
	assert.Equal(t, "breaking waves", q.Text)
	assert.Equal(t, "S02", q.Filter)

	q = ParseQuery("plain query")
	assert.Equal(t, "plain query", q.Text)
	assert.Empty(t, q.Filter)

	// A bare season token is the whole query, not a filter.
	q = ParseQuery("s01")
	assert.Equal(t, "s01", q.Text)
	assert.Empty(t, q.Filter)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.0 KiB", FormatSize(1024))
	assert.Equal(t, "50.0 MiB", FormatSize(50*mib))
	assert.Equal(t, "1.5 GiB", FormatSize(3*512*mib))
}
