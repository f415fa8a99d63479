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

package bot

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/telefind/telefind/pkg/telegram"
)

// UpdateSource delivers inbound events, typically the long-polling
// transport client.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64) ([]telegram.Update, error)
}

const (
	// maxConcurrentHandlers bounds in-flight event handlers across users.
	maxConcurrentHandlers = 32

	maxPollBackoff = 30 * time.Second
)

// Run drives the poll loop until ctx is canceled. Each update is handled
// on its own goroutine so one user's slow search or model call does not
// stall the others; in-flight handlers are drained before returning.
func (b *Bot) Run(ctx context.Context, source UpdateSource) error {
	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentHandlers)

	var offset int64
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			break
		}

		updates, err := source.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.log.Warn("poll failed", "error", err, "backoff", backoff)
			if !sleep(ctx, backoff) {
				break
			}
			backoff = min(backoff*2, maxPollBackoff)
			continue
		}
		backoff = time.Second

		for _, upd := range updates {
			offset = upd.UpdateID + 1
			g.Go(func() error {
				b.HandleUpdate(ctx, upd)
				return nil
			})
		}
	}

	_ = g.Wait()
	return ctx.Err()
}

// sleep waits d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
