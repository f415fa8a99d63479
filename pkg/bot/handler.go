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
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/telefind/telefind/pkg/memory"
	"github.com/telefind/telefind/pkg/model"
	"github.com/telefind/telefind/pkg/pagination"
	"github.com/telefind/telefind/pkg/ratelimit"
	"github.com/telefind/telefind/pkg/search"
	"github.com/telefind/telefind/pkg/telegram"
)

const helpText = `I find large media files in the archive and can answer questions.

/search <query> - search the archive (append a season token like S01 to filter)
/ask <question> - ask the assistant
/stats - your quota and conversation memory
/clear - forget the conversation
/help - this message

Browse results with next / prev or the buttons under the list.`

// HandleUpdate routes one inbound update. It never panics outward: a
// handler panic is logged and answered with a generic failure so one bad
// event cannot take the poll loop down.
func (b *Bot) HandleUpdate(ctx context.Context, upd telegram.Update) {
	var chatID int64
	if upd.Message != nil {
		chatID = upd.Message.Chat.ID
	} else if upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil {
		chatID = upd.CallbackQuery.Message.Chat.ID
	}

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panic",
				"panic", r,
				"update_id", upd.UpdateID,
			)
			if chatID != 0 {
				b.send(ctx, chatID, "Something went wrong handling that. Please try again.")
			}
		}
	}()

	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.From != nil && !upd.Message.From.IsBot:
		b.handleMessage(ctx, upd.Message)
	}
}

// handleMessage dispatches a text message to its command handler and
// accounts the outcome.
func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID
	userID := strconv.FormatInt(msg.From.ID, 10)
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	command, args := splitCommand(text)

	start := time.Now()
	var err error
	switch command {
	case "start", "help":
		b.send(ctx, chatID, helpText)
	case "ask":
		err = b.cmdAsk(ctx, chatID, userID, args)
	case "stats":
		err = b.cmdStats(ctx, chatID, userID)
	case "clear":
		b.history.Clear(userID)
		b.send(ctx, chatID, "Conversation cleared.")
	case "search":
		err = b.cmdSearch(ctx, chatID, userID, args)
	case "next":
		err = b.cmdNavigate(ctx, chatID, userID, pagination.Next)
	case "prev":
		err = b.cmdNavigate(ctx, chatID, userID, pagination.Prev)
	default:
		b.send(ctx, chatID, "I don't know that one. Try /help.")
		return
	}

	if b.metrics != nil {
		b.metrics.RecordCommand(ctx, command, time.Since(start), err)
	}
	switch {
	case err == nil:
	case ratelimit.IsQuotaError(err):
		// Denials are expected traffic shaping, not failures.
		var scope ratelimit.Scope
		if res := ratelimit.GetQuotaResult(err); res != nil {
			scope = res.Scope
		}
		b.log.Info("request denied by quota",
			"command", command,
			"user_id", userID,
			"scope", string(scope),
		)
	default:
		b.log.Warn("command failed",
			"command", command,
			"user_id", userID,
			"error", err,
		)
	}
}

// splitCommand normalizes input into a command name and its argument
// string. Bare "next"/"prev" tokens count as navigation commands; any
// other plain text maps to help.
func splitCommand(text string) (string, string) {
	if strings.HasPrefix(text, "/") {
		name, args, _ := strings.Cut(text[1:], " ")
		// Group-chat form: /search@telefind_bot
		name, _, _ = strings.Cut(name, "@")
		return strings.ToLower(name), strings.TrimSpace(args)
	}

	switch strings.ToLower(text) {
	case "next", "n":
		return "next", ""
	case "prev", "previous", "p":
		return "prev", ""
	}
	return "help", ""
}

// cmdAsk runs the model conversation flow: admission, record, model
// call, then memory commit. A failed model call rolls the quota back.
func (b *Bot) cmdAsk(ctx context.Context, chatID int64, userID, prompt string) error {
	if prompt == "" {
		b.send(ctx, chatID, "Usage: /ask <question>")
		return nil
	}
	if b.llm == nil || !b.cfg.LLM.IsEnabled() {
		b.send(ctx, chatID, "The assistant is not enabled on this instance.")
		return ErrDisabled
	}

	if err := b.admit(ctx, chatID, userID); err != nil {
		return err
	}

	req := &model.Request{
		SystemInstruction: b.cfg.LLM.Instruction,
		Messages:          b.buildMessages(userID, prompt),
		Temperature:       b.cfg.LLM.Temperature,
		MaxTokens:         b.cfg.LLM.MaxTokens,
	}

	start := time.Now()
	resp, err := b.llm.Generate(ctx, req)
	if b.metrics != nil {
		in, out := 0, 0
		if resp != nil && resp.Usage != nil {
			in, out = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
		}
		b.metrics.RecordLLMCall(ctx, b.llm.Name(), time.Since(start), in, out, err)
	}
	if err != nil {
		if rbErr := b.limiter.Rollback(ctx, userID); rbErr != nil {
			b.log.Error("quota rollback failed", "user_id", userID, "error", rbErr)
		}
		b.send(ctx, chatID, "The assistant is unavailable right now. That attempt did not count against your quota.")
		return fmt.Errorf("%w: %v", ErrDownstreamFailure, err)
	}

	b.history.Append(userID, memory.RoleUser, prompt)
	b.history.Append(userID, memory.RoleAssistant, resp.Text)

	b.send(ctx, chatID, resp.Text)
	return nil
}

// buildMessages assembles the bounded history plus the current prompt.
func (b *Bot) buildMessages(userID, prompt string) []model.Message {
	turns := b.history.History(userID)
	messages := make([]model.Message, 0, len(turns)+1)
	for _, t := range turns {
		role := model.RoleUser
		if t.Role == memory.RoleAssistant {
			role = model.RoleAssistant
		}
		messages = append(messages, model.Message{Role: role, Content: t.Content})
	}
	return append(messages, model.Message{Role: model.RoleUser, Content: prompt})
}

// admit runs the global then the user check and commits one request.
// A denial is answered with a retry hint and reported as quota exceeded.
func (b *Bot) admit(ctx context.Context, chatID int64, userID string) error {
	for _, check := range []func() (*ratelimit.CheckResult, error){
		func() (*ratelimit.CheckResult, error) { return b.limiter.CheckGlobal(ctx) },
		func() (*ratelimit.CheckResult, error) { return b.limiter.CheckUser(ctx, userID) },
	} {
		res, err := check()
		if err != nil {
			b.send(ctx, chatID, "Something went wrong handling that. Please try again.")
			return fmt.Errorf("%w: %v", ErrDownstreamFailure, err)
		}
		if res.IsExceeded() {
			if b.metrics != nil {
				b.metrics.RecordQuotaDenial(ctx, string(res.Scope))
			}
			b.send(ctx, chatID, denialMessage(res))
			return ratelimit.NewQuotaError(res)
		}
	}

	if err := b.limiter.Record(ctx, userID); err != nil {
		b.send(ctx, chatID, "Something went wrong handling that. Please try again.")
		return fmt.Errorf("%w: %v", ErrDownstreamFailure, err)
	}
	return nil
}

// denialMessage renders a quota denial with its retry hint.
func denialMessage(res *ratelimit.CheckResult) string {
	switch {
	case res.ResetAt != nil:
		return fmt.Sprintf("Daily limit reached. Quota resets at %s.",
			res.ResetAt.UTC().Format("15:04 UTC"))
	case res.RetryAfter != nil:
		return fmt.Sprintf("Too many requests. Try again in %s.",
			res.RetryAfter.Round(time.Second))
	default:
		return "Too many requests. Try again later."
	}
}

// cmdStats reports quota usage and conversation memory state.
func (b *Bot) cmdStats(ctx context.Context, chatID int64, userID string) error {
	usages, err := b.limiter.Usage(ctx, userID)
	if err != nil {
		b.send(ctx, chatID, "Something went wrong handling that. Please try again.")
		return fmt.Errorf("%w: %v", ErrDownstreamFailure, err)
	}

	var sb strings.Builder
	sb.WriteString("Your quota:\n")
	for _, u := range usages {
		if u.Scope != ratelimit.ScopeUser {
			continue
		}
		fmt.Fprintf(&sb, "  per %s: %d/%d (%d left)\n", u.Window, u.Current, u.Limit, u.Remaining)
	}
	sb.WriteString("Shared quota:\n")
	for _, u := range usages {
		if u.Scope != ratelimit.ScopeGlobal {
			continue
		}
		fmt.Fprintf(&sb, "  per %s: %d/%d (%d left)\n", u.Window, u.Current, u.Limit, u.Remaining)
	}

	stats := b.history.Stats(userID)
	if stats.Turns == 0 {
		sb.WriteString("Memory: empty")
	} else {
		fmt.Fprintf(&sb, "Memory: %d turns, ~%d tokens, idle %s",
			stats.Turns, stats.EstimatedTokens, stats.Idle.Round(time.Second))
	}

	b.send(ctx, chatID, sb.String())
	return nil
}

// cmdSearch runs the archive search flow: admission, provider collect,
// then pagination start. A newer /search from the same user aborts this
// one mid-collect.
func (b *Bot) cmdSearch(ctx context.Context, chatID int64, userID, raw string) error {
	if raw == "" {
		b.send(ctx, chatID, "Usage: /search <query>")
		return nil
	}
	if b.provider == nil {
		b.send(ctx, chatID, "Archive search is not enabled on this instance.")
		return ErrDisabled
	}

	if err := b.admit(ctx, chatID, userID); err != nil {
		return err
	}

	searchCtx, done := b.beginSearch(ctx, userID)
	defer done()

	q := search.ParseQuery(raw)
	start := time.Now()
	items, err := search.Collect(searchCtx, b.provider, q, b.cfg.Search)
	if b.metrics != nil {
		b.metrics.RecordSearch(ctx, time.Since(start), len(items))
	}
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			// Superseded by a newer search from the same user.
			b.log.Debug("search superseded", "user_id", userID)
			return nil
		}
		if rbErr := b.limiter.Rollback(ctx, userID); rbErr != nil {
			b.log.Error("quota rollback failed", "user_id", userID, "error", rbErr)
		}
		b.send(ctx, chatID, "The archive is unavailable right now. That attempt did not count against your quota.")
		return fmt.Errorf("%w: %v", ErrDownstreamFailure, err)
	}

	if len(items) == 0 {
		b.pages.Start(userID, nil)
		b.send(ctx, chatID, fmt.Sprintf("Nothing found at or above %s.",
			search.FormatSize(b.cfg.Search.MinResultSizeBytes)))
		return nil
	}

	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%d. %s", i+1, it.Line())
	}

	page, _ := b.pages.Start(userID, lines)
	markup := navKeyboard(userID, page)
	msg, err := b.transport.SendMessage(ctx, chatID, renderPage(page), markup)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownstreamFailure, err)
	}
	if msg != nil && markup != nil {
		b.pages.SetPrompt(userID, page.Token, msg.MessageID)
	}
	return nil
}

// cmdNavigate is the text-command navigation surface: each page goes out
// as a fresh message. At a bound nothing is sent and the cursor stays.
func (b *Bot) cmdNavigate(ctx context.Context, chatID int64, userID string, dir pagination.Direction) error {
	page, outcome := b.pages.Advance(userID, dir)
	switch outcome {
	case pagination.Handled:
		b.send(ctx, chatID, renderPage(page))
	case pagination.NoSession:
		b.send(ctx, chatID, "No active search. Run /search <query> first.")
		return ErrStaleSession
	}
	return nil
}

// handleCallback is the structured navigation surface: the pressed
// prompt is edited in place and the press is always acknowledged.
func (b *Bot) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	userID := strconv.FormatInt(cb.From.ID, 10)

	payload, err := pagination.DecodeCallback(cb.Data)
	if err != nil {
		b.answer(ctx, cb.ID, "Unsupported action.")
		return
	}
	if payload.UserID != userID {
		b.answer(ctx, cb.ID, "These controls belong to someone else's search.")
		return
	}

	page, outcome := b.pages.AdvanceToken(userID, payload.Token, payload.Direction)
	switch outcome {
	case pagination.Handled:
		if cb.Message != nil {
			err := b.transport.EditMessage(ctx, cb.Message.Chat.ID, cb.Message.MessageID,
				renderPage(page), navKeyboard(userID, page))
			if err != nil {
				b.log.Warn("prompt edit failed", "user_id", userID, "error", err)
			}
		}
		b.answer(ctx, cb.ID, "")
	case pagination.NotHandled:
		b.answer(ctx, cb.ID, "No more pages.")
	case pagination.NoSession:
		b.answer(ctx, cb.ID, "Session expired. Run a new search.")
	}
}

// renderPage joins the page body with its indicator footer.
func renderPage(page pagination.Page) string {
	return strings.Join(page.Lines, "\n") + "\n\n" + page.Footer()
}

// navKeyboard builds the prev/next controls. Single-page sessions get no
// keyboard.
func navKeyboard(userID string, page pagination.Page) *telegram.InlineKeyboardMarkup {
	if page.Total <= 1 {
		return nil
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
		{Text: "← Prev", CallbackData: pagination.EncodeCallback(userID, page.Token, pagination.Prev)},
		{Text: "Next →", CallbackData: pagination.EncodeCallback(userID, page.Token, pagination.Next)},
	}}}
}

// send is a fire-and-forget plain message; delivery failures are logged.
func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if _, err := b.transport.SendMessage(ctx, chatID, text, nil); err != nil {
		b.log.Warn("send failed", "chat_id", chatID, "error", err)
	}
}

// answer acknowledges a callback press; failures are logged.
func (b *Bot) answer(ctx context.Context, callbackID, text string) {
	if err := b.transport.AnswerCallback(ctx, callbackID, text); err != nil {
		b.log.Warn("callback answer failed", "error", err)
	}
}
