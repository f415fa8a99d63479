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

// Package telegram is a minimal Bot API client covering what the bot
// needs: long-poll update delivery, plain and keyboard-carrying
// messages, in-place edits, and callback acknowledgement.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/telefind/telefind/pkg/config"
	"github.com/telefind/telefind/pkg/httpclient"
)

const (
	defaultAPIBase = "https://api.telegram.org"

	// messageLimit stays under the Bot API's 4096-char message cap with
	// headroom for footers.
	messageLimit = 3900
)

// Client talks to the Telegram Bot API.
type Client struct {
	baseURL     string
	http        *httpclient.Client
	pollTimeout int
}

// NewClient creates a Bot API client from the transport config. Request
// retry and rate-limit backoff are handled by the retrying HTTP client
// underneath; the long-poll timeout rides on top of the request timeout.
func NewClient(cfg config.TelegramConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	base := cfg.APIBase
	if base == "" {
		base = defaultAPIBase
	}

	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	pollTimeout := cfg.PollTimeoutSeconds

	hc := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			// Long polls hold the connection for pollTimeout seconds.
			Timeout: requestTimeout + time.Duration(pollTimeout)*time.Second,
		}),
		httpclient.WithHeaderParser(httpclient.ParseTelegramResponse),
	)

	return &Client{
		baseURL:     fmt.Sprintf("%s/bot%s", base, cfg.Token),
		http:        hc,
		pollTimeout: pollTimeout,
	}, nil
}

// GetUpdates long-polls for inbound updates past offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        c.pollTimeout,
		AllowedUpdates: []string{"message", "callback_query"},
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends text to a chat, optionally with an inline keyboard.
// Overlong text is cut at a rune boundary.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (*Message, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:      chatID,
		Text:        clip(text, messageLimit),
		ReplyMarkup: markup,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessage replaces the text and keyboard of a previously sent message.
func (c *Client) EditMessage(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	return c.call(ctx, "editMessageText", editMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        clip(text, messageLimit),
		ReplyMarkup: markup,
	}, nil)
}

// AnswerCallback acknowledges a callback query, optionally flashing text
// at the user.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{
		CallbackQueryID: callbackID,
		Text:            text,
	}, nil)
}

// call posts one Bot API method and decodes its result into out.
func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: encode request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		// The retry client hands error statuses back with the body
		// intact; surface the Bot API description when one is there.
		if resp != nil {
			var wrapper apiResponse
			if decodeErr := json.NewDecoder(resp.Body).Decode(&wrapper); decodeErr == nil && !wrapper.OK && wrapper.Description != "" {
				return fmt.Errorf("telegram %s: api error %d: %s", method, wrapper.ErrorCode, wrapper.Description)
			}
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s: read response: %w", method, err)
	}

	var wrapper apiResponse
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return fmt.Errorf("telegram %s: parse response: %w", method, err)
	}
	if !wrapper.OK {
		return fmt.Errorf("telegram %s: api error %d: %s", method, wrapper.ErrorCode, wrapper.Description)
	}

	if out != nil && len(wrapper.Result) > 0 {
		if err := json.Unmarshal(wrapper.Result, out); err != nil {
			return fmt.Errorf("telegram %s: parse result: %w", method, err)
		}
	}
	return nil
}

// clip cuts s at max runes.
func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
